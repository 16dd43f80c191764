// SPDX-License-Identifier: MIT

package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	retry "github.com/sethvargo/go-retry"

	"github.com/IsakPar/the-lml-sub003/internal/inventory/model"
	"github.com/IsakPar/the-lml-sub003/internal/log"
	"github.com/IsakPar/the-lml-sub003/internal/metrics"
)

// RedisConfig bounds one ledger call and the whole operation including
// transient-error retries.
type RedisConfig struct {
	CommandTimeout   time.Duration
	OperationTimeout time.Duration
}

// RedisLedger runs the four lock scripts against a Redis server or cluster.
// All keys of one acquire share a hash tag, so every script call lands on a
// single shard.
type RedisLedger struct {
	client redis.UniversalClient
	script map[string]*redis.Script
	cfg    RedisConfig
	logger zerolog.Logger
}

// NewRedis wraps an existing client. LoadScripts should be called once before
// serving traffic; running against an empty script cache still works because
// run reloads on NOSCRIPT.
func NewRedis(client redis.UniversalClient, cfg RedisConfig) *RedisLedger {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 50 * time.Millisecond
	}
	if cfg.OperationTimeout < cfg.CommandTimeout {
		cfg.OperationTimeout = 3 * cfg.CommandTimeout
	}
	return &RedisLedger{
		client: client,
		script: newScripts(),
		cfg:    cfg,
		logger: log.WithComponent("ledger"),
	}
}

// LoadScripts populates the server script cache and verifies each SHA1, so a
// deploy fails fast when the server rejects a script body.
func (l *RedisLedger) LoadScripts(ctx context.Context) error {
	for op, s := range l.script {
		if err := s.Load(ctx, l.client).Err(); err != nil {
			return fmt.Errorf("load %s script: %w", op, err)
		}
		l.logger.Debug().Str("script", op).Str("sha1", s.Hash()).Msg("lock script loaded")
	}
	return nil
}

func (l *RedisLedger) AcquireAllOrNone(ctx context.Context, keys []string, owner string, version int64, ttl time.Duration, now time.Time) (AcquireResult, error) {
	reply, err := l.run(ctx, opAcquire, keys, owner, version, ttl.Milliseconds(), now.UnixMilli())
	if err != nil {
		return AcquireResult{}, err
	}
	ok, rest, err := splitReply(opAcquire, reply)
	if err != nil {
		return AcquireResult{}, err
	}
	if ok == 1 {
		return AcquireResult{OK: true}, nil
	}
	return AcquireResult{ConflictKeys: rest}, nil
}

func (l *RedisLedger) ExtendIfOwner(ctx context.Context, key, owner string, version int64, ttl time.Duration) (Outcome, error) {
	return l.fenced(ctx, opExtend, key, owner, version, ttl.Milliseconds())
}

func (l *RedisLedger) ReleaseIfOwner(ctx context.Context, key, owner string, version int64) (Outcome, error) {
	return l.fenced(ctx, opRelease, key, owner, version, 0)
}

func (l *RedisLedger) RollbackIfOwner(ctx context.Context, key, owner string, version int64) (Outcome, error) {
	return l.fenced(ctx, opRollback, key, owner, version, 0)
}

// fenced runs a single-key guarded mutation and folds the applied count into
// an Outcome.
func (l *RedisLedger) fenced(ctx context.Context, op, key, owner string, version, ttlMillis int64) (Outcome, error) {
	reply, err := l.run(ctx, op, []string{key}, owner, version, ttlMillis, time.Now().UnixMilli())
	if err != nil {
		return NOOP, err
	}
	applied, _, err := splitReply(op, reply)
	if err != nil {
		return NOOP, err
	}
	if applied == 1 {
		return OK, nil
	}
	return NOOP, nil
}

func (l *RedisLedger) ScanHeld(ctx context.Context, tenant, performance string) (map[string]model.LockRecord, error) {
	pattern := model.ScanPattern(tenant, performance)
	held := make(map[string]model.LockRecord)

	var keys []string
	iter := l.client.Scan(ctx, 0, pattern, 256).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, storageError("scan held keys", err)
	}
	if len(keys) == 0 {
		return held, nil
	}

	byKey, err := l.ProbeHeld(ctx, keys)
	if err != nil {
		return nil, err
	}
	for key, rec := range byKey {
		seat, ok := model.SeatFromKey(key)
		if !ok {
			l.logger.Warn().Str("key", key).Msg("skipping key outside the lock grammar")
			continue
		}
		held[seat] = rec
	}
	return held, nil
}

func (l *RedisLedger) ProbeHeld(ctx context.Context, keys []string) (map[string]model.LockRecord, error) {
	if len(keys) == 0 {
		return map[string]model.LockRecord{}, nil
	}
	cmdCtx, cancel := context.WithTimeout(ctx, l.cfg.OperationTimeout)
	defer cancel()

	values, err := l.client.MGet(cmdCtx, keys...).Result()
	if err != nil {
		return nil, storageError("probe held keys", err)
	}
	held := make(map[string]model.LockRecord, len(keys))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // nil: key absent or expired
		}
		rec, err := model.DecodeLockRecord(s)
		if err != nil {
			l.logger.Warn().Err(err).Str("key", keys[i]).Msg("skipping undecodable lock record")
			continue
		}
		held[keys[i]] = rec
	}
	return held, nil
}

func (l *RedisLedger) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return storageError("ledger ping", err)
	}
	return nil
}

func (l *RedisLedger) Close() error {
	return l.client.Close()
}

// run executes one script with the fixed ARGV layout, bounded per attempt by
// the command timeout and overall by the operation timeout. Only transport
// errors are retried; a logical reply always returns on the first attempt
// that produced it.
func (l *RedisLedger) run(ctx context.Context, op string, keys []string, owner string, version, ttlMillis, nowMillis int64) ([]interface{}, error) {
	opCtx, cancel := context.WithTimeout(ctx, l.cfg.OperationTimeout)
	defer cancel()

	argv := []interface{}{owner, strconv.FormatInt(version, 10), ttlMillis, nowMillis}
	script := l.script[op]

	var reply interface{}
	backoff := retry.WithMaxRetries(3, retry.NewExponential(2*time.Millisecond))
	err := retry.Do(opCtx, backoff, func(ctx context.Context) error {
		cmdCtx, cancelCmd := context.WithTimeout(ctx, l.cfg.CommandTimeout)
		defer cancelCmd()

		start := time.Now()
		res, err := script.EvalSha(cmdCtx, l.client, keys, argv...).Result()
		metrics.ObserveScript(op, time.Since(start).Seconds())

		if err != nil && redis.HasErrorPrefix(err, "NOSCRIPT") {
			metrics.IncScriptReload()
			if err = script.Load(cmdCtx, l.client).Err(); err == nil {
				res, err = script.EvalSha(cmdCtx, l.client, keys, argv...).Result()
			}
		}
		if err != nil {
			if retryable(err) {
				metrics.IncLedgerRetry(op)
				return retry.RetryableError(err)
			}
			return err
		}
		reply = res
		return nil
	})
	if err != nil {
		kind := "transport"
		if errors.Is(err, context.DeadlineExceeded) {
			kind = "timeout"
		}
		metrics.IncLedgerError(op, kind)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			// The operation budget ran out, not the caller's deadline.
			return nil, model.NewReasonError(model.RTimeout, fmt.Sprintf("ledger %s exceeded its operation budget", op), err)
		}
		return nil, storageError("ledger "+op, err)
	}

	arr, ok := reply.([]interface{})
	if !ok {
		return nil, model.NewReasonError(model.RInternal, fmt.Sprintf("ledger %s returned a non-array reply", op), nil)
	}
	return arr, nil
}

// retryable classifies substrate errors. Logical script replies never reach
// here; context expiry aborts the attempt loop via retry.Do itself.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Script compile errors and wrong-type errors are deterministic.
	if redis.HasErrorPrefix(err, "ERR") || redis.HasErrorPrefix(err, "WRONGTYPE") {
		return false
	}
	return true
}

// splitReply decodes the shared {count, keys...} reply shape.
func splitReply(op string, reply []interface{}) (int64, []string, error) {
	if len(reply) == 0 {
		return 0, nil, model.NewReasonError(model.RInternal, fmt.Sprintf("ledger %s returned an empty reply", op), nil)
	}
	count, ok := reply[0].(int64)
	if !ok {
		return 0, nil, model.NewReasonError(model.RInternal, fmt.Sprintf("ledger %s returned a malformed count", op), nil)
	}
	keys := make([]string, 0, len(reply)-1)
	for _, item := range reply[1:] {
		s, ok := item.(string)
		if !ok {
			return 0, nil, model.NewReasonError(model.RInternal, fmt.Sprintf("ledger %s returned a malformed key", op), nil)
		}
		keys = append(keys, s)
	}
	return count, keys, nil
}

func storageError(what string, err error) error {
	return model.NewReasonError(model.RStorage, what+" failed", err)
}
