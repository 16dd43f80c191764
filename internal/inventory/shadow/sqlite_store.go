// SPDX-License-Identifier: MIT

package shadow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IsakPar/the-lml-sub003/internal/inventory/model"
	"github.com/IsakPar/the-lml-sub003/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore implements Store on a single SQLite database. SQLite serializes
// writers, which gives every mutating method the single-transaction guarantee
// the coordinator relies on.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (or creates) the shadow database at dbPath and applies
// the schema.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("shadow store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func (s *SqliteStore) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return storageErr("shadow ping", err)
	}
	return nil
}

func (s *SqliteStore) migrate() error {
	var current int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS holds (
		tenant_id      TEXT NOT NULL,
		hold_id        TEXT NOT NULL,
		performance_id TEXT NOT NULL,
		owner          TEXT NOT NULL,
		version        INTEGER NOT NULL,
		state          TEXT NOT NULL,
		seats_json     TEXT NOT NULL,
		order_id       TEXT NOT NULL DEFAULT '',
		created_at_ms  INTEGER NOT NULL,
		updated_at_ms  INTEGER NOT NULL,
		expires_at_ms  INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, hold_id)
	);

	CREATE INDEX IF NOT EXISTS idx_holds_state_expiry ON holds(state, expires_at_ms);
	CREATE INDEX IF NOT EXISTS idx_holds_performance ON holds(tenant_id, performance_id, state);

	CREATE TABLE IF NOT EXISTS hold_events (
		tenant_id TEXT NOT NULL,
		hold_id   TEXT NOT NULL,
		seq       INTEGER NOT NULL,
		type      TEXT NOT NULL,
		at_ms     INTEGER NOT NULL,
		note      TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (tenant_id, hold_id, seq)
	);

	CREATE TABLE IF NOT EXISTS blocks (
		tenant_id      TEXT NOT NULL,
		performance_id TEXT NOT NULL,
		seat_id        TEXT NOT NULL,
		reason         TEXT NOT NULL DEFAULT '',
		created_at_ms  INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, performance_id, seat_id)
	);

	CREATE TABLE IF NOT EXISTS sold_seats (
		tenant_id      TEXT NOT NULL,
		performance_id TEXT NOT NULL,
		seat_id        TEXT NOT NULL,
		hold_id        TEXT NOT NULL,
		order_id       TEXT NOT NULL,
		sold_at_ms     INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, performance_id, seat_id)
	);

	CREATE TABLE IF NOT EXISTS idempotency (
		tenant_id     TEXT NOT NULL,
		key           TEXT NOT NULL,
		op            TEXT NOT NULL,
		fingerprint   TEXT NOT NULL,
		hold_id       TEXT NOT NULL DEFAULT '',
		payload       BLOB,
		expires_at_ms INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, key)
	);

	CREATE INDEX IF NOT EXISTS idx_idempotency_expiry ON idempotency(expires_at_ms);

	CREATE TABLE IF NOT EXISTS versions (
		tenant_id      TEXT NOT NULL,
		performance_id TEXT NOT NULL,
		version        INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, performance_id)
	);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit transaction", err)
	}
	return nil
}

func (s *SqliteStore) NextVersion(ctx context.Context, tenant, performance string) (int64, error) {
	var version int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO versions (tenant_id, performance_id, version) VALUES (?, ?, 1)
			ON CONFLICT(tenant_id, performance_id) DO UPDATE SET version = version + 1
			RETURNING version`, tenant, performance).Scan(&version)
	})
	if err != nil {
		if _, _, ok := model.ReasonFromError(err); ok {
			return 0, err
		}
		return 0, storageErr("allocate version", err)
	}
	return version, nil
}

func (s *SqliteStore) CreateHold(ctx context.Context, h *model.Hold) error {
	seats, err := json.Marshal(h.Seats)
	if err != nil {
		return storageErr("encode seats", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO holds (tenant_id, hold_id, performance_id, owner, version, state,
				seats_json, order_id, created_at_ms, updated_at_ms, expires_at_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			h.Tenant, h.ID, h.Performance, h.Owner, h.Version, string(h.State),
			string(seats), h.OrderID, h.CreatedAt.UnixMilli(), h.UpdatedAt.UnixMilli(), h.ExpiresAt.UnixMilli())
		if err != nil {
			return storageErr("insert hold", err)
		}
		return insertEvents(ctx, tx, h.Tenant, h.ID, 0, h.Events)
	})
}

func (s *SqliteStore) GetHold(ctx context.Context, tenant, holdID string) (*model.Hold, error) {
	var h *model.Hold
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		h, err = loadHold(ctx, tx, tenant, holdID, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (s *SqliteStore) UpdateHold(ctx context.Context, tenant, holdID string, fn func(*model.Hold) error) (*model.Hold, error) {
	var updated *model.Hold
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		h, err := loadHold(ctx, tx, tenant, holdID, true)
		if err != nil {
			return err
		}
		if h == nil {
			return model.NewReasonError(model.RNotFound, "hold not found", nil)
		}
		before := len(h.Events)
		if err := fn(h); err != nil {
			return err
		}
		if err := writeHold(ctx, tx, h); err != nil {
			return err
		}
		if err := insertEvents(ctx, tx, h.Tenant, h.ID, before, h.Events[before:]); err != nil {
			return err
		}
		updated = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ScanExpiredHolds visits candidates without their audit trail; the reaper
// re-reads through UpdateHold before transitioning.
func (s *SqliteStore) ScanExpiredHolds(ctx context.Context, cutoff time.Time, fn func(*model.Hold) error) error {
	rows, err := s.DB.QueryContext(ctx, holdColumns+`
		FROM holds
		WHERE state IN (?, ?) AND expires_at_ms < ?
		ORDER BY expires_at_ms`,
		string(model.HoldActive), string(model.HoldExtended), cutoff.UnixMilli())
	if err != nil {
		return storageErr("scan expired holds", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return err
		}
		if err := fn(h); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return storageErr("scan expired holds", err)
	}
	return nil
}

func (s *SqliteStore) ActiveHoldsFor(ctx context.Context, tenant, performance string) ([]*model.Hold, error) {
	rows, err := s.DB.QueryContext(ctx, holdColumns+`
		FROM holds
		WHERE tenant_id = ? AND performance_id = ? AND state IN (?, ?)`,
		tenant, performance, string(model.HoldActive), string(model.HoldExtended))
	if err != nil {
		return nil, storageErr("list active holds", err)
	}
	defer func() { _ = rows.Close() }()

	var holds []*model.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list active holds", err)
	}
	return holds, nil
}

func (s *SqliteStore) ListBlocks(ctx context.Context, tenant, performance string) (map[string]model.Block, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT seat_id, reason, created_at_ms FROM blocks
		WHERE tenant_id = ? AND performance_id = ?`, tenant, performance)
	if err != nil {
		return nil, storageErr("list blocks", err)
	}
	defer func() { _ = rows.Close() }()

	blocks := make(map[string]model.Block)
	for rows.Next() {
		var seat, reason string
		var createdMs int64
		if err := rows.Scan(&seat, &reason, &createdMs); err != nil {
			return nil, storageErr("scan block", err)
		}
		blocks[seat] = model.Block{
			Tenant: tenant, Performance: performance, Seat: seat,
			Reason: reason, CreatedAt: time.UnixMilli(createdMs),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list blocks", err)
	}
	return blocks, nil
}

func (s *SqliteStore) ListSold(ctx context.Context, tenant, performance string) (map[string]model.SoldRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT seat_id, hold_id, order_id, sold_at_ms FROM sold_seats
		WHERE tenant_id = ? AND performance_id = ?`, tenant, performance)
	if err != nil {
		return nil, storageErr("list sold seats", err)
	}
	defer func() { _ = rows.Close() }()

	sold := make(map[string]model.SoldRecord)
	for rows.Next() {
		var seat, holdID, orderID string
		var soldMs int64
		if err := rows.Scan(&seat, &holdID, &orderID, &soldMs); err != nil {
			return nil, storageErr("scan sold seat", err)
		}
		sold[seat] = model.SoldRecord{
			Tenant: tenant, Performance: performance, Seat: seat,
			HoldID: holdID, OrderID: orderID, SoldAt: time.UnixMilli(soldMs),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list sold seats", err)
	}
	return sold, nil
}

func (s *SqliteStore) BlockedOrSold(ctx context.Context, tenant, performance string, seats []string) ([]string, []string, error) {
	if len(seats) == 0 {
		return nil, nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seats)), ",")
	args := make([]any, 0, len(seats)+2)
	args = append(args, tenant, performance)
	for _, seat := range seats {
		args = append(args, seat)
	}

	collect := func(query string) (map[string]struct{}, error) {
		rows, err := s.DB.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, storageErr("seat precheck", err)
		}
		defer func() { _ = rows.Close() }()
		hits := make(map[string]struct{})
		for rows.Next() {
			var seat string
			if err := rows.Scan(&seat); err != nil {
				return nil, storageErr("seat precheck", err)
			}
			hits[seat] = struct{}{}
		}
		return hits, rows.Err()
	}

	blockedSet, err := collect(`SELECT seat_id FROM blocks WHERE tenant_id = ? AND performance_id = ? AND seat_id IN (` + placeholders + `)`)
	if err != nil {
		return nil, nil, err
	}
	soldSet, err := collect(`SELECT seat_id FROM sold_seats WHERE tenant_id = ? AND performance_id = ? AND seat_id IN (` + placeholders + `)`)
	if err != nil {
		return nil, nil, err
	}

	// Preserve request order in the reported subsets.
	var blocked, sold []string
	for _, seat := range seats {
		if _, ok := blockedSet[seat]; ok {
			blocked = append(blocked, seat)
		}
		if _, ok := soldSet[seat]; ok {
			sold = append(sold, seat)
		}
	}
	return blocked, sold, nil
}

func (s *SqliteStore) PutBlocks(ctx context.Context, blocks []model.Block) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, b := range blocks {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO blocks (tenant_id, performance_id, seat_id, reason, created_at_ms)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(tenant_id, performance_id, seat_id) DO UPDATE SET reason = excluded.reason`,
				b.Tenant, b.Performance, b.Seat, b.Reason, b.CreatedAt.UnixMilli())
			if err != nil {
				return storageErr("insert block", err)
			}
		}
		return nil
	})
}

func (s *SqliteStore) DeleteBlocks(ctx context.Context, tenant, performance string, seats []string) ([]string, error) {
	var removed []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, seat := range seats {
			res, err := tx.ExecContext(ctx, `
				DELETE FROM blocks WHERE tenant_id = ? AND performance_id = ? AND seat_id = ?`,
				tenant, performance, seat)
			if err != nil {
				return storageErr("delete block", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				removed = append(removed, seat)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *SqliteStore) ConvertHold(ctx context.Context, tenant, holdID string, version int64, orderID string, at time.Time) (*model.Hold, error) {
	var converted *model.Hold
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		h, err := loadHold(ctx, tx, tenant, holdID, true)
		if err != nil {
			return err
		}
		if h == nil {
			return model.NewReasonError(model.RNotFound, "hold not found", nil)
		}
		if !h.State.OccupiesSeats() {
			return model.NewReasonError(model.RStale, fmt.Sprintf("hold is %s", h.State), nil)
		}
		if h.Version != version {
			return model.NewReasonError(model.RStale, "hold version does not match", nil)
		}

		for _, seat := range h.Seats {
			var existing string
			err := tx.QueryRowContext(ctx, `
				SELECT order_id FROM sold_seats
				WHERE tenant_id = ? AND performance_id = ? AND seat_id = ?`,
				tenant, h.Performance, seat).Scan(&existing)
			switch {
			case err == nil:
				return model.NewSeatsError(model.RConflict, "seat already sold", []string{seat})
			case errors.Is(err, sql.ErrNoRows):
			default:
				return storageErr("sold precheck", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sold_seats (tenant_id, performance_id, seat_id, hold_id, order_id, sold_at_ms)
				VALUES (?, ?, ?, ?, ?, ?)`,
				tenant, h.Performance, seat, h.ID, orderID, at.UnixMilli()); err != nil {
				return storageErr("insert sold seat", err)
			}
		}

		before := len(h.Events)
		h.State = model.HoldConverted
		h.OrderID = orderID
		h.UpdatedAt = at
		h.AppendEvent("converted", at, "order "+orderID)
		if err := writeHold(ctx, tx, h); err != nil {
			return err
		}
		if err := insertEvents(ctx, tx, tenant, h.ID, before, h.Events[before:]); err != nil {
			return err
		}
		converted = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return converted, nil
}

func (s *SqliteStore) GetIdempotency(ctx context.Context, tenant, key string) (*IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var expiresMs int64
	err := s.DB.QueryRowContext(ctx, `
		SELECT op, fingerprint, hold_id, payload, expires_at_ms FROM idempotency
		WHERE tenant_id = ? AND key = ?`, tenant, key).
		Scan(&rec.Op, &rec.Fingerprint, &rec.HoldID, &rec.Payload, &expiresMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("read idempotency record", err)
	}
	rec.ExpiresAt = time.UnixMilli(expiresMs)
	if !rec.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return &rec, nil
}

func (s *SqliteStore) PutIdempotency(ctx context.Context, tenant, key string, rec *IdempotencyRecord) error {
	// First writer wins while the row is live; an expired row left behind by
	// the prune cadence is replaced so the key regains replay protection.
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO idempotency (tenant_id, key, op, fingerprint, hold_id, payload, expires_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, key) DO UPDATE SET
			op = excluded.op, fingerprint = excluded.fingerprint,
			hold_id = excluded.hold_id, payload = excluded.payload,
			expires_at_ms = excluded.expires_at_ms
		WHERE idempotency.expires_at_ms <= ?`,
		tenant, key, rec.Op, rec.Fingerprint, rec.HoldID, rec.Payload, rec.ExpiresAt.UnixMilli(),
		time.Now().UnixMilli())
	if err != nil {
		return storageErr("write idempotency record", err)
	}
	return nil
}

func (s *SqliteStore) PruneIdempotency(ctx context.Context, now time.Time) (int, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM idempotency WHERE expires_at_ms <= ?`, now.UnixMilli())
	if err != nil {
		return 0, storageErr("prune idempotency records", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// --- row plumbing ---

const holdColumns = `
	SELECT tenant_id, hold_id, performance_id, owner, version, state,
		seats_json, order_id, created_at_ms, updated_at_ms, expires_at_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHold(row rowScanner) (*model.Hold, error) {
	var h model.Hold
	var state, seatsJSON string
	var createdMs, updatedMs, expiresMs int64
	err := row.Scan(&h.Tenant, &h.ID, &h.Performance, &h.Owner, &h.Version, &state,
		&seatsJSON, &h.OrderID, &createdMs, &updatedMs, &expiresMs)
	if err != nil {
		return nil, storageErr("scan hold", err)
	}
	if err := json.Unmarshal([]byte(seatsJSON), &h.Seats); err != nil {
		return nil, storageErr("decode seats", err)
	}
	h.State = model.HoldState(state)
	h.CreatedAt = time.UnixMilli(createdMs)
	h.UpdatedAt = time.UnixMilli(updatedMs)
	h.ExpiresAt = time.UnixMilli(expiresMs)
	return &h, nil
}

func loadHold(ctx context.Context, tx *sql.Tx, tenant, holdID string, withEvents bool) (*model.Hold, error) {
	row := tx.QueryRowContext(ctx, holdColumns+` FROM holds WHERE tenant_id = ? AND hold_id = ?`, tenant, holdID)
	h, err := scanHold(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !withEvents {
		return h, nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT type, at_ms, note FROM hold_events
		WHERE tenant_id = ? AND hold_id = ? ORDER BY seq`, tenant, holdID)
	if err != nil {
		return nil, storageErr("load hold events", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var ev model.HoldEvent
		var atMs int64
		if err := rows.Scan(&ev.Type, &atMs, &ev.Note); err != nil {
			return nil, storageErr("scan hold event", err)
		}
		ev.At = time.UnixMilli(atMs)
		h.Events = append(h.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("load hold events", err)
	}
	return h, nil
}

func writeHold(ctx context.Context, tx *sql.Tx, h *model.Hold) error {
	seats, err := json.Marshal(h.Seats)
	if err != nil {
		return storageErr("encode seats", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE holds SET state = ?, version = ?, owner = ?, seats_json = ?, order_id = ?,
			updated_at_ms = ?, expires_at_ms = ?
		WHERE tenant_id = ? AND hold_id = ?`,
		string(h.State), h.Version, h.Owner, string(seats), h.OrderID,
		h.UpdatedAt.UnixMilli(), h.ExpiresAt.UnixMilli(), h.Tenant, h.ID)
	if err != nil {
		return storageErr("update hold", err)
	}
	return nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, tenant, holdID string, startSeq int, events []model.HoldEvent) error {
	for i, ev := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO hold_events (tenant_id, hold_id, seq, type, at_ms, note)
			VALUES (?, ?, ?, ?, ?, ?)`,
			tenant, holdID, startSeq+i, ev.Type, ev.At.UnixMilli(), ev.Note)
		if err != nil {
			return storageErr("append hold event", err)
		}
	}
	return nil
}

func storageErr(what string, err error) error {
	return model.NewReasonError(model.RStorage, what+" failed", err)
}
