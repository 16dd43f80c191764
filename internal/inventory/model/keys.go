// SPDX-License-Identifier: MIT

package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Lock keys follow the grammar
//
//	hold:v1:{<tenant>:<performance>}:<seat>
//
// The braced section is a Redis hash tag: every seat of one performance maps
// to the same slot, which is what lets the acquire script touch all keys of a
// request atomically on a cluster.
const keyPrefix = "hold:v1:{"

// Partition names the (tenant, performance) scope used for hash tags, event
// ordering and version counters.
func Partition(tenant, performance string) string {
	return tenant + ":" + performance
}

// HoldKey builds the ledger key for one seat.
func HoldKey(tenant, performance, seat string) string {
	return keyPrefix + tenant + ":" + performance + "}:" + seat
}

// HoldKeys builds ledger keys for a seat batch, preserving order.
func HoldKeys(tenant, performance string, seats []string) []string {
	keys := make([]string, len(seats))
	for i, s := range seats {
		keys[i] = HoldKey(tenant, performance, s)
	}
	return keys
}

// ScanPattern returns the MATCH pattern covering every seat of a performance.
func ScanPattern(tenant, performance string) string {
	return keyPrefix + tenant + ":" + performance + "}:*"
}

// SeatFromKey extracts the seat id from a ledger key. It returns false when
// the key does not follow the grammar.
func SeatFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, keyPrefix) {
		return "", false
	}
	rest := key[len(keyPrefix):]
	idx := strings.Index(rest, "}:")
	if idx < 0 {
		return "", false
	}
	seat := rest[idx+2:]
	if seat == "" {
		return "", false
	}
	return seat, true
}

// LockRecord is the decoded ledger value "<version>:<owner>".
type LockRecord struct {
	Version int64
	Owner   string
}

// Encode renders the ledger wire value.
func (r LockRecord) Encode() string {
	return strconv.FormatInt(r.Version, 10) + ":" + r.Owner
}

// DecodeLockRecord parses a ledger value. The version never contains a colon,
// so the split happens at the first one; owners may contain colons.
func DecodeLockRecord(value string) (LockRecord, error) {
	idx := strings.IndexByte(value, ':')
	if idx <= 0 {
		return LockRecord{}, fmt.Errorf("malformed lock record %q", value)
	}
	version, err := strconv.ParseInt(value[:idx], 10, 64)
	if err != nil {
		return LockRecord{}, fmt.Errorf("malformed lock record version in %q: %w", value, err)
	}
	return LockRecord{Version: version, Owner: value[idx+1:]}, nil
}
