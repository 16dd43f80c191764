// SPDX-License-Identifier: MIT

package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ownerHashLen is the number of hex characters of the owner digest carried in
// a hold token. The full owner id never leaves the engine.
const ownerHashLen = 16

// OwnerHash returns the truncated SHA-256 digest of an owner id.
func OwnerHash(owner string) string {
	sum := sha256.Sum256([]byte(owner))
	return hex.EncodeToString(sum[:])[:ownerHashLen]
}

// FormatToken renders the fencing token handed to clients:
// "<version>:<owner_hash>".
func FormatToken(version int64, owner string) string {
	return strconv.FormatInt(version, 10) + ":" + OwnerHash(owner)
}

// ParseToken splits a client token into version and owner hash.
func ParseToken(token string) (version int64, ownerHash string, err error) {
	idx := strings.IndexByte(token, ':')
	if idx <= 0 || idx == len(token)-1 {
		return 0, "", fmt.Errorf("malformed hold token")
	}
	version, err = strconv.ParseInt(token[:idx], 10, 64)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("malformed hold token version")
	}
	ownerHash = token[idx+1:]
	if len(ownerHash) != ownerHashLen {
		return 0, "", fmt.Errorf("malformed hold token digest")
	}
	for _, c := range ownerHash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return 0, "", fmt.Errorf("malformed hold token digest")
		}
	}
	return version, ownerHash, nil
}

// TokenMatches verifies a parsed token against the authoritative version and
// owner of a hold.
func TokenMatches(version int64, ownerHash string, hold *Hold) bool {
	return hold != nil && hold.Version == version && OwnerHash(hold.Owner) == ownerHash
}
