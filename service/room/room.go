// Package room derives the deterministic conversation identity for a pair
// of participants.
package room

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// GenerateRoomID maps an unordered identity pair to a stable room id: the
// md5 hex digest of the lexicographically sorted pair. Both participants
// compute the same id regardless of who initiates, and the id is recomputed
// on every call rather than persisted anywhere.
//
// The room id doubles as the storage partition key, the broker topic suffix
// and the transport-level grouping key.
func GenerateRoomID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	sum := md5.Sum([]byte(strings.Join(pair, ",")))
	return hex.EncodeToString(sum[:])
}
