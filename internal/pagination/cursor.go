// Package pagination provides cursor-based pagination over the audit
// ledger's sequence numbers.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// Encode returns an opaque cursor string for a ledger sequence.
func Encode(sequence uint64) string {
	raw := strconv.FormatUint(sequence, 10)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor string. Returns 0 for empty input.
func Decode(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor")
	}
	seq, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor")
	}
	return seq, nil
}

// ComputePage takes a slice of items (fetched with limit+1), the requested
// limit, and a function extracting the sequence from the last item.
// Returns the trimmed items, next cursor, and has_more flag.
func ComputePage[T any](items []T, limit int, sequenceOf func(T) uint64) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	return items, Encode(sequenceOf(items[len(items)-1])), true
}
