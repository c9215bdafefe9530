package searchservice

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Cursor is an opaque pagination handle: the version a page of results
// was drawn from, plus the per-sheet row count already returned, so the
// next page's query can resume past exactly those rows.
type Cursor struct {
	VersionKey string
	Offsets    map[string]int
}

// EncodeCursor returns a canonical base64 string of the form:
//
//	"<version>|sheet1=3,sheet2=7"
//
// with the sheet pairs sorted, adapted from a row-edit handle encoding
// and repurposed here for per-sheet pagination offsets instead of
// primary-key columns.
func EncodeCursor(c Cursor) string {
	pairs := make([]string, 0, len(c.Offsets))
	for sheet, offset := range c.Offsets {
		pairs = append(pairs, fmt.Sprintf("%s=%d", sheet, offset))
	}
	sort.Strings(pairs)
	raw := fmt.Sprintf("%s|%s", c.VersionKey, strings.Join(pairs, ","))
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor string in the same format.
func DecodeCursor(s string) (Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	parts := strings.SplitN(string(b), "|", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("malformed cursor")
	}

	offsets := make(map[string]int)
	if parts[1] != "" {
		for _, kv := range strings.Split(parts[1], ",") {
			pair := strings.SplitN(kv, "=", 2)
			if len(pair) != 2 {
				continue
			}
			n, err := strconv.Atoi(pair[1])
			if err != nil {
				return Cursor{}, fmt.Errorf("malformed offset for sheet %q: %w", pair[0], err)
			}
			offsets[pair[0]] = n
		}
	}

	return Cursor{VersionKey: parts[0], Offsets: offsets}, nil
}
