// Package pagination pages through time-ordered in-memory lists with
// opaque cursors.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Page size bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ErrInvalidCursor is returned for cursors this package did not produce.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor marks one item: its timestamp and ID.
type Cursor struct {
	At time.Time
	ID string
}

// Encode returns an opaque cursor string from a timestamp and ID.
func Encode(at time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", at.UnixNano(), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor string. Returns nil for empty input.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanos, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{At: time.Unix(0, n).UTC(), ID: id}, nil
}

// ParseLimit reads a page size. Empty means DefaultLimit; values above
// MaxLimit are clamped.
func ParseLimit(s string) (int, error) {
	if s == "" {
		return DefaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return min(n, MaxLimit), nil
}

// Before returns up to limit items immediately preceding cur, oldest
// first, from items sorted oldest first. A nil cursor starts after the
// newest item. The returned cursor fetches the next older page and is
// empty when there is none.
//
// A cursor whose item is gone (trimmed from a bounded list) resumes at the
// first item not older than its timestamp.
func Before[T any](items []T, cur *Cursor, limit int, key func(T) (time.Time, string)) ([]T, string, bool) {
	end := len(items)
	if cur != nil {
		end = position(items, cur, key)
	}
	start := max(0, end-limit)
	page := items[start:end]
	if start == 0 {
		return page, "", false
	}
	at, id := key(items[start])
	return page, Encode(at, id), true
}

func position[T any](items []T, cur *Cursor, key func(T) (time.Time, string)) int {
	for i, item := range items {
		if _, id := key(item); id == cur.ID {
			return i
		}
	}
	for i, item := range items {
		if at, _ := key(item); !at.Before(cur.At) {
			return i
		}
	}
	return len(items)
}
