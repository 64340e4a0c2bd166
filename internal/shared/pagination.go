package shared

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Page size bounds for keyset listings.
const (
	DefaultPageSize = 100
	MaxPageSize     = 500
)

// ErrInvalidCursor indicates a page token that cannot be decoded.
var ErrInvalidCursor = errors.New("invalid page token")

// Cursor marks the last row of a page ordered by (date, id).
type Cursor struct {
	Date time.Time
	ID   int64
}

// ClampPageSize applies the default and maximum page size.
func ClampPageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// EncodeCursor renders c as an opaque token.
func EncodeCursor(c Cursor) string {
	raw := c.Date.Format(time.DateOnly) + "|" + strconv.FormatInt(c.ID, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return Cursor{}, ErrInvalidCursor
	}
	date, err := time.Parse(time.DateOnly, parts[0])
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: date: %v", ErrInvalidCursor, err)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return Cursor{}, fmt.Errorf("%w: id", ErrInvalidCursor)
	}
	return Cursor{Date: date, ID: id}, nil
}
