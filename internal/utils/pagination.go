// Package utils provides small helpers for parsing request parameters.
package utils

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidCursor is returned for a cursor that is not a non-negative
// integer.
var ErrInvalidCursor = errors.New("cursor must be a non-negative integer")

// ParseID parses a positive integer id from a path segment. Zero, negative
// and malformed values report false.
func ParseID(s string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// ParseCursor parses a keyset pagination cursor, the id of the last item a
// client has seen. An empty value starts from the beginning.
//
//	c, _ := utils.ParseCursor("")   // 0
//	c, _ = utils.ParseCursor("42")  // 42
//	_, err := utils.ParseCursor("-1") // ErrInvalidCursor
func ParseCursor(s string) (uint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, ErrInvalidCursor
	}
	return uint(n), nil
}
