package utils

import (
	"errors"
	"testing"
)

func TestParseID(t *testing.T) {
	cases := []struct {
		s      string
		want   uint
		wantOK bool
	}{
		{"1", 1, true},
		{" 42 ", 42, true},
		{"0012", 12, true},
		{"0", 0, false},
		{"", 0, false},
		{"-3", 0, false},
		{"x", 0, false},
		{"999999999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseID(tc.s)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("ParseID(%q) = %d,%v; want %d,%v", tc.s, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestParseCursor(t *testing.T) {
	cases := []struct {
		s       string
		want    uint
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"0", 0, false},
		{"17", 17, false},
		{"-1", 0, true},
		{"abc", 0, true},
		{"1.5", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseCursor(tc.s)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidCursor) {
				t.Fatalf("ParseCursor(%q) err = %v; want ErrInvalidCursor", tc.s, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseCursor(%q) = %d,%v; want %d", tc.s, got, err, tc.want)
		}
	}
}
