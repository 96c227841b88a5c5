package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCleanKey(t *testing.T) {
	ok := map[string]string{
		"avatars/a.png":      "avatars/a.png",
		"avatars//x/./b.jpg": "avatars/x/b.jpg",
		`avatars\win\c.gif`:  "avatars/win/c.gif",
	}
	for in, want := range ok {
		got, err := CleanKey(in)
		if err != nil || got != want {
			t.Fatalf("CleanKey(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "  ", "/etc/passwd", "../x", "a/../../x", "."} {
		if _, err := CleanKey(bad); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("CleanKey(%q) should fail, got %v", bad, err)
		}
	}
}

func TestLocalStore_PutURLDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	s, err := NewLocalStore(dir, "https://cdn.test/files/")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "avatars/u1.png", strings.NewReader("PNG"), "image/png"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "avatars", "u1.png"))
	if err != nil || string(b) != "PNG" {
		t.Fatalf("stored content = %q, %v", b, err)
	}
	if u := s.URL("avatars/u1.png"); u != "https://cdn.test/files/avatars/u1.png" {
		t.Fatalf("URL = %q", u)
	}
	if u := s.URL("../x"); u != "" {
		t.Fatalf("URL of invalid key should be empty, got %q", u)
	}

	if err := s.Put(ctx, "../escape", strings.NewReader("x"), ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}

	if err := s.Delete(ctx, "avatars/u1.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "avatars/u1.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := s.Put(cctx, "a/b", strings.NewReader("x"), ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
