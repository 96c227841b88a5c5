// Package blob stores uploaded media behind a key-addressed Store. The local
// disk adapter writes under a root directory and serves objects from a
// public URL prefix.
package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidKey is returned for empty keys or keys escaping the root.
	ErrInvalidKey = errors.New("invalid key")
	// ErrNotFound is returned when deleting a key that does not exist.
	ErrNotFound = errors.New("object not found")
)

// Store persists objects by key and reports their retrievable URL.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// LocalStore keeps objects as files under Dir.
type LocalStore struct {
	Dir     string
	BaseURL string
}

// NewLocalStore creates dir if needed and returns a store rooted there.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// CleanKey normalizes key to a relative slash path, rejecting traversal.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", ErrInvalidKey
		}
	}
	clean := path.Clean(key)
	if clean == "." {
		return "", ErrInvalidKey
	}
	return clean, nil
}

func (s *LocalStore) file(key string) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, filepath.FromSlash(k)), nil
}

// Put writes r to key, replacing any existing object.
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.file(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// Delete removes key.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.file(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// URL returns the public URL of key.
func (s *LocalStore) URL(key string) string {
	k, err := CleanKey(key)
	if err != nil {
		return ""
	}
	return s.BaseURL + "/" + k
}
