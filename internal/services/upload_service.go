package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-social-backend/internal/blob"
)

// DefaultUploadDir is the key prefix used when the client names none.
const DefaultUploadDir = "uploads"

// UploadedFile is the location of a stored file.
type UploadedFile struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// UploadService stores user media in a blob.Store under generated keys.
type UploadService struct {
	Store    blob.Store
	MaxBytes int64
}

// Upload stores r under "<dir>/<uuid><ext>", where ext comes from filename.
// size is the declared length; -1 when unknown.
func (s *UploadService) Upload(ctx context.Context, dir, filename, contentType string, size int64, r io.Reader) (*UploadedFile, error) {
	tr := otel.Tracer("services/UploadService")
	ctx, span := tr.Start(ctx, "Upload",
		trace.WithAttributes(
			attribute.String("upload.dir", dir),
			attribute.Int64("upload.size", size),
		),
	)
	defer span.End()

	if r == nil || size == 0 {
		return nil, ErrFileRequired
	}
	if s.MaxBytes > 0 && size > s.MaxBytes {
		return nil, ErrFileTooLarge
	}
	if strings.TrimSpace(dir) == "" {
		dir = DefaultUploadDir
	}
	prefix, err := blob.CleanKey(dir)
	if err != nil {
		return nil, ErrInvalidUploadKey
	}
	key := prefix + "/" + uuid.NewString() + strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, "\\", "/"))))

	body := r
	if s.MaxBytes > 0 {
		body = &limitedReader{r: r, n: s.MaxBytes}
	}
	if err := s.Store.Put(ctx, key, body, contentType); err != nil {
		if errors.Is(err, errUploadTooLarge) {
			return nil, ErrFileTooLarge
		}
		return nil, fmt.Errorf("store upload: %w", err)
	}
	span.SetAttributes(attribute.String("upload.key", key))
	return &UploadedFile{URL: s.Store.URL(key), Key: key}, nil
}

// Delete removes the file stored under key.
func (s *UploadService) Delete(ctx context.Context, key string) error {
	tr := otel.Tracer("services/UploadService")
	ctx, span := tr.Start(ctx, "Delete", trace.WithAttributes(attribute.String("upload.key", key)))
	defer span.End()

	if _, err := blob.CleanKey(key); err != nil {
		return ErrInvalidUploadKey
	}
	if err := s.Store.Delete(ctx, key); err != nil {
		switch {
		case errors.Is(err, blob.ErrNotFound):
			return ErrUploadNotFound
		case errors.Is(err, blob.ErrInvalidKey):
			return ErrInvalidUploadKey
		}
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}

var errUploadTooLarge = errors.New("upload exceeds limit")

// limitedReader fails once more than n bytes have been read.
type limitedReader struct {
	r io.Reader
	n int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n -= int64(n)
	if l.n < 0 {
		return n, errUploadTooLarge
	}
	return n, err
}
