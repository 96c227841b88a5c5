package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIdempotency_GetCreate_DuplicateAndExpiry(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := GetIdempotency(ctx, db, 1, 2, "  ", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank key should be ErrNotFound, got %v", err)
	}
	if _, err := GetIdempotency(ctx, db, 1, 2, "k", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing key should be ErrNotFound, got %v", err)
	}

	rec, err := CreateIdempotency(ctx, db, 1, 2, "k", 10, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == 0 || !rec.ExpiresAt.After(now) {
		t.Fatalf("unexpected record: %+v", rec)
	}
	got, err := GetIdempotency(ctx, db, 1, 2, "k", now)
	if err != nil || got.MessageID != 10 {
		t.Fatalf("GetIdempotency = %+v, %v", got, err)
	}

	if _, err := CreateIdempotency(ctx, db, 1, 2, "k", 11, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// past the window the record is invisible and can be replaced
	later := now.Add(2 * time.Hour)
	if _, err := GetIdempotency(ctx, db, 1, 2, "k", later); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired record should be ErrNotFound, got %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, 1, 2, "short", 12, -time.Second); err != nil {
		t.Fatalf("seed expired: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, 1, 2, "short", 13, time.Hour); err != nil {
		t.Fatalf("expired record should be replaced, got %v", err)
	}

	if _, err := CreateIdempotency(ctx, db, 1, 3, "gone", 14, -time.Second); err != nil {
		t.Fatalf("seed expired: %v", err)
	}
	n, err := DeleteExpiredIdempotency(ctx, db, time.Now().UTC())
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredIdempotency = %d, %v", n, err)
	}
}
