package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetIdempotency_BlankKey_ReturnsNotFound(t *testing.T) {
	db := newRepoDB(t)
	rec, err := GetIdempotency(context.Background(), db, "client:a", "quote", "   ", time.Now().UTC())
	if rec != nil || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected (nil, ErrNotFound) for blank key, got (%v, %v)", rec, err)
	}
}

func TestIdempotency_CreateGetAndScope(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, "client:a", "quote", "k1", "sess-1", 200, time.Hour, now)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || !rec.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("record = %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "client:a", "quote", "k1", now)
	if err != nil {
		t.Fatalf("GetIdempotency: %v", err)
	}
	if got.SessionID != "sess-1" || got.Status != 200 {
		t.Fatalf("got %+v", got)
	}

	// Same key under another client or scope is independent.
	if _, err := GetIdempotency(ctx, db, "client:b", "quote", "k1", now); !IsNotFound(err) {
		t.Fatalf("other client should miss, got %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "client:a", "pay", "k1", now); !IsNotFound(err) {
		t.Fatalf("other scope should miss, got %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "client:b", "quote", "k1", "sess-2", 200, time.Hour, now); err != nil {
		t.Fatalf("other client create: %v", err)
	}
}

func TestCreateIdempotency_Duplicate(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := CreateIdempotency(ctx, db, "client:a", "quote", "dup", "s1", 200, time.Hour, now); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := CreateIdempotency(ctx, db, "client:a", "quote", "dup", "s2", 200, time.Hour, now)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestIdempotency_ExpiryAndPurge(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := CreateIdempotency(ctx, db, "client:a", "quote", "old", "s1", 200, time.Minute, now.Add(-2*time.Minute)); err != nil {
		t.Fatalf("create old: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "client:a", "quote", "new", "s2", 200, time.Hour, now); err != nil {
		t.Fatalf("create new: %v", err)
	}

	if _, err := GetIdempotency(ctx, db, "client:a", "quote", "old", now); !IsNotFound(err) {
		t.Fatalf("expired record must not be returned, got %v", err)
	}

	n, err := PurgeIdempotency(ctx, db, now)
	if err != nil {
		t.Fatalf("PurgeIdempotency: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	if _, err := GetIdempotency(ctx, db, "client:a", "quote", "new", now); err != nil {
		t.Fatalf("live record purged: %v", err)
	}
}
