package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/zk-paygate/internal/domain"
	"github.com/tbourn/zk-paygate/internal/kv"
)

func newGrants(t *testing.T) (*Grants, *time.Time) {
	t.Helper()
	store, err := kv.NewMemory(64)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	now := time.Unix(1_700_000_000, 0).UTC()
	store.SetClock(func() time.Time { return now })
	g := New(store, 24*time.Hour)
	g.now = func() time.Time { return now }
	return g, &now
}

func TestGrant_HasAndExpiry(t *testing.T) {
	g, now := newGrants(t)
	ctx := context.Background()

	if g.Has(ctx, "article-1", "s1") {
		t.Fatalf("no grant yet")
	}
	exp, err := g.Grant(ctx, "article-1", "s1", 0)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if !exp.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("default ttl not applied: %v", exp)
	}
	if !g.Has(ctx, "article-1", "s1") {
		t.Fatalf("grant should be visible")
	}
	if g.Has(ctx, "article-2", "s1") {
		t.Fatalf("grant is per content")
	}

	*now = now.Add(25 * time.Hour)
	if g.Has(ctx, "article-1", "s1") {
		t.Fatalf("grant should lapse")
	}
}

func TestGrant_RequiresIDs(t *testing.T) {
	g, _ := newGrants(t)
	if _, err := g.Grant(context.Background(), "", "s", time.Hour); !errors.Is(err, domain.ErrMalformedInput) {
		t.Fatalf("expected malformed input, got %v", err)
	}
}

func TestExtend_FromExistingOrNow(t *testing.T) {
	g, now := newGrants(t)
	ctx := context.Background()

	exp, err := g.Extend(ctx, "c", "s", time.Hour)
	if err != nil || !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("extend without grant = %v, %v", exp, err)
	}
	exp2, err := g.Extend(ctx, "c", "s", time.Hour)
	if err != nil || !exp2.Equal(now.Add(2*time.Hour)) {
		t.Fatalf("extend live grant = %v, %v", exp2, err)
	}
	if _, err := g.Extend(ctx, "c", "s", 0); !errors.Is(err, domain.ErrMalformedInput) {
		t.Fatalf("zero extension must be rejected, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	g, _ := newGrants(t)
	ctx := context.Background()
	_, _ = g.Grant(ctx, "c", "s", time.Hour)
	if err := g.Revoke(ctx, "c", "s"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if g.Has(ctx, "c", "s") {
		t.Fatalf("revoked grant still visible")
	}
}

func TestHasBatch(t *testing.T) {
	g, _ := newGrants(t)
	ctx := context.Background()
	_, _ = g.Grant(ctx, "c1", "s1", time.Hour)

	out, err := g.HasBatch(ctx, []Item{{"c1", "s1"}, {"c2", "s1"}})
	if err != nil {
		t.Fatalf("HasBatch: %v", err)
	}
	if !out[0].HasAccess || out[0].ExpiresAt == nil || out[1].HasAccess {
		t.Fatalf("unexpected batch result: %+v", out)
	}

	big := make([]Item, MaxBatch+1)
	if _, err := g.HasBatch(ctx, big); !errors.Is(err, ErrBatchTooLarge) || !errors.Is(err, domain.ErrMalformedInput) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
	if _, err := g.HasBatch(ctx, nil); !errors.Is(err, domain.ErrMalformedInput) {
		t.Fatalf("empty batch must be malformed, got %v", err)
	}
}
