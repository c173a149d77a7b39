package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/zk-paygate/internal/services"
)

func TestQuoteOnce_ReplaysStoredSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	q1, replayed, err := h.svc.QuoteOnce(ctx, "client:shop", "order-42", "article-1", false)
	if err != nil || replayed {
		t.Fatalf("first QuoteOnce = (%v, %v)", replayed, err)
	}
	has, err := h.svc.HasQuote(ctx, "client:shop", "order-42")
	if err != nil || !has {
		t.Fatalf("HasQuote = (%v, %v); want true", has, err)
	}

	q2, replayed, err := h.svc.QuoteOnce(ctx, "client:shop", "order-42", "article-1", false)
	if err != nil || !replayed {
		t.Fatalf("retry QuoteOnce = (%v, %v); want replay", replayed, err)
	}
	if q2.SessionID != q1.SessionID || q2.Price != q1.Price || !q2.ExpiresAt.Equal(q1.ExpiresAt) {
		t.Fatalf("replayed quote %+v differs from %+v", q2, q1)
	}

	// Same key from another client is a different request.
	q3, replayed, err := h.svc.QuoteOnce(ctx, "client:other", "order-42", "article-1", false)
	if err != nil || replayed || q3.SessionID == q1.SessionID {
		t.Fatalf("other client should get a fresh session: replayed=%v err=%v", replayed, err)
	}
}

func TestQuoteOnce_KeyReuseWithDifferentBody(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, _, err := h.svc.QuoteOnce(ctx, "client:shop", "k1", "article-1", false); err != nil {
		t.Fatalf("QuoteOnce: %v", err)
	}
	_, _, err := h.svc.QuoteOnce(ctx, "client:shop", "k1", "article-1", true)
	if !errors.Is(err, services.ErrIdempotencyReuse) {
		t.Fatalf("err = %v; want ErrIdempotencyReuse", err)
	}
}

func TestQuoteOnce_EmptyKeyAndPurge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, replayed, err := h.svc.QuoteOnce(ctx, "client:shop", "", "article-1", false)
	if err != nil || replayed {
		t.Fatalf("QuoteOnce without key = (%v, %v)", replayed, err)
	}
	b, _, _ := h.svc.QuoteOnce(ctx, "client:shop", "", "article-1", false)
	if a.SessionID == b.SessionID {
		t.Fatal("unkeyed quotes must open distinct sessions")
	}

	h.svc.IdempotencyTTL = time.Minute
	if _, _, err := h.svc.QuoteOnce(ctx, "client:shop", "short", "article-1", false); err != nil {
		t.Fatalf("QuoteOnce: %v", err)
	}
	h.now = h.now.Add(2 * time.Minute)
	if has, _ := h.svc.HasQuote(ctx, "client:shop", "short"); has {
		t.Fatal("expired record should not be replayable")
	}
	n, err := h.svc.PurgeIdempotency(ctx)
	if err != nil || n != 1 {
		t.Fatalf("PurgeIdempotency = (%d, %v); want 1", n, err)
	}
}
