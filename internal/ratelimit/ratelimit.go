// Package ratelimit implements fixed-window counters over a kv.Store. It
// backs the per-client bridge limiter and the per-nullifier failure
// lockout; the edge token bucket lives in the HTTP middleware.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/zk-paygate/internal/kv"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

// FixedWindow allows at most Limit hits per Window for each key.
type FixedWindow struct {
	store  kv.Store
	prefix string
	limit  int
	window time.Duration
}

// NewFixedWindow builds a limiter whose keys are namespaced by prefix.
func NewFixedWindow(store kv.Store, prefix string, limit int, window time.Duration) *FixedWindow {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &FixedWindow{store: store, prefix: prefix, limit: limit, window: window}
}

// Allow counts one hit for key. Store failures fail open and are logged.
func (f *FixedWindow) Allow(ctx context.Context, key string) Decision {
	n, left, err := f.store.IncrWindow(ctx, f.prefix+key, f.window)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("limiter", f.prefix).Msg("rate limiter store unavailable; allowing")
		return Decision{Allowed: true, Limit: f.limit}
	}
	d := Decision{Allowed: n <= int64(f.limit), Count: n, Limit: f.limit}
	if !d.Allowed {
		d.RetryAfter = left
	}
	return d
}

// Exceeded reports whether key is already over the limit without counting
// a hit. Missing counters and store failures report false.
func (f *FixedWindow) Exceeded(ctx context.Context, key string) (bool, time.Duration) {
	v, ok, err := f.store.Get(ctx, f.prefix+key)
	if err != nil || !ok {
		return false, 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < int64(f.limit) {
		return false, 0
	}
	left, _, _ := f.store.TTL(ctx, f.prefix+key)
	return true, left
}

// Record counts one hit for key without making a decision.
func (f *FixedWindow) Record(ctx context.Context, key string) {
	if _, _, err := f.store.IncrWindow(ctx, f.prefix+key, f.window); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("limiter", f.prefix).Msg("rate limiter record failed")
	}
}

// Reset clears the counter for key.
func (f *FixedWindow) Reset(ctx context.Context, key string) {
	_ = f.store.Delete(ctx, f.prefix+key)
}
