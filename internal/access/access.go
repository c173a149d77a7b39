// Package access records which sessions may read which content. A grant
// is a kv entry "access:<content>:<session>" holding the expiry as unix
// seconds with a matching TTL. A miss means no access; the confirmed
// session row remains the durable record and can re-issue the grant.
package access

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tbourn/zk-paygate/internal/domain"
	"github.com/tbourn/zk-paygate/internal/kv"
)

// MaxBatch bounds HasBatch requests.
const MaxBatch = 10

// Item identifies one (content, session) pair.
type Item struct {
	ContentID string `json:"contentId"`
	SessionID string `json:"sessionId"`
}

// Status is the access state of one Item.
type Status struct {
	Item
	HasAccess bool       `json:"hasAccess"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Grants issues and checks access grants.
type Grants struct {
	store kv.Store
	ttl   time.Duration
	now   func() time.Time
}

// New returns Grants with the given default lifetime.
func New(store kv.Store, ttl time.Duration) *Grants {
	return &Grants{store: store, ttl: ttl, now: time.Now}
}

func key(contentID, sessionID string) string {
	return "access:" + contentID + ":" + sessionID
}

// Grant gives sessionID access to contentID for ttl (the default when ttl
// is zero) and returns the expiry.
func (g *Grants) Grant(ctx context.Context, contentID, sessionID string, ttl time.Duration) (time.Time, error) {
	if contentID == "" || sessionID == "" {
		return time.Time{}, fmt.Errorf("%w: content and session are required", domain.ErrMalformedInput)
	}
	if ttl <= 0 {
		ttl = g.ttl
	}
	exp := g.now().Add(ttl).UTC()
	if err := g.store.Set(ctx, key(contentID, sessionID), strconv.FormatInt(exp.Unix(), 10), ttl); err != nil {
		return time.Time{}, err
	}
	return exp, nil
}

// Expiry returns the grant's expiry, or false when there is no live grant.
func (g *Grants) Expiry(ctx context.Context, contentID, sessionID string) (time.Time, bool, error) {
	v, ok, err := g.store.Get(ctx, key(contentID, sessionID))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	exp := time.Unix(secs, 0).UTC()
	if !g.now().Before(exp) {
		return time.Time{}, false, nil
	}
	return exp, true, nil
}

// Has reports whether a live grant exists. Store errors count as no access.
func (g *Grants) Has(ctx context.Context, contentID, sessionID string) bool {
	_, ok, err := g.Expiry(ctx, contentID, sessionID)
	return err == nil && ok
}

// Extend pushes the expiry to max(existing, now) + d.
func (g *Grants) Extend(ctx context.Context, contentID, sessionID string, d time.Duration) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, fmt.Errorf("%w: extension must be positive", domain.ErrMalformedInput)
	}
	now := g.now().UTC()
	base := now
	if exp, ok, err := g.Expiry(ctx, contentID, sessionID); err != nil {
		return time.Time{}, err
	} else if ok && exp.After(now) {
		base = exp
	}
	newExp := base.Add(d)
	if err := g.store.Set(ctx, key(contentID, sessionID), strconv.FormatInt(newExp.Unix(), 10), newExp.Sub(now)); err != nil {
		return time.Time{}, err
	}
	return newExp, nil
}

// Revoke removes a grant.
func (g *Grants) Revoke(ctx context.Context, contentID, sessionID string) error {
	return g.store.Delete(ctx, key(contentID, sessionID))
}

// ErrBatchTooLarge is returned by HasBatch for more than MaxBatch items.
var ErrBatchTooLarge = fmt.Errorf("%w: at most %d items per batch", domain.ErrMalformedInput, MaxBatch)

// HasBatch checks up to MaxBatch items in order.
func (g *Grants) HasBatch(ctx context.Context, items []Item) ([]Status, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty batch", domain.ErrMalformedInput)
	}
	if len(items) > MaxBatch {
		return nil, ErrBatchTooLarge
	}
	out := make([]Status, 0, len(items))
	for _, it := range items {
		st := Status{Item: it}
		if exp, ok, err := g.Expiry(ctx, it.ContentID, it.SessionID); err == nil && ok {
			st.HasAccess = true
			e := exp
			st.ExpiresAt = &e
		}
		out = append(out, st)
	}
	return out, nil
}
