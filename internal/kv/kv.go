// Package kv is the key-value layer behind the proof-result cache, access
// grants, fixed-window counters and failure lockouts. Entries are
// advisory: a miss is never an error, and durable state lives in the
// database. Two backends exist: Redis for multi-instance deployments and
// a bounded in-process LRU.
package kv

import (
	"context"
	"time"
)

// Store is the minimal key-value contract the service depends on.
// Implementations must make SetNX and IncrWindow atomic.
type Store interface {
	// Get returns the value and true, or "" and false on a miss.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes a value with a TTL. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes only when the key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// IncrWindow increments a counter, starting its expiry window on the
	// first hit, and returns the new count and the time left in the window.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// TTL returns the remaining lifetime, or false when the key is absent.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
	// Delete removes a key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}
