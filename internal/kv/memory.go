package kv

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memEntry struct {
	value   string
	expires time.Time // zero means no expiry
}

func (e memEntry) live(now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

// Memory is a bounded in-process Store. When full, the least recently used
// key is evicted, which for a cache-only layer is equivalent to a miss.
type Memory struct {
	mu    sync.Mutex
	cache *lru.Cache[string, memEntry]
	now   func() time.Time
}

// NewMemory returns a Memory store holding at most size keys.
func NewMemory(size int) (*Memory, error) {
	c, err := lru.New[string, memEntry](size)
	if err != nil {
		return nil, fmt.Errorf("kv: memory store: %w", err)
	}
	return &Memory{cache: c, now: time.Now}, nil
}

// SetClock overrides the time source; used by tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Memory) getLocked(key string) (memEntry, bool) {
	e, ok := m.cache.Get(key)
	if !ok {
		return memEntry{}, false
	}
	if !e.live(m.now()) {
		m.cache.Remove(key)
		return memEntry{}, false
	}
	return e, true
}

func (m *Memory) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.getLocked(key)
	return e.value, ok, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Add(key, memEntry{value: value, expires: m.expiry(ttl)})
	return nil
}

// SetNX implements Store.
func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.getLocked(key); ok {
		return false, nil
	}
	m.cache.Add(key, memEntry{value: value, expires: m.expiry(ttl)})
	return true, nil
}

// IncrWindow implements Store.
func (m *Memory) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.getLocked(key)
	if !ok {
		e = memEntry{value: "0", expires: m.expiry(window)}
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("kv: %q is not a counter", key)
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	m.cache.Add(key, e)
	var left time.Duration
	if !e.expires.IsZero() {
		left = e.expires.Sub(m.now())
	}
	return n, left, nil
}

// TTL implements Store.
func (m *Memory) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.getLocked(key)
	if !ok {
		return 0, false, nil
	}
	if e.expires.IsZero() {
		return -1, true, nil
	}
	return e.expires.Sub(m.now()), true, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(key)
	return nil
}

// Len reports the number of resident keys, including expired ones not yet
// touched.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
