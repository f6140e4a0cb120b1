// Package dedup remembers inbound message ids so replays are ignored.
package dedup

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long a message id is remembered.
const DefaultTTL = 5 * time.Minute

// Cache marks message ids as seen.
type Cache interface {
	// Seen atomically records id and reports whether it was already present.
	Seen(ctx context.Context, id string) (bool, error)
}

// Memory is an in-process Cache with lazy expiry.
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]time.Time
	ops   int
}

// NewMemory creates a Memory cache. A nil clock uses time.Now.
func NewMemory(ttl time.Duration, now func() time.Time) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{ttl: ttl, now: now, items: map[string]time.Time{}}
}

// Seen implements Cache.
func (m *Memory) Seen(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.ops++
	if m.ops%256 == 0 {
		m.purgeLocked(now)
	}
	if exp, ok := m.items[id]; ok && now.Before(exp) {
		return true, nil
	}
	m.items[id] = now.Add(m.ttl)
	return false, nil
}

// Len returns the number of ids held, including expired ones not yet purged.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Memory) purgeLocked(now time.Time) {
	for id, exp := range m.items {
		if !now.Before(exp) {
			delete(m.items, id)
		}
	}
}
