// Package rate holds the sandbox's fixed-window request limiter.
package rate

import (
	"sync"
	"time"
)

// Limiter decides whether another write may go through for a key.
type Limiter interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration)
}

// MemoryLimiter counts requests per key in fixed windows. A limit of zero or
// less disables limiting for that call.
type MemoryLimiter struct {
	mu    sync.Mutex
	store map[string]*bucket
	now   func() time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
	window  time.Duration
}

// Key scopes a limit to one write action of one API key.
func Key(action, apiKey string) string {
	return action + ":key:" + apiKey
}

func NewMemory() *MemoryLimiter {
	return &MemoryLimiter{store: make(map[string]*bucket), now: time.Now}
}

// WithClock replaces the limiter's time source.
func (m *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *MemoryLimiter) Allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 {
		return true, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.store[key]
	if !ok || !now.Before(b.resetAt) || b.window != window {
		b = &bucket{count: 0, resetAt: now.Add(window), window: window}
		m.store[key] = b
	}

	if b.count >= limit {
		return false, b.resetAt.Sub(now)
	}

	b.count++
	return true, b.resetAt.Sub(now)
}

// Prune drops expired windows and reports how many were removed.
func (m *MemoryLimiter) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for key, b := range m.store {
		if !now.Before(b.resetAt) {
			delete(m.store, key)
			n++
		}
	}
	return n
}
