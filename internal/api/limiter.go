package api

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lalithlochan/pushwatch/internal/redis"
)

// MemoryLimiter is a per-key token bucket for single-instance deployments
// without Redis. Buckets idle for longer than the window are dropped by a
// sweep that runs at most once per window.
type MemoryLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter allows limit requests per window for each key.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow consumes one token for key.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (*redis.RateLimitResult, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) >= m.window {
		m.evict(now)
		m.lastSweep = now
	}

	b, ok := m.buckets[key]
	if !ok {
		every := m.window / time.Duration(m.limit)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), m.limit)}
		m.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	resetAt := now
	if tokens < 1 {
		missing := 1 - tokens
		resetAt = now.Add(time.Duration(missing * float64(m.window) / float64(m.limit)))
	}

	return &redis.RateLimitResult{
		Allowed:   allowed,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetAt:   resetAt,
	}, nil
}

func (m *MemoryLimiter) evict(now time.Time) {
	for key, b := range m.buckets {
		if now.Sub(b.lastSeen) > m.window {
			delete(m.buckets, key)
		}
	}
}
