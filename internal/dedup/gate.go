// Package dedup suppresses repeat notifications for the same tag inside a
// time window.
package dedup

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is how long a tag blocks further sends.
const DefaultWindow = 5 * time.Minute

// Gate decides whether a notification with the given tag may be sent now.
// A true result records the send; callers must not call it speculatively.
type Gate interface {
	ShouldSend(ctx context.Context, tag string, now time.Time) bool
}

// pruneAbove bounds the map when one-off tags (manual sends) pile up.
const pruneAbove = 256

// MemoryGate is a process-local Gate. State is lost on restart.
type MemoryGate struct {
	mu       sync.Mutex
	window   time.Duration
	lastSent map[string]time.Time
}

// NewMemoryGate creates a MemoryGate. A non-positive window uses DefaultWindow.
func NewMemoryGate(window time.Duration) *MemoryGate {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryGate{
		window:   window,
		lastSent: make(map[string]time.Time),
	}
}

// ShouldSend reports whether tag is outside its window and, if so, marks it sent at now.
func (g *MemoryGate) ShouldSend(_ context.Context, tag string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.lastSent[tag]; ok && now.Sub(last) < g.window {
		return false
	}

	if len(g.lastSent) >= pruneAbove {
		g.prune(now)
	}
	g.lastSent[tag] = now

	return true
}

// Len returns the number of tracked tags.
func (g *MemoryGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.lastSent)
}

func (g *MemoryGate) prune(now time.Time) {
	for tag, last := range g.lastSent {
		if now.Sub(last) >= g.window {
			delete(g.lastSent, tag)
		}
	}
}
