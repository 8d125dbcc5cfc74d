package crawler

import (
	"context"
	"sync"
	"time"

	"github.com/atlasdir/site-crawler/internal/metrics"
)

// Default rate gate settings: capacity grants per window.
const (
	DefaultRateLimit  = 1000
	DefaultRateWindow = time.Second
)

// RateGate bounds outbound fetch throughput with a fixed-window counter.
// Acquire never drops a request; it only delays. The counter and the
// window-start timestamp form a single mutex-guarded unit, held only for
// the increment decision, never across a network call.
type RateGate struct {
	mu          sync.Mutex
	capacity    int
	window      time.Duration
	windowStart time.Time
	count       int
}

// NewRateGate creates a gate granting capacity requests per window.
// Non-positive arguments fall back to the defaults.
func NewRateGate(capacity int, window time.Duration) *RateGate {
	if capacity <= 0 {
		capacity = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateGate{
		capacity: capacity,
		window:   window,
	}
}

// Acquire blocks until a slot is available in the current window, then
// returns. It fails only when the context is done first.
func (g *RateGate) Acquire(ctx context.Context) error {
	start := time.Now()
	for {
		g.mu.Lock()
		now := time.Now()
		if now.Sub(g.windowStart) >= g.window {
			g.windowStart = now
			g.count = 0
		}
		if g.count < g.capacity {
			g.count++
			g.mu.Unlock()
			if waited := time.Since(start); waited > time.Millisecond {
				metrics.ObserveRateGateDelay(waited)
			}
			return nil
		}
		wait := g.window - now.Sub(g.windowStart)
		g.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
