package broker

import (
	"context"
	"sync"
	"time"
)

// gate enforces a minimum interval between requests with a single permit —
// Kite's published limits are per-second, not a burst allowance, so a
// single-permit cooperative gate is sufficient (unlike the teacher's
// three-bucket per-category scheme, which modeled Polymarket's much higher
// burst limits).
type gate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newGate(interval time.Duration) *gate {
	return &gate{interval: interval}
}

// Wait blocks until the minimum interval since the last permit has
// elapsed, or ctx is cancelled.
func (g *gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	now := time.Now()
	wait := g.interval - now.Sub(g.last)
	if wait < 0 {
		wait = 0
	}
	g.last = now.Add(wait)
	g.mu.Unlock()

	if wait == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
