package broker

import (
	"context"
	"testing"
	"time"
)

func TestGateEnforcesMinimumInterval(t *testing.T) {
	t.Parallel()
	g := newGate(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	if err := g.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := g.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 50*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 50ms between two permits", elapsed)
	}
}

func TestGateRespectsContextCancellation(t *testing.T) {
	t.Parallel()
	g := newGate(time.Hour)
	ctx := context.Background()
	if err := g.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := g.Wait(cancelCtx); err == nil {
		t.Error("Wait() with near-immediate deadline = nil error, want context deadline error")
	}
}
