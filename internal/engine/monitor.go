package engine

import (
	"context"
	"time"
)

// positionMonitorInterval bounds how stale is_running's effect on this
// loop can be: spec.md's cancellation table cites "worst-case 1s for the
// position monitor" as the longest a long-running task may take to
// observe stop_trading.
const positionMonitorInterval = 1 * time.Second

// runPositionMonitor periodically logs the size of the active-trades set.
// It is the hook a future health check or dashboard feed would attach to;
// today it only observes is_running at a bounded interval, as spec.md's
// concurrency model requires of every long-running duty.
func (e *Engine) runPositionMonitor(ctx context.Context) {
	ticker := time.NewTicker(positionMonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.IsRunning() {
				continue
			}
			e.activeMu.RLock()
			count := len(e.activeTrades)
			e.activeMu.RUnlock()
			e.logger.Debug("position monitor tick", "active_trades", count)
		}
	}
}
