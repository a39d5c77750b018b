package engine

import (
	"context"
	"time"

	"hedgexd/pkg/types"
)

// reconcilerInterval is how often the reconciler polls the broker's order
// book for status updates on active trades.
const reconcilerInterval = 5 * time.Second

// runReconciler polls the broker's order book every 5s while the engine
// runs, maps broker status onto local TradeStatus, and writes confirmed
// transitions through to the store. The risk ledger is not touched here:
// submitOne already applied the trade's effect on net qty, VWAP, and the
// daily counters synchronously at submission time, so this loop is purely
// status bookkeeping plus active-trade set cleanup.
func (e *Engine) runReconciler(ctx context.Context) {
	ticker := time.NewTicker(reconcilerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.reconcileOnce(ctx)
		}
	}
}

func (e *Engine) reconcileOnce(ctx context.Context) {
	e.activeMu.RLock()
	active := make([]activeTrade, 0, len(e.activeTrades))
	for _, at := range e.activeTrades {
		if at.trade.BrokerOrderID != "" {
			active = append(active, at)
		}
	}
	e.activeMu.RUnlock()

	if len(active) == 0 {
		return
	}

	orders, err := e.broker.GetOrders()
	if err != nil {
		e.logger.Error("reconciler: failed to fetch order book", "error", err)
		return
	}
	statusByOrderID := make(map[string]string, len(orders))
	for _, o := range orders {
		statusByOrderID[o.OrderID] = o.Status
	}

	for _, at := range active {
		rawStatus, ok := statusByOrderID[at.trade.BrokerOrderID]
		if !ok {
			continue
		}
		e.applyBrokerStatus(ctx, at.trade, rawStatus)
	}
}

// mapBrokerStatus maps Kite's raw order status onto the local TradeStatus
// state machine. Anything unrecognized is treated as still in flight.
func mapBrokerStatus(raw string) types.TradeStatus {
	switch raw {
	case "COMPLETE":
		return types.StatusExecuted
	case "CANCELLED":
		return types.StatusCancelled
	case "REJECTED":
		return types.StatusFailed
	default:
		return types.StatusPending
	}
}

func (e *Engine) applyBrokerStatus(ctx context.Context, trade types.Trade, rawStatus string) {
	next := mapBrokerStatus(rawStatus)
	if next == types.StatusPending || next == trade.Status {
		return
	}
	if !trade.Status.CanTransitionTo(next) {
		return
	}

	now := time.Now().UTC()
	if err := e.store.UpdateTradeStatus(ctx, trade.ID, next, trade.BrokerOrderID, now); err != nil {
		e.logger.Error("reconciler: failed to update trade status",
			"trade_id", trade.ID, "next_status", next, "error", err)
		return
	}

	trade.Status = next
	trade.UpdatedAt = now
	if next == types.StatusExecuted {
		trade.ExecutedAt = now
	}

	if next == types.StatusExecuted || next == types.StatusCancelled || next == types.StatusFailed {
		e.activeMu.Lock()
		delete(e.activeTrades, trade.ID)
		e.activeMu.Unlock()
		return
	}

	e.activeMu.Lock()
	e.activeTrades[trade.ID] = activeTrade{trade: trade}
	e.activeMu.Unlock()
}
