package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hedgexd/internal/risk"
	"hedgexd/pkg/types"
)

// submissionAttemptBudget is the single-attempt deadline for one order
// submission; on miss the attempt is abandoned and the trade stays
// Pending for the reconciler to pick up.
const submissionAttemptBudget = 50 * time.Millisecond

// submissionLatencyTarget is the dequeue-to-submission target; exceeding
// it logs a warning rather than failing the submission.
const submissionLatencyTarget = 100 * time.Millisecond

// activeTrade is one entry in the engine's in-memory active-trades map.
type activeTrade struct {
	trade types.Trade
}

// submissionJob is one sized order queued for submission.
type submissionJob struct {
	UserID          string
	StrategyID      string
	Symbol          string
	Exchange        string
	Side            types.Side
	Qty             int32
	Price           decimal.Decimal
	MaxTradesPerDay int
	IsExit          bool
	EnqueuedAt      time.Time
}

// runSubmissionWorker is the queue's single consumer: it processes jobs
// strictly in arrival order, each under its own 50ms deadline.
func (e *Engine) runSubmissionWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-e.submissions:
			e.submitOne(ctx, job)
		}
	}
}

func (e *Engine) submitOne(ctx context.Context, job submissionJob) {
	dequeuedAt := time.Now()

	if !job.IsExit {
		ok := e.risk.ValidateOrder(risk.ValidateRequest{
			UserID:          job.UserID,
			StrategyID:      job.StrategyID,
			Symbol:          job.Symbol,
			Exchange:        job.Exchange,
			Side:            job.Side,
			Qty:             job.Qty,
			Price:           job.Price,
			MaxTradesPerDay: job.MaxTradesPerDay,
		})
		if !ok {
			return
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, submissionAttemptBudget)
	defer cancel()

	orderType := "MARKET"
	req := types.OrderRequest{
		Symbol:    job.Symbol,
		Exchange:  job.Exchange,
		Side:      job.Side,
		Qty:       job.Qty,
		OrderType: orderType,
		Product:   "MIS",
		Validity:  "DAY",
		Variety:   "regular",
	}

	resp, err := e.broker.PlaceOrder(attemptCtx, req)
	if err != nil {
		e.logger.Warn("order submission failed, trade remains pending",
			"symbol", job.Symbol, "user", job.UserID, "error", err)
		return
	}

	now := time.Now().UTC()
	trade := types.Trade{
		ID:            uuid.NewString(),
		UserID:        job.UserID,
		StrategyID:    job.StrategyID,
		Symbol:        job.Symbol,
		Exchange:      job.Exchange,
		Side:          job.Side,
		Qty:           job.Qty,
		Price:         job.Price,
		BrokerOrderID: resp.OrderID,
		Status:        types.StatusPending,
		ExecutedAt:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := e.store.CreateTrade(ctx, trade); err != nil {
		e.logger.Error("failed to persist submitted trade", "broker_order_id", resp.OrderID, "error", err)
		return
	}

	// The risk ledger (net qty, VWAP entry, daily trade/symbol counters,
	// realised P/L) updates here, synchronously, once the broker has
	// accepted the order — not later when the reconciler observes a
	// confirmed fill. A burst of submissions must see each prior order's
	// effect on the daily counters immediately, or ValidateOrder's
	// per-day/per-symbol limits never bind against rapid, back-to-back
	// orders.
	e.risk.UpdateOnFill(trade)

	e.activeMu.Lock()
	e.activeTrades[trade.ID] = activeTrade{trade: trade}
	e.activeMu.Unlock()

	latency := time.Since(dequeuedAt)
	if latency > submissionLatencyTarget {
		e.logger.Warn("order submission exceeded latency target",
			"symbol", job.Symbol, "latency_ms", latency.Milliseconds())
	}
}
