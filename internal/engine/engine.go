// Package engine is the central orchestrator of the trading system.
//
// It wires together every subsystem: the tick stream feeds OnTick, which
// consults the strategy manager for entry signals and the risk manager
// for exit signals; sized orders are enqueued to a single submission
// worker, which records each accepted order with the risk manager and the
// store; an order-status reconciler polls the broker and writes status
// transitions through to the store.
//
// Lifecycle: New() → Start(ctx) → [runs until ctx is cancelled] → Stop().
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"hedgexd/internal/broker"
	"hedgexd/internal/config"
	"hedgexd/internal/errs"
	"hedgexd/internal/risk"
	"hedgexd/internal/store"
	"hedgexd/internal/strategy"
	"hedgexd/internal/ticks"
	"hedgexd/pkg/types"
)

// submissionQueueCapacity is a large buffer standing in for the
// "unbounded queue" spec.md describes: sized well beyond any plausible
// burst so that, in practice, enqueue never blocks the tick-processing path.
const submissionQueueCapacity = 100_000

// exchange is the single exchange this engine trades on. The tick
// protocol (and the reference signal rule) do not carry an exchange
// field, so every symbol the engine handles is assumed to be this one.
const exchange = "NSE"

// Engine is the central orchestrator. It owns is_running, the active
// trades map, and the order submission queue.
type Engine struct {
	cfg        config.RiskConfig
	broker     *broker.Client
	stream     *ticks.Stream
	risk       *risk.Manager
	strategies *strategy.Manager
	store      *store.Store
	logger     *slog.Logger

	isRunning atomic.Bool

	activeMu     sync.RWMutex
	activeTrades map[string]activeTrade // trade id -> trade

	submissions chan submissionJob

	wg sync.WaitGroup
}

// New wires an Engine from its already-constructed collaborators. Nothing
// blocking happens here; Start hydrates state and spawns workers.
func New(cfg config.RiskConfig, brokerClient *broker.Client, stream *ticks.Stream, riskMgr *risk.Manager, strategyMgr *strategy.Manager, st *store.Store, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:          cfg,
		broker:       brokerClient,
		stream:       stream,
		risk:         riskMgr,
		strategies:   strategyMgr,
		store:        st,
		logger:       logger.With("component", "engine"),
		activeTrades: make(map[string]activeTrade),
		submissions:  make(chan submissionJob, submissionQueueCapacity),
	}
}

// Start hydrates the active-trades map from the store, refuses to start
// if the emergency stop is active, and spawns the submission worker, the
// position monitor, and the order-status reconciler. It returns once
// everything is running; the spawned goroutines run until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	if e.risk.IsEmergencyStopActive() {
		return errs.New(errs.Trading, "cannot start trading: emergency stop is active")
	}

	if err := e.hydrateActiveTrades(ctx); err != nil {
		return err
	}

	e.isRunning.Store(true)

	tickCh := e.stream.Subscribe(1000)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runSubmissionWorker(ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runPositionMonitor(ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runReconciler(ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case tick, ok := <-tickCh:
				if !ok {
					return
				}
				e.OnTick(ctx, tick)
			}
		}
	}()

	e.logger.Info("engine started")
	return nil
}

// Stop clears is_running and waits for every spawned goroutine to exit.
// Callers are expected to have already cancelled the context passed to Start.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
	e.wg.Wait()
	e.logger.Info("engine stopped")
}

// IsRunning reports whether the engine is currently processing ticks and
// submitting orders.
func (e *Engine) IsRunning() bool {
	return e.isRunning.Load()
}

// EmergencyStop clears is_running, raises the flag in the risk manager,
// and issues a best-effort cancel for every active Pending order. Failures
// cancelling individual orders are logged, not retried. After this call,
// Start fails until the operator explicitly clears the risk manager's flag.
func (e *Engine) EmergencyStop(ctx context.Context) error {
	e.isRunning.Store(false)

	if err := e.risk.EmergencyStop(ctx); err != nil {
		e.logger.Error("failed to persist emergency stop audit entry", "error", err)
	}

	e.activeMu.RLock()
	pending := make([]activeTrade, 0, len(e.activeTrades))
	for _, at := range e.activeTrades {
		if at.trade.Status == types.StatusPending && at.trade.BrokerOrderID != "" {
			pending = append(pending, at)
		}
	}
	e.activeMu.RUnlock()

	for _, at := range pending {
		if err := e.broker.CancelOrder(ctx, at.trade.BrokerOrderID, "regular"); err != nil {
			e.logger.Error("failed to cancel order during emergency stop",
				"trade_id", at.trade.ID, "broker_order_id", at.trade.BrokerOrderID, "error", err)
		}
	}

	return nil
}

func (e *Engine) hydrateActiveTrades(ctx context.Context) error {
	trades, err := e.store.ActiveTrades(ctx)
	if err != nil {
		return err
	}
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	for _, t := range trades {
		e.activeTrades[t.ID] = activeTrade{trade: t}
	}
	e.logger.Info("hydrated active trades", "count", len(trades))
	return nil
}
