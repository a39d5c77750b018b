package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"hedgexd/pkg/types"
)

// minEntryStrength is the floor below which an entry signal is ignored,
// regardless of kind.
const minEntryStrength = 0.5

// OnTick is the tick-processing entrypoint: update the mark, evaluate
// every enabled strategy for an entry signal, and evaluate every open
// position on this symbol for an SL/TP exit.
func (e *Engine) OnTick(ctx context.Context, tick types.Tick) {
	e.risk.UpdateMark(exchange, tick.Symbol, decimal.NewFromFloat(tick.LTP))

	if !e.IsRunning() {
		return
	}

	for _, strategyID := range e.strategies.EnabledStrategyIDs() {
		signal, err := e.strategies.OnTick(tick, strategyID)
		if err != nil {
			e.logger.Error("strategy evaluation failed", "strategy_id", strategyID, "error", err)
			continue
		}
		if signal == nil {
			continue
		}
		if signal.Kind != types.SignalBuy && signal.Kind != types.SignalSell {
			continue
		}
		if signal.Strength < minEntryStrength {
			continue
		}
		e.enqueueEntry(ctx, signal)
	}

	e.evaluateExits(ctx, tick.Symbol)
}

// enqueueEntry sizes an entry signal and enqueues it for submission.
func (e *Engine) enqueueEntry(ctx context.Context, signal *types.Signal) {
	strat, ok := e.strategies.Strategy(signal.StrategyID)
	if !ok {
		return
	}

	qty := e.sizeOrder(ctx, signal.Price, strat.RiskPct)
	if qty <= 0 {
		return
	}

	side := types.Buy
	if signal.Kind == types.SignalSell {
		side = types.Sell
	}

	job := submissionJob{
		UserID:          signal.UserID,
		StrategyID:      signal.StrategyID,
		Symbol:          signal.Symbol,
		Exchange:        signal.Exchange,
		Side:            side,
		Qty:             qty,
		Price:           signal.Price,
		MaxTradesPerDay: strat.MaxTradesPerDay,
		EnqueuedAt:      time.Now().UTC(),
	}

	select {
	case e.submissions <- job:
	default:
		e.logger.Warn("submission queue full, dropping entry", "symbol", signal.Symbol, "user", signal.UserID)
	}
}

// sizeOrder implements: risk_amount = account_value * risk_pct/100;
// qty = clamp(floor(risk_amount / price), 1, 1000).
func (e *Engine) sizeOrder(ctx context.Context, price, riskPct decimal.Decimal) int32 {
	if price.IsZero() || price.IsNegative() {
		return 0
	}

	accountValue := e.accountValue(ctx)
	riskAmount := accountValue.Mul(riskPct).Div(decimal.NewFromInt(100))
	rawQty := riskAmount.Div(price).Floor()

	qty := rawQty.IntPart()
	if qty < 1 {
		qty = 1
	}
	if qty > 1000 {
		qty = 1000
	}
	return int32(qty)
}

// accountValue returns the latest broker margin snapshot's available
// cash, falling back to the configured default on any broker error.
func (e *Engine) accountValue(ctx context.Context) decimal.Decimal {
	margins, err := e.broker.GetMargins()
	if err != nil {
		e.logger.Debug("margins lookup failed, using configured default account value", "error", err)
		return decimal.NewFromFloat(e.cfg.DefaultAccountValue)
	}
	return margins.AvailableCash
}

// evaluateExits checks every open position on symbol against its owning
// strategy's SL/TP thresholds and enqueues a closing market order for any
// that fires.
func (e *Engine) evaluateExits(ctx context.Context, symbol string) {
	for _, pos := range e.risk.PositionsForSymbol(exchange, symbol) {
		strat, ok := e.strategies.Strategy(pos.StrategyID)
		if !ok {
			continue
		}

		signal := e.risk.EvaluateExit(pos.UserID, pos.StrategyID, symbol, exchange, strat.StopLossPct, strat.TakeProfitPct)
		if signal == nil {
			continue
		}

		closingSide := types.Sell
		if pos.NetQty < 0 {
			closingSide = types.Buy
		}
		qty := pos.NetQty
		if qty < 0 {
			qty = -qty
		}

		job := submissionJob{
			UserID:          pos.UserID,
			StrategyID:      pos.StrategyID,
			Symbol:          symbol,
			Exchange:        exchange,
			Side:            closingSide,
			Qty:             qty,
			Price:           signal.Price,
			MaxTradesPerDay: strat.MaxTradesPerDay,
			IsExit:          true,
			EnqueuedAt:      time.Now().UTC(),
		}

		select {
		case e.submissions <- job:
		default:
			e.logger.Warn("submission queue full, dropping exit", "symbol", symbol, "user", pos.UserID)
		}
	}
}
