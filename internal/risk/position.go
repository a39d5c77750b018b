package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"hedgexd/pkg/types"
)

// reconstruct rebuilds the position ledger and today's counters from the
// store's full executed-trade history, oldest-first. Trades are grouped by
// (user, exchange, symbol): net qty is the signed sum of quantities, entry
// price is the unweighted mean of executed prices (matching the mean the
// database itself would report via AVG(price)), and the position's strategy
// attribution is whichever trade executed last.
func (m *Manager) reconstruct(trades []types.Trade) {
	type group struct {
		userID, exchange, symbol string
		netQty                   int32
		sumPrice                 decimal.Decimal
		count                    int64
		lastStrategyID           string
	}
	groups := make(map[string]*group)
	order := make([]string, 0)

	today := time.Now().UTC()

	for _, t := range trades {
		key := positionKey(t.UserID, t.Exchange, t.Symbol)
		g, ok := groups[key]
		if !ok {
			g = &group{userID: t.UserID, exchange: t.Exchange, symbol: t.Symbol, sumPrice: decimal.Zero}
			groups[key] = g
			order = append(order, key)
		}

		signedQty := t.Qty
		if t.Side == types.Sell {
			signedQty = -signedQty
		}
		g.netQty += signedQty
		g.sumPrice = g.sumPrice.Add(t.Price)
		g.count++
		g.lastStrategyID = t.StrategyID

		if sameUTCDate(t.ExecutedAt, today) {
			m.dailyTradeCount[t.UserID]++
			m.dailySymbolTradeCount[symbolKey(t.UserID, t.Symbol)]++
			m.dailyRealizedPnL[t.UserID] = m.dailyRealizedPnL[t.UserID].Add(cashFlowDelta(t.Side, t.Qty, t.Price))
		}
	}

	for _, key := range order {
		g := groups[key]
		if g.netQty == 0 || g.count == 0 {
			continue
		}
		entryPrice := g.sumPrice.Div(decimal.NewFromInt(g.count))
		m.positions[key] = &ledgerPosition{
			Position: types.Position{
				UserID:      g.userID,
				Symbol:      g.symbol,
				Exchange:    g.exchange,
				NetQty:      g.netQty,
				EntryPrice:  entryPrice,
				Mark:        entryPrice,
				LastUpdated: today,
			},
			StrategyID: g.lastStrategyID,
		}
	}
}

func sameUTCDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// cashFlowDelta is the signed cash impact of one fill: a buy spends cash
// (negative), a sell receives cash (positive). Summed over a day this is
// the realised P/L bookkeeping rule used both at boot and on each fill.
func cashFlowDelta(side types.Side, qty int32, price decimal.Decimal) decimal.Decimal {
	value := price.Mul(decimal.NewFromInt(int64(qty)))
	if side == types.Buy {
		return value.Neg()
	}
	return value
}

// UpdateOnFill applies one executed trade to the live ledger: net qty and
// VWAP entry, daily trade/symbol counters, and the cash-flow realised P/L
// delta. Unrealized P/L is recomputed against the position's current mark.
func (m *Manager) UpdateOnFill(trade types.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := positionKey(trade.UserID, trade.Exchange, trade.Symbol)
	signedQty := trade.Qty
	if trade.Side == types.Sell {
		signedQty = -signedQty
	}

	pos, ok := m.positions[key]
	if !ok {
		pos = &ledgerPosition{
			Position: types.Position{
				UserID:   trade.UserID,
				Symbol:   trade.Symbol,
				Exchange: trade.Exchange,
				Mark:     trade.Price,
			},
		}
		m.positions[key] = pos
	}

	oldQty := pos.NetQty
	newQty := oldQty + signedQty

	sameDirection := oldQty == 0 || (oldQty > 0) == (signedQty > 0)
	if newQty != 0 && sameDirection {
		oldAbs := decimal.NewFromInt(int64(abs32(oldQty)))
		addedAbs := decimal.NewFromInt(int64(abs32(signedQty)))
		denom := oldAbs.Add(addedAbs)
		if denom.IsPositive() {
			pos.EntryPrice = pos.EntryPrice.Mul(oldAbs).Add(trade.Price.Mul(addedAbs)).Div(denom)
		}
	} else if newQty != 0 && !sameDirection && abs32(newQty) > abs32(oldQty) {
		// The fill overshot the existing position and flipped its side;
		// the new exposure's entry price resets to this fill's price.
		pos.EntryPrice = trade.Price
	}

	pos.NetQty = newQty
	pos.LastUpdated = time.Now().UTC()
	if trade.StrategyID != "" {
		pos.StrategyID = trade.StrategyID
	}

	if newQty == 0 {
		delete(m.positions, key)
	} else {
		recomputeUnrealized(pos)
	}

	m.dailyTradeCount[trade.UserID]++
	m.dailySymbolTradeCount[symbolKey(trade.UserID, trade.Symbol)]++
	m.dailyRealizedPnL[trade.UserID] = m.dailyRealizedPnL[trade.UserID].Add(cashFlowDelta(trade.Side, trade.Qty, trade.Price))
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// recomputeUnrealized derives UnrealizedPnL from (mark - entry) * netQty;
// the signed netQty already flips the sense of the formula for shorts.
func recomputeUnrealized(pos *ledgerPosition) {
	qty := decimal.NewFromInt(int64(pos.NetQty))
	pos.UnrealizedPnL = pos.Mark.Sub(pos.EntryPrice).Mul(qty)
}

// UpdateMark applies a fresh tick price to every open position on
// (exchange, symbol) across all users, recomputing unrealized P/L.
func (m *Manager) UpdateMark(exchange, symbol string, mark decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pos := range m.positions {
		if pos.Exchange == exchange && pos.Symbol == symbol {
			pos.Mark = mark
			pos.LastUpdated = time.Now().UTC()
			recomputeUnrealized(pos)
		}
	}
}

// EvaluateExit checks one open position against a strategy's stop-loss and
// take-profit thresholds and returns an exit Signal if either fires. The
// risk manager only signals the exit; submitting the closing order is the
// engine's responsibility.
func (m *Manager) EvaluateExit(userID, strategyID, symbol, exchange string, stopLossPct, takeProfitPct decimal.Decimal) *types.Signal {
	m.mu.RLock()
	pos, ok := m.positions[positionKey(userID, exchange, symbol)]
	m.mu.RUnlock()
	if !ok || pos.NetQty == 0 || pos.EntryPrice.IsZero() {
		return nil
	}

	pnlPct := pos.Mark.Sub(pos.EntryPrice).Div(pos.EntryPrice).Mul(decimal.NewFromInt(100))
	if pos.NetQty < 0 {
		pnlPct = pnlPct.Neg()
	}

	now := time.Now().UTC()
	switch {
	case pnlPct.LessThanOrEqual(stopLossPct.Neg()):
		return &types.Signal{
			Kind: types.SignalStopLoss, UserID: userID, StrategyID: strategyID,
			Symbol: symbol, Exchange: exchange, Price: pos.Mark, Strength: 1, GeneratedAt: now,
		}
	case pnlPct.GreaterThanOrEqual(takeProfitPct):
		return &types.Signal{
			Kind: types.SignalTakeProfit, UserID: userID, StrategyID: strategyID,
			Symbol: symbol, Exchange: exchange, Price: pos.Mark, Strength: 1, GeneratedAt: now,
		}
	}
	return nil
}

// PositionView pairs a live position snapshot with the strategy id most
// recently responsible for it, so a caller can look up that strategy's
// SL/TP thresholds without the ledger exposing its internal storage.
type PositionView struct {
	types.Position
	StrategyID string
}

// PositionsForSymbol returns every open position on (exchange, symbol)
// across all users, the engine's input for evaluating exits on a tick.
func (m *Manager) PositionsForSymbol(exchange, symbol string) []PositionView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PositionView
	for _, p := range m.positions {
		if p.Exchange == exchange && p.Symbol == symbol {
			out = append(out, PositionView{Position: p.Position, StrategyID: p.StrategyID})
		}
	}
	return out
}
