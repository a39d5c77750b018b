package strategy

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"hedgexd/pkg/types"
)

// deviationThreshold is the fractional distance of LTP from the
// bid/ask midpoint that triggers an entry signal.
const deviationThreshold = 0.002

// OnTick evaluates the reference signal rule for one strategy against one
// tick. It returns nil (no error) when the strategy is disabled, the
// symbol isn't an active selection for the owning user, volume is below
// threshold, or the price deviation from mid falls inside the neutral
// band — all of these are the rule saying "hold", not a failure.
func (m *Manager) OnTick(tick types.Tick, strategyID string) (*types.Signal, error) {
	m.mu.RLock()
	p, ok := m.strategies[strategyID]
	if !ok {
		m.mu.RUnlock()
		return nil, nil
	}
	active := p.Enabled && m.isActiveLocked(p.UserID, tick.Symbol)
	m.mu.RUnlock()

	if !active {
		return nil, nil
	}

	if int64(tick.Volume) < p.VolumeThreshold {
		return nil, nil
	}

	if tick.Bid <= 0 || tick.Ask <= 0 || tick.LTP <= 0 {
		return nil, nil
	}

	mid := (tick.Bid + tick.Ask) / 2
	if mid == 0 {
		return nil, nil
	}
	deviation := (tick.LTP - mid) / mid

	var kind types.SignalKind
	switch {
	case deviation > deviationThreshold:
		kind = types.SignalSell
	case deviation < -deviationThreshold:
		kind = types.SignalBuy
	default:
		return nil, nil
	}

	strength := signalStrength(tick)

	return &types.Signal{
		Kind:        kind,
		UserID:      p.UserID,
		StrategyID:  p.ID,
		Symbol:      tick.Symbol,
		Exchange:    "NSE",
		Price:       decimal.NewFromFloat(tick.LTP),
		Strength:    strength,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// signalStrength weights a log-scaled volume term against a tightness-of-
// spread term, clamped to [0, 1]. The engine ignores entry signals below 0.5.
func signalStrength(tick types.Tick) float64 {
	volumeTerm := 0.0
	if tick.Volume > 0 {
		volumeTerm = 0.7 * math.Log10(float64(tick.Volume)) / 10
	}

	spreadTerm := 0.0
	if tick.LTP > 0 {
		spread := tick.Ask - tick.Bid
		spreadTerm = 0.3 * (1 - spread/tick.LTP)
	}

	strength := volumeTerm + spreadTerm
	return math.Max(0, math.Min(1, strength))
}
