// Package risk owns the authoritative live position ledger and the
// pre-trade validation gate. It runs as in-process shared state rather
// than a standalone goroutine: the read-heavy validate/evaluate paths
// must fit inside the engine's sub-100ms decision budget, so there is no
// message-passing hop to a dedicated loop.
package risk

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hedgexd/internal/config"
	"hedgexd/internal/store"
	"hedgexd/pkg/types"
)

// ledgerPosition is a types.Position augmented with the strategy that most
// recently touched it, needed to attribute SL/TP exit signals.
type ledgerPosition struct {
	types.Position
	StrategyID string
}

// Manager is the live position ledger and pre-trade risk gate.
type Manager struct {
	cfg    config.RiskConfig
	store  *store.Store
	logger *slog.Logger

	mu                    sync.RWMutex
	positions             map[string]*ledgerPosition // key: positionKey(user, exchange, symbol)
	dailyTradeCount       map[string]int             // key: userID
	dailySymbolTradeCount map[string]int             // key: userID + "|" + symbol
	dailyRealizedPnL      map[string]decimal.Decimal // key: userID

	emergencyStop atomic.Bool
}

// ValidateRequest is the order under pre-trade review. MaxTradesPerDay
// comes from the submitting strategy's params; every other limit is a
// process-wide RiskConfig value.
type ValidateRequest struct {
	UserID          string
	StrategyID      string
	Symbol          string
	Exchange        string
	Side            types.Side
	Qty             int32
	Price           decimal.Decimal
	MaxTradesPerDay int
}

func positionKey(userID, exchange, symbol string) string {
	return userID + "|" + exchange + "|" + symbol
}

func symbolKey(userID, symbol string) string {
	return userID + "|" + symbol
}

// NewManager builds a Manager and reconstructs the position ledger and
// today's counters from the store's executed-trade history.
func NewManager(ctx context.Context, cfg config.RiskConfig, st *store.Store, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		cfg:                   cfg,
		store:                 st,
		logger:                logger.With("component", "risk"),
		positions:             make(map[string]*ledgerPosition),
		dailyTradeCount:       make(map[string]int),
		dailySymbolTradeCount: make(map[string]int),
		dailyRealizedPnL:      make(map[string]decimal.Decimal),
	}

	trades, err := st.AllExecutedTrades(ctx)
	if err != nil {
		return nil, err
	}
	m.reconstruct(trades)
	return m, nil
}

// ValidateOrder applies the six pre-trade rules in order, short-circuiting
// and logging a warning on the first failure. Rejections are not errors.
func (m *Manager) ValidateOrder(req ValidateRequest) bool {
	if m.emergencyStop.Load() {
		m.logger.Warn("order rejected: emergency stop active", "user", req.UserID, "symbol", req.Symbol)
		return false
	}

	m.mu.RLock()
	tradeCount := m.dailyTradeCount[req.UserID]
	symbolCount := m.dailySymbolTradeCount[symbolKey(req.UserID, req.Symbol)]
	pnl, ok := m.dailyRealizedPnL[req.UserID]
	if !ok {
		pnl = decimal.Zero
	}
	portfolioMark := m.portfolioMarkLocked()
	m.mu.RUnlock()

	if tradeCount >= req.MaxTradesPerDay {
		m.logger.Warn("order rejected: daily trade limit exceeded",
			"user", req.UserID, "count", tradeCount, "limit", req.MaxTradesPerDay)
		return false
	}

	maxDailyLoss := decimal.NewFromFloat(m.cfg.MaxDailyLoss)
	if pnl.LessThanOrEqual(maxDailyLoss.Neg()) {
		m.logger.Warn("order rejected: daily loss limit exceeded",
			"user", req.UserID, "pnl", pnl, "limit", maxDailyLoss)
		return false
	}

	notional := req.Price.Mul(decimal.NewFromInt(int64(req.Qty)))
	maxPositionSize := decimal.NewFromFloat(m.cfg.MaxPositionSize)
	if notional.GreaterThan(maxPositionSize) {
		m.logger.Warn("order rejected: position size limit exceeded",
			"symbol", req.Symbol, "notional", notional, "limit", maxPositionSize)
		return false
	}

	if symbolCount >= m.cfg.MaxTradesPerSymbol {
		m.logger.Warn("order rejected: symbol trade limit exceeded",
			"symbol", req.Symbol, "count", symbolCount, "limit", m.cfg.MaxTradesPerSymbol)
		return false
	}

	if portfolioMark.GreaterThan(decimal.Zero) {
		concentration := notional.Div(portfolioMark).Mul(decimal.NewFromInt(100))
		limit := decimal.NewFromFloat(m.cfg.PositionConcentrationLimitPct)
		if concentration.GreaterThan(limit) {
			m.logger.Warn("order rejected: position concentration limit exceeded",
				"symbol", req.Symbol, "concentration_pct", concentration, "limit_pct", limit)
			return false
		}
	}

	return true
}

// portfolioMarkLocked sums abs(netQty) * mark across every open position.
// Callers must hold at least a read lock.
func (m *Manager) portfolioMarkLocked() decimal.Decimal {
	total := decimal.Zero
	for _, p := range m.positions {
		qty := decimal.NewFromInt(int64(p.NetQty))
		if qty.IsNegative() {
			qty = qty.Neg()
		}
		total = total.Add(qty.Mul(p.Mark))
	}
	return total
}

// EmergencyStop halts all subsequent ValidateOrder calls and appends an
// Error-level audit entry. Clearing is a separate, explicit operator call.
func (m *Manager) EmergencyStop(ctx context.Context) error {
	m.emergencyStop.Store(true)
	m.logger.Error("EMERGENCY STOP ACTIVATED")
	return m.store.AppendAuditLog(ctx, types.AuditEntry{
		ID:        uuid.NewString(),
		Level:     types.LevelError,
		Message:   "emergency stop activated",
		Context:   map[string]any{"component": "risk"},
		Timestamp: time.Now().UTC(),
	})
}

// ClearEmergencyStop resumes trading. Called only on explicit operator action.
func (m *Manager) ClearEmergencyStop() {
	m.emergencyStop.Store(false)
	m.logger.Info("emergency stop cleared")
}

// IsEmergencyStopActive reports whether trading is currently halted.
func (m *Manager) IsEmergencyStopActive() bool {
	return m.emergencyStop.Load()
}

// Position returns a snapshot of the live position for (user, exchange,
// symbol), or false if there is none.
func (m *Manager) Position(userID, exchange, symbol string) (types.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[positionKey(userID, exchange, symbol)]
	if !ok {
		return types.Position{}, false
	}
	return p.Position, true
}
