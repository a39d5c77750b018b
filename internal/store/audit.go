package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"hedgexd/internal/errs"
	"hedgexd/pkg/types"
)

// AppendAuditLog writes one append-only audit row. Marshal failure of the
// context map is not fatal to the caller's operation; it falls back to an
// empty object so trading never blocks on logging.
func (s *Store) AppendAuditLog(ctx context.Context, e types.AuditEntry) error {
	ctxJSON, err := json.Marshal(e.Context)
	if err != nil {
		ctxJSON = []byte("{}")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO system_logs (id, user_id, level, message, context, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, string(e.Level), e.Message, string(ctxJSON), e.Timestamp.UnixMilli())
	if err != nil {
		return errs.Wrap(errs.Database, "append audit log", err)
	}
	return nil
}

// RecordFill updates the strategy-performance rollup after a trade
// executes. profitable_trades is informational only — no risk or sizing
// decision reads it back.
func (s *Store) RecordFill(ctx context.Context, strategyID string, realizedPnL decimal.Decimal, profitable bool) error {
	profitableDelta := 0
	if profitable {
		profitableDelta = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO strategy_performance (strategy_id, profitable_trades, total_trades, realized_pnl, updated_at)
		 VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT(strategy_id) DO UPDATE SET
		   profitable_trades = profitable_trades + ?,
		   total_trades = total_trades + 1,
		   realized_pnl = CAST(CAST(realized_pnl AS REAL) + ? AS TEXT),
		   updated_at = ?`,
		strategyID, profitableDelta, realizedPnL.String(), time.Now().UnixMilli(),
		profitableDelta, realizedPnL.InexactFloat64(), time.Now().UnixMilli(),
	)
	if err != nil {
		return errs.Wrap(errs.Database, "record fill", err)
	}
	return nil
}

// StrategyPerformance is the informational read model for a strategy's
// historical fill record.
type StrategyPerformance struct {
	StrategyID       string
	ProfitableTrades int64
	TotalTrades      int64
	RealizedPnL      decimal.Decimal
}

// GetStrategyPerformance returns the rollup for a strategy, or a zero
// value if it has never recorded a fill.
func (s *Store) GetStrategyPerformance(ctx context.Context, strategyID string) (StrategyPerformance, error) {
	var p StrategyPerformance
	p.StrategyID = strategyID
	var pnl string
	err := s.db.QueryRowContext(ctx,
		`SELECT profitable_trades, total_trades, realized_pnl FROM strategy_performance WHERE strategy_id = ?`, strategyID,
	).Scan(&p.ProfitableTrades, &p.TotalTrades, &pnl)
	if err != nil {
		// no rollup recorded yet; zero-value performance is a valid state.
		return p, nil
	}
	dec, decErr := decimal.NewFromString(pnl)
	if decErr != nil {
		return p, errs.Wrap(errs.DataIntegrity, "parse realized pnl", decErr)
	}
	p.RealizedPnL = dec
	return p, nil
}
