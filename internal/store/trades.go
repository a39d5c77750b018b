package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"hedgexd/internal/errs"
	"hedgexd/pkg/types"
)

// CreateTrade inserts a new trade row with the status t carries.
func (s *Store) CreateTrade(ctx context.Context, t types.Trade) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (id, user_id, strategy_id, symbol, exchange, side, qty, price, broker_order_id, status, executed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.StrategyID, t.Symbol, t.Exchange, string(t.Side), t.Qty, t.Price.String(),
		t.BrokerOrderID, string(t.Status), t.ExecutedAt.UnixMilli(), t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return errs.Wrap(errs.Database, "create trade", err)
	}
	return nil
}

// UpdateTradeStatus transitions a trade's status inside a transaction,
// refusing the write if the current status cannot legally move to next.
func (s *Store) UpdateTradeStatus(ctx context.Context, tradeID string, next types.TradeStatus, brokerOrderID string, executedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Database, "begin update trade status tx", err)
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM trades WHERE id = ?`, tradeID).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return errs.New(errs.NotFound, "trade not found")
		}
		return errs.Wrap(errs.Database, "scan trade status", err)
	}

	if !types.TradeStatus(current).CanTransitionTo(next) {
		return errs.New(errs.DataIntegrity, "illegal trade status transition: "+current+" -> "+string(next))
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE trades SET status = ?, broker_order_id = COALESCE(NULLIF(?, ''), broker_order_id), executed_at = ?, updated_at = ? WHERE id = ?`,
		string(next), brokerOrderID, executedAt.UnixMilli(), time.Now().UnixMilli(), tradeID,
	)
	if err != nil {
		return errs.Wrap(errs.Database, "update trade status", err)
	}
	return tx.Commit()
}

// TradesForUser returns all trades for a user ordered newest-first.
func (s *Store) TradesForUser(ctx context.Context, userID string) ([]types.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, strategy_id, symbol, exchange, side, qty, price, broker_order_id, status, executed_at, created_at, updated_at
		 FROM trades WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, errs.Wrap(errs.Database, "query trades for user", err)
	}
	defer rows.Close()

	var out []types.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ExecutedTradesForSymbol returns executed trades for (user, symbol,
// exchange) ordered oldest-first, the input to position reconstruction.
func (s *Store) ExecutedTradesForSymbol(ctx context.Context, userID, symbol, exchange string) ([]types.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, strategy_id, symbol, exchange, side, qty, price, broker_order_id, status, executed_at, created_at, updated_at
		 FROM trades WHERE user_id = ? AND symbol = ? AND exchange = ? AND status = ? ORDER BY executed_at ASC`,
		userID, symbol, exchange, string(types.StatusExecuted))
	if err != nil {
		return nil, errs.Wrap(errs.Database, "query executed trades", err)
	}
	defer rows.Close()

	var out []types.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ActiveTrades returns every trade in Pending or PartiallyFilled status,
// the working set the engine hydrates into its active-trades map at
// startup and hands to the order-status reconciler.
func (s *Store) ActiveTrades(ctx context.Context) ([]types.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, strategy_id, symbol, exchange, side, qty, price, broker_order_id, status, executed_at, created_at, updated_at
		 FROM trades WHERE status IN (?, ?) ORDER BY created_at ASC`,
		string(types.StatusPending), string(types.StatusPartiallyFilled))
	if err != nil {
		return nil, errs.Wrap(errs.Database, "query active trades", err)
	}
	defer rows.Close()

	var out []types.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AllExecutedTrades returns every executed trade across all users and
// symbols, oldest-first, for full position-ledger reconstruction at boot.
func (s *Store) AllExecutedTrades(ctx context.Context) ([]types.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, strategy_id, symbol, exchange, side, qty, price, broker_order_id, status, executed_at, created_at, updated_at
		 FROM trades WHERE status = ? ORDER BY executed_at ASC`, string(types.StatusExecuted))
	if err != nil {
		return nil, errs.Wrap(errs.Database, "query all executed trades", err)
	}
	defer rows.Close()

	var out []types.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrade(rows *sql.Rows) (types.Trade, error) {
	var t types.Trade
	var side, price, status string
	var executedAt, createdAt, updatedAt int64
	if err := rows.Scan(&t.ID, &t.UserID, &t.StrategyID, &t.Symbol, &t.Exchange, &side, &t.Qty, &price,
		&t.BrokerOrderID, &status, &executedAt, &createdAt, &updatedAt); err != nil {
		return types.Trade{}, errs.Wrap(errs.Database, "scan trade", err)
	}
	t.Side = types.Side(side)
	t.Status = types.TradeStatus(status)
	dec, err := decimal.NewFromString(price)
	if err != nil {
		return types.Trade{}, errs.Wrap(errs.DataIntegrity, "parse trade price", err)
	}
	t.Price = dec
	t.ExecutedAt = time.UnixMilli(executedAt).UTC()
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	t.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return t, nil
}
