package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"hedgexd/internal/errs"
	"hedgexd/pkg/types"
)

// CreateStrategy inserts a new strategy params row.
func (s *Store) CreateStrategy(ctx context.Context, p types.StrategyParams) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO strategy_params (id, user_id, name, description, enabled, max_trades_per_day, risk_pct, stop_loss_pct, take_profit_pct, volume_threshold, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, p.Description, boolToInt(p.Enabled), p.MaxTradesPerDay,
		p.RiskPct.String(), p.StopLossPct.String(), p.TakeProfitPct.String(), p.VolumeThreshold,
		p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return errs.Wrap(errs.Database, "create strategy", err)
	}
	return nil
}

// UpdateStrategy overwrites the mutable fields of a strategy owned by
// userID. Returns errs.NotFound if no matching row was updated — this
// also guards against a user mutating another user's strategy.
func (s *Store) UpdateStrategy(ctx context.Context, p types.StrategyParams) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE strategy_params SET name = ?, description = ?, enabled = ?, max_trades_per_day = ?,
		   risk_pct = ?, stop_loss_pct = ?, take_profit_pct = ?, volume_threshold = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		p.Name, p.Description, boolToInt(p.Enabled), p.MaxTradesPerDay,
		p.RiskPct.String(), p.StopLossPct.String(), p.TakeProfitPct.String(), p.VolumeThreshold,
		time.Now().UnixMilli(), p.ID, p.UserID,
	)
	if err != nil {
		return errs.Wrap(errs.Database, "update strategy", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.Database, "rows affected", err)
	}
	if n == 0 {
		return errs.New(errs.NotFound, "strategy not found for user")
	}
	return nil
}

// DisableStrategy soft-deletes a strategy (enabled = 0).
func (s *Store) DisableStrategy(ctx context.Context, userID, strategyID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE strategy_params SET enabled = 0, updated_at = ? WHERE id = ? AND user_id = ?`,
		time.Now().UnixMilli(), strategyID, userID)
	if err != nil {
		return errs.Wrap(errs.Database, "disable strategy", err)
	}
	return nil
}

// StrategiesForUser returns all strategies owned by a user.
func (s *Store) StrategiesForUser(ctx context.Context, userID string) ([]types.StrategyParams, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, description, enabled, max_trades_per_day, risk_pct, stop_loss_pct, take_profit_pct, volume_threshold, created_at, updated_at
		 FROM strategy_params WHERE user_id = ?`, userID)
	if err != nil {
		return nil, errs.Wrap(errs.Database, "query strategies for user", err)
	}
	defer rows.Close()

	var out []types.StrategyParams
	for rows.Next() {
		p, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// EnabledStrategies returns every enabled strategy across all users, the
// working set the engine evaluates on each tick.
func (s *Store) EnabledStrategies(ctx context.Context) ([]types.StrategyParams, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, description, enabled, max_trades_per_day, risk_pct, stop_loss_pct, take_profit_pct, volume_threshold, created_at, updated_at
		 FROM strategy_params WHERE enabled = 1`)
	if err != nil {
		return nil, errs.Wrap(errs.Database, "query enabled strategies", err)
	}
	defer rows.Close()

	var out []types.StrategyParams
	for rows.Next() {
		p, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanStrategy(rows *sql.Rows) (types.StrategyParams, error) {
	var p types.StrategyParams
	var enabled int
	var risk, sl, tp string
	var createdAt, updatedAt int64
	if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &enabled, &p.MaxTradesPerDay,
		&risk, &sl, &tp, &p.VolumeThreshold, &createdAt, &updatedAt); err != nil {
		return types.StrategyParams{}, errs.Wrap(errs.Database, "scan strategy", err)
	}
	p.Enabled = enabled == 1
	var err error
	if p.RiskPct, err = decimal.NewFromString(risk); err != nil {
		return types.StrategyParams{}, errs.Wrap(errs.DataIntegrity, "parse risk_pct", err)
	}
	if p.StopLossPct, err = decimal.NewFromString(sl); err != nil {
		return types.StrategyParams{}, errs.Wrap(errs.DataIntegrity, "parse stop_loss_pct", err)
	}
	if p.TakeProfitPct, err = decimal.NewFromString(tp); err != nil {
		return types.StrategyParams{}, errs.Wrap(errs.DataIntegrity, "parse take_profit_pct", err)
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return p, nil
}

// ————————————————————————————————————————————————————————————————————————
// Stock selection
// ————————————————————————————————————————————————————————————————————————

// UpsertSelection activates or updates a user's selection of a symbol.
func (s *Store) UpsertSelection(ctx context.Context, sel types.StockSelection) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stock_selection (user_id, symbol, exchange, active) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, symbol) DO UPDATE SET exchange = excluded.exchange, active = excluded.active`,
		sel.UserID, sel.Symbol, sel.Exchange, boolToInt(sel.Active))
	if err != nil {
		return errs.Wrap(errs.Database, "upsert stock selection", err)
	}
	return nil
}

// Deactivate soft-deletes a user's selection of a symbol.
func (s *Store) Deactivate(ctx context.Context, userID, symbol string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE stock_selection SET active = 0 WHERE user_id = ? AND symbol = ?`, userID, symbol)
	if err != nil {
		return errs.Wrap(errs.Database, "deactivate stock selection", err)
	}
	return nil
}

// ActiveSelectionsForUser returns the symbols a user has activated.
func (s *Store) ActiveSelectionsForUser(ctx context.Context, userID string) ([]types.StockSelection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, symbol, exchange, active FROM stock_selection WHERE user_id = ? AND active = 1`, userID)
	if err != nil {
		return nil, errs.Wrap(errs.Database, "query active selections", err)
	}
	defer rows.Close()

	var out []types.StockSelection
	for rows.Next() {
		var sel types.StockSelection
		var active int
		if err := rows.Scan(&sel.UserID, &sel.Symbol, &sel.Exchange, &active); err != nil {
			return nil, errs.Wrap(errs.Database, "scan stock selection", err)
		}
		sel.Active = active == 1
		out = append(out, sel)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
