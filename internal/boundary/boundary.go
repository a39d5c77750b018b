// Package boundary declares the interfaces the trading core consumes but
// does not implement: an HTTP admin surface, structured audit logging, and
// a backup/retention sidecar. Keeping these as narrow interfaces here,
// rather than concrete packages the core imports, lets a real
// implementation of any of them be wired in later without the core ever
// importing net/http, an HTTP router, or a backup scheduler.
package boundary

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AdminAPI is the interface a future HTTP admin layer implements against
// the core's services. It is deliberately read-and-control only: no
// handler, router, or wire format lives in this package.
type AdminAPI interface {
	// Login authenticates a user and returns an opaque session token.
	Login(ctx context.Context, username, password string) (string, error)

	// Strategies returns every strategy a user owns.
	Strategies(ctx context.Context, userID string) ([]StrategySummary, error)

	// SetStrategyEnabled toggles a strategy's enabled flag.
	SetStrategyEnabled(ctx context.Context, userID, strategyID string, enabled bool) error

	// Positions returns a user's current open positions.
	Positions(ctx context.Context, userID string) ([]PositionSnapshot, error)

	// Risk returns a user's aggregate risk snapshot.
	Risk(ctx context.Context, userID string) (RiskSnapshot, error)

	// EmergencyStop halts trading for the whole process, not just one user.
	EmergencyStop(ctx context.Context) error
}

// StrategySummary is the read-model an AdminAPI implementation renders for
// a strategy list; it carries no internal cache or storage detail.
type StrategySummary struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Enabled         bool            `json:"enabled"`
	VolumeThreshold int64           `json:"volume_threshold"`
	RiskPct         decimal.Decimal `json:"risk_pct"`
	StopLossPct     decimal.Decimal `json:"stop_loss_pct"`
	TakeProfitPct   decimal.Decimal `json:"take_profit_pct"`
	MaxTradesPerDay int             `json:"max_trades_per_day"`
}

// PositionSnapshot is the read-model for one open position, the same
// shape a dashboard or CLI status command would render.
type PositionSnapshot struct {
	Symbol        string          `json:"symbol"`
	Exchange      string          `json:"exchange"`
	NetQty        int32           `json:"net_qty"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	Mark          decimal.Decimal `json:"mark"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	LastUpdated   time.Time       `json:"last_updated"`
}

// RiskSnapshot is the read-model for a user's aggregate risk posture.
type RiskSnapshot struct {
	DailyRealizedPnL     decimal.Decimal `json:"daily_realized_pnl"`
	MaxDailyLoss         decimal.Decimal `json:"max_daily_loss"`
	TradesToday          int             `json:"trades_today"`
	EmergencyStopActive  bool            `json:"emergency_stop_active"`
}

// AuditLogger records a structured audit trail of trading-relevant events
// (order submissions, risk rejections, emergency stops) independent of the
// process's own operational log/slog output. A real implementation
// appends to the store's system_logs table; the core only ever sees this
// interface.
type AuditLogger interface {
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Debug(msg string, kv ...any)
}

// PersistenceSidecar is the backup/retention surface: taking a verified
// snapshot of the embedded store and sweeping data older than the
// configured retention window. No implementation lives in this module;
// operators run this out-of-process against the store's data directory.
type PersistenceSidecar interface {
	// Backup produces a consistent snapshot of the store and returns a
	// checksum an operator can use to verify transfer integrity.
	Backup(ctx context.Context) (checksum string, err error)

	// Sweep deletes data past its retention window (old ticks, closed
	// trades beyond the audit retention period).
	Sweep(ctx context.Context) error
}
