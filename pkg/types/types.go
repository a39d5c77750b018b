// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the engine — users, sessions,
// strategy params, trades, positions, ticks, and the Kite wire shapes. It
// has no dependencies on internal packages, so it can be imported by any
// layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of a trade: Buy or Sell.
type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

// Opposite returns the other side. Used when closing a position.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// TradeStatus is the lifecycle state of a Trade row. Transitions are
// monotone: Pending -> {PartiallyFilled, Executed, Cancelled, Failed},
// PartiallyFilled -> {Executed, Cancelled, Failed}.
type TradeStatus string

const (
	StatusPending         TradeStatus = "Pending"
	StatusPartiallyFilled TradeStatus = "PartiallyFilled"
	StatusExecuted        TradeStatus = "Executed"
	StatusCancelled       TradeStatus = "Cancelled"
	StatusFailed          TradeStatus = "Failed"
)

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s TradeStatus) CanTransitionTo(next TradeStatus) bool {
	switch s {
	case StatusPending:
		switch next {
		case StatusPartiallyFilled, StatusExecuted, StatusCancelled, StatusFailed:
			return true
		}
	case StatusPartiallyFilled:
		switch next {
		case StatusExecuted, StatusCancelled, StatusFailed:
			return true
		}
	}
	return false
}

// SignalKind distinguishes a strategy-generated entry from a risk-manager
// exit.
type SignalKind string

const (
	SignalBuy        SignalKind = "Buy"
	SignalSell       SignalKind = "Sell"
	SignalStopLoss   SignalKind = "StopLoss"
	SignalTakeProfit SignalKind = "TakeProfit"
)

// ————————————————————————————————————————————————————————————————————————
// Users, sessions, credentials
// ————————————————————————————————————————————————————————————————————————

// User is created at registration; never mutated except LastLoginAt.
type User struct {
	ID               string
	Username         string
	PasswordVerifier string // memory-hard hash, "salt$hash" form
	CreatedAt        time.Time
	LastLoginAt      time.Time
}

// Session is an opaque server-side session token bound to a user.
type Session struct {
	Token     string // opaque random value, >= 128 bits
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time // <= 24h after CreatedAt
	LastUsed  time.Time
	Active    bool
}

// SealedCredential holds a user's broker API key in clear and the secret /
// access token sealed under the vault. Unsealed values never touch the
// store or logs.
type SealedCredential struct {
	UserID             string
	APIKey             string // clear
	SealedAPISecret    string // ciphertext
	SealedAccessToken  string // ciphertext, "" if not yet logged in
	AccessTokenExpires time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Strategy & selection
// ————————————————————————————————————————————————————————————————————————

// StrategyParams is a user-owned strategy definition.
type StrategyParams struct {
	ID              string
	UserID          string
	Name            string
	Description     string
	Enabled         bool
	MaxTradesPerDay int             // 1..1000
	RiskPct         decimal.Decimal // 0 < r <= 100
	StopLossPct     decimal.Decimal // 0 < s <= 50
	TakeProfitPct   decimal.Decimal // 0 < t <= 100, t > s
	VolumeThreshold int64           // > 0
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StockSelection activates a symbol for a user's strategies. Uniqueness is
// (UserID, Symbol); deactivation is soft (Active=false), never deleted.
type StockSelection struct {
	UserID   string
	Symbol   string
	Exchange string
	Active   bool
}

// ————————————————————————————————————————————————————————————————————————
// Trades & positions
// ————————————————————————————————————————————————————————————————————————

// Trade is one order submission and its lifecycle.
type Trade struct {
	ID            string
	UserID        string
	StrategyID    string
	Symbol        string
	Exchange      string
	Side          Side
	Qty           int32
	Price         decimal.Decimal
	BrokerOrderID string // empty until accepted by the broker
	Status        TradeStatus
	ExecutedAt    time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Position is derived per (user, symbol, exchange) from executed trades.
// Side is implied by the sign of NetQty; NetQty == 0 means no position.
type Position struct {
	UserID        string
	Symbol        string
	Exchange      string
	NetQty        int32
	EntryPrice    decimal.Decimal // volume-weighted entry (VWAP)
	Mark          decimal.Decimal // latest price used to value the position
	UnrealizedPnL decimal.Decimal
	LastUpdated   time.Time
}

// Side reports the implied side of the position (Buy if long, Sell if
// short). Callers must check NetQty != 0 first.
func (p Position) Side() Side {
	if p.NetQty >= 0 {
		return Buy
	}
	return Sell
}

// ————————————————————————————————————————————————————————————————————————
// Ticks
// ————————————————————————————————————————————————————————————————————————

// OHLC is the open/high/low/close for the reference interval (prior close
// for live ticks).
type OHLC struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Tick is a decoded market data update for one instrument. Ephemeral: the
// latest tick per token is cached in memory, durable only via trade-
// derived effects (Position) and the lightweight async snapshot.
type Tick struct {
	InstrumentToken uint32
	Symbol          string // resolved by the caller, not present on the wire
	LTP             float64
	LastQty         uint32
	AvgPrice        float64
	Volume          uint32
	Bid             float64
	Ask             float64
	OHLC            *OHLC // nil for LTP-mode packets
	Change          float64
	ChangePct       float64
	ServerTime      time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Signals
// ————————————————————————————————————————————————————————————————————————

// Signal is produced by a Strategy's OnTick or by the risk manager's SL/TP
// evaluation. Strength in [0,1]; the engine ignores Strength < 0.5 for
// entry signals (exit signals bypass the strength gate).
type Signal struct {
	Kind        SignalKind
	UserID      string
	StrategyID  string
	Symbol      string
	Exchange    string
	Price       decimal.Decimal
	Strength    float64
	GeneratedAt time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Audit log
// ————————————————————————————————————————————————————————————————————————

// LogLevel mirrors the audit log's level enum.
type LogLevel string

const (
	LevelTrace LogLevel = "Trace"
	LevelDebug LogLevel = "Debug"
	LevelInfo  LogLevel = "Info"
	LevelWarn  LogLevel = "Warn"
	LevelError LogLevel = "Error"
)

// AuditEntry is one append-only audit log row.
type AuditEntry struct {
	ID        string
	UserID    string // optional, "" if system-level
	Level     LogLevel
	Message   string
	Context   map[string]any
	Timestamp time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Broker order request/response (internal, broker-agnostic shape)
// ————————————————————————————————————————————————————————————————————————

// OrderRequest is the high-level order the engine submits to the broker
// client. The broker client maps it onto Kite's wire format.
type OrderRequest struct {
	Symbol    string
	Exchange  string
	Side      Side
	Qty       int32
	Price     decimal.Decimal // zero for market orders
	OrderType string          // "MARKET" or "LIMIT"
	Product   string          // "MIS" (intraday)
	Validity  string          // "DAY"
	Variety   string          // "regular"
}

// OrderResponse is the broker's acceptance response for PlaceOrder.
type OrderResponse struct {
	OrderID string
}

// BrokerOrder is one row from the broker's order book, used by the
// reconciler to map broker status onto local TradeStatus.
type BrokerOrder struct {
	OrderID string
	Status  string // Kite's raw status string, e.g. "COMPLETE", "REJECTED"
}

// Margins is a minimal view of the broker's margin/funds snapshot.
type Margins struct {
	AvailableCash decimal.Decimal
}
