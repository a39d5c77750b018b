// Package store is the single-writer durable store for the engine: users,
// sealed credentials, session tokens, strategy params, stock selections,
// trades, the audit log, and strategy performance. Mutations touching
// trades or sessions run inside a transaction; callers never write
// plaintext API secrets or access tokens, only sealed ciphertext.
//
// A second, much lighter duty lives here too: a crash-safe JSON snapshot of
// the latest tick per instrument, using the atomic write-to-.tmp-then-
// rename pattern so a mid-write crash never corrupts the snapshot file.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"hedgexd/internal/errs"
	"hedgexd/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password_verifier TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_login_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS api_credentials (
	user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	api_key TEXT NOT NULL,
	sealed_api_secret TEXT NOT NULL,
	sealed_access_token TEXT NOT NULL DEFAULT '',
	access_token_expires INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS session_tokens (
	token TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	last_used INTEGER NOT NULL,
	active INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_session_tokens_user ON session_tokens(user_id);

CREATE TABLE IF NOT EXISTS strategy_params (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	enabled INTEGER NOT NULL DEFAULT 0,
	max_trades_per_day INTEGER NOT NULL,
	risk_pct TEXT NOT NULL,
	stop_loss_pct TEXT NOT NULL,
	take_profit_pct TEXT NOT NULL,
	volume_threshold INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_strategy_params_user ON strategy_params(user_id);

CREATE TABLE IF NOT EXISTS stock_selection (
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	symbol TEXT NOT NULL,
	exchange TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (user_id, symbol)
);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	strategy_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	exchange TEXT NOT NULL,
	side TEXT NOT NULL,
	qty INTEGER NOT NULL,
	price TEXT NOT NULL,
	broker_order_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	executed_at INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_user_symbol ON trades(user_id, symbol);
CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);

CREATE TABLE IF NOT EXISTS system_logs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	level TEXT NOT NULL,
	message TEXT NOT NULL,
	context TEXT NOT NULL DEFAULT '{}',
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_system_logs_timestamp ON system_logs(timestamp);

CREATE TABLE IF NOT EXISTS market_data_cache (
	instrument_token INTEGER PRIMARY KEY,
	symbol TEXT NOT NULL,
	ltp TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS strategy_performance (
	strategy_id TEXT PRIMARY KEY,
	profitable_trades INTEGER NOT NULL DEFAULT 0,
	total_trades INTEGER NOT NULL DEFAULT 0,
	realized_pnl TEXT NOT NULL DEFAULT '0',
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS kv_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store wraps the embedded relational database plus the tick snapshot
// directory. All schema-touching operations are safe for concurrent use;
// database/sql serializes writers internally and we additionally hold
// snapMu around the tick snapshot file.
type Store struct {
	db *sql.DB

	snapDir string
	snapMu  sync.Mutex
}

// Open creates (or reuses) the database file at dir/dbFile, applies the
// schema, and prepares the tick snapshot directory alongside it.
func Open(dir, dbFile string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	path := filepath.Join(dir, dbFile)
	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.Database, "open sqlite", err)
	}
	db.SetMaxOpenConns(1) // single-writer: modernc.org/sqlite serializes anyway, avoid SQLITE_BUSY churn

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, errs.Wrap(errs.Database, "ping sqlite", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, errs.Wrap(errs.Database, "apply schema", err)
	}

	return &Store{db: db, snapDir: dir}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for direct query access. No package in
// this module calls it; internal/risk and internal/strategy go through the
// typed query methods of this package.
func (s *Store) DB() *sql.DB {
	return s.db
}

// InstallSalt returns the vault's per-install KDF salt, generating and
// persisting one on first run.
func (s *Store) InstallSalt(ctx context.Context, generate func() ([]byte, error)) ([]byte, error) {
	var hexSalt string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_meta WHERE key = 'install_salt'`).Scan(&hexSalt)
	if err == nil {
		return decodeHex(hexSalt)
	}
	if err != sql.ErrNoRows {
		return nil, errs.Wrap(errs.Database, "read install salt", err)
	}

	salt, err := generate()
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO kv_meta (key, value) VALUES ('install_salt', ?)`, encodeHex(salt))
	if err != nil {
		return nil, errs.Wrap(errs.Database, "persist install salt", err)
	}
	return salt, nil
}

func encodeHex(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}

func decodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, errs.New(errs.DataIntegrity, "malformed hex value")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, err := hexVal(s[i*2])
		if err != nil {
			return nil, err
		}
		lo, err := hexVal(s[i*2+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexVal(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	default:
		return 0, errs.New(errs.DataIntegrity, "invalid hex digit")
	}
}

// ————————————————————————————————————————————————————————————————————————
// Tick snapshot (JSON, atomic rename)
// ————————————————————————————————————————————————————————————————————————

// SaveTickSnapshot atomically persists the latest tick per instrument
// token. Durability here is best-effort: on restart the engine reloads
// this snapshot to warm its in-memory cache, but the source of truth for
// anything trading-relevant is the trade-derived position, not the tick.
func (s *Store) SaveTickSnapshot(ticks map[uint32]types.Tick) error {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	data, err := json.Marshal(ticks)
	if err != nil {
		return fmt.Errorf("marshal tick snapshot: %w", err)
	}

	path := filepath.Join(s.snapDir, "tick_snapshot.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write tick snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadTickSnapshot restores the last-saved tick cache. Returns an empty
// map, nil if no snapshot exists yet.
func (s *Store) LoadTickSnapshot() (map[uint32]types.Tick, error) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	path := filepath.Join(s.snapDir, "tick_snapshot.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[uint32]types.Tick{}, nil
		}
		return nil, fmt.Errorf("read tick snapshot: %w", err)
	}

	var ticks map[uint32]types.Tick
	if err := json.Unmarshal(data, &ticks); err != nil {
		return nil, fmt.Errorf("unmarshal tick snapshot: %w", err)
	}
	return ticks, nil
}
