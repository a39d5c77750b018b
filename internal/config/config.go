// Package config defines all configuration for the trading engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via HEDGEX_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun  bool          `mapstructure:"dry_run"`
	Broker  BrokerConfig  `mapstructure:"broker"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Vault   VaultConfig   `mapstructure:"vault"`
	Store   StoreConfig   `mapstructure:"store"`
	Ticks   TicksConfig   `mapstructure:"ticks"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// BrokerConfig holds Zerodha Kite Connect endpoints and credentials.
// If APIKey/APISecret are empty, the operator must supply them via env vars
// before the session-login flow can run.
type BrokerConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	WSURL             string        `mapstructure:"ws_url"`
	APIKey            string        `mapstructure:"api_key"`
	APISecret         string        `mapstructure:"api_secret"`
	MinRequestInterval time.Duration `mapstructure:"min_request_interval"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
}

// RiskConfig sets the hard limits enforced by the pre-trade gate.
//
//   - MaxPositionSize: max order notional for a single order.
//   - MaxDailyLoss: max realised loss for a user before validate_order rejects.
//   - PositionConcentrationLimitPct: max order_notional / portfolio_mark.
type RiskConfig struct {
	MaxPositionSize               float64 `mapstructure:"max_position_size"`
	MaxDailyLoss                  float64 `mapstructure:"max_daily_loss"`
	PositionConcentrationLimitPct float64 `mapstructure:"position_concentration_limit_pct"`
	MaxTradesPerSymbol            int     `mapstructure:"max_trades_per_symbol"`
	DefaultAccountValue           float64 `mapstructure:"default_account_value"`
}

// VaultConfig names the env var holding the vault's master passphrase. The
// KDF cost fields are parsed but not read by internal/vault, which derives
// its key with fixed Argon2id parameters; the salt is kept in the store.
type VaultConfig struct {
	MasterPassphraseEnv string `mapstructure:"master_passphrase_env"`
	KDFTimeCost         uint32 `mapstructure:"kdf_time_cost"`
	KDFMemoryKiB        uint32 `mapstructure:"kdf_memory_kib"`
	KDFParallelism      uint8  `mapstructure:"kdf_parallelism"`
}

// StoreConfig sets where the embedded relational store and tick snapshot live.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
	DBFile  string `mapstructure:"db_file"`
}

// TicksConfig tunes the tick-stream fan-out, supervisor and snapshot
// timing. KeepAliveTimeout and ReconnectMaxAttempts are parsed but not read
// by internal/ticks, which uses a fixed 60s keep-alive and 10-attempt budget.
type TicksConfig struct {
	BroadcastCapacity    int           `mapstructure:"broadcast_capacity"`
	KeepAliveTimeout     time.Duration `mapstructure:"keep_alive_timeout"`
	SupervisorInterval   time.Duration `mapstructure:"supervisor_interval"`
	ReconnectMaxAttempts int           `mapstructure:"reconnect_max_attempts"`
	SnapshotInterval     time.Duration `mapstructure:"snapshot_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: HEDGEX_API_KEY, HEDGEX_API_SECRET,
// HEDGEX_MASTER_PASSPHRASE.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("HEDGEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("HEDGEX_API_KEY"); key != "" {
		cfg.Broker.APIKey = key
	}
	if secret := os.Getenv("HEDGEX_API_SECRET"); secret != "" {
		cfg.Broker.APISecret = secret
	}
	if os.Getenv("HEDGEX_DRY_RUN") == "true" || os.Getenv("HEDGEX_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required")
	}
	if c.Broker.WSURL == "" {
		return fmt.Errorf("broker.ws_url is required")
	}
	if c.Broker.MinRequestInterval <= 0 {
		return fmt.Errorf("broker.min_request_interval must be > 0")
	}
	if c.Risk.MaxPositionSize <= 0 {
		return fmt.Errorf("risk.max_position_size must be > 0")
	}
	if c.Risk.MaxDailyLoss <= 0 {
		return fmt.Errorf("risk.max_daily_loss must be > 0")
	}
	if c.Risk.PositionConcentrationLimitPct <= 0 {
		return fmt.Errorf("risk.position_concentration_limit_pct must be > 0")
	}
	if c.Risk.MaxTradesPerSymbol <= 0 {
		return fmt.Errorf("risk.max_trades_per_symbol must be > 0")
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required")
	}
	if c.Vault.MasterPassphraseEnv == "" {
		return fmt.Errorf("vault.master_passphrase_env is required")
	}
	if os.Getenv(c.Vault.MasterPassphraseEnv) == "" {
		return fmt.Errorf("environment variable %s (vault.master_passphrase_env) is not set", c.Vault.MasterPassphraseEnv)
	}
	return nil
}
