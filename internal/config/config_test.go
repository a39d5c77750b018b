package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
dry_run: true
broker:
  base_url: "https://api.kite.trade"
  ws_url: "wss://ws.kite.trade"
  min_request_interval: 350ms
  request_timeout: 30s
  connect_timeout: 10s
risk:
  max_position_size: 50000
  max_daily_loss: 10000
  position_concentration_limit_pct: 20
  max_trades_per_symbol: 20
  default_account_value: 100000
vault:
  master_passphrase_env: HEDGEX_MASTER_PASSPHRASE
  kdf_time_cost: 3
  kdf_memory_kib: 65536
  kdf_parallelism: 2
store:
  data_dir: ./data
  db_file: hedgex.db
ticks:
  broadcast_capacity: 1000
  keep_alive_timeout: 30s
  supervisor_interval: 5s
  reconnect_max_attempts: 10
logging:
  level: info
  format: json
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadParsesAllFields(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.DryRun {
		t.Error("DryRun = false, want true")
	}
	if cfg.Broker.MinRequestInterval != 350*time.Millisecond {
		t.Errorf("Broker.MinRequestInterval = %v, want 350ms", cfg.Broker.MinRequestInterval)
	}
	if cfg.Risk.MaxPositionSize != 50000 {
		t.Errorf("Risk.MaxPositionSize = %v, want 50000", cfg.Risk.MaxPositionSize)
	}
	if cfg.Vault.MasterPassphraseEnv != "HEDGEX_MASTER_PASSPHRASE" {
		t.Errorf("Vault.MasterPassphraseEnv = %q, want HEDGEX_MASTER_PASSPHRASE", cfg.Vault.MasterPassphraseEnv)
	}
	if cfg.Ticks.ReconnectMaxAttempts != 10 {
		t.Errorf("Ticks.ReconnectMaxAttempts = %d, want 10", cfg.Ticks.ReconnectMaxAttempts)
	}
}

func TestLoadEnvOverridesAPIKey(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	t.Setenv("HEDGEX_API_KEY", "env-key")
	t.Setenv("HEDGEX_API_SECRET", "env-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Broker.APIKey != "env-key" {
		t.Errorf("Broker.APIKey = %q, want env-key", cfg.Broker.APIKey)
	}
	if cfg.Broker.APISecret != "env-secret" {
		t.Errorf("Broker.APISecret = %q, want env-secret", cfg.Broker.APISecret)
	}
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	t.Setenv("HEDGEX_MASTER_PASSPHRASE", "correct horse battery staple")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.Broker.BaseURL = "" }},
		{"empty ws url", func(c *Config) { c.Broker.WSURL = "" }},
		{"zero min request interval", func(c *Config) { c.Broker.MinRequestInterval = 0 }},
		{"zero max position size", func(c *Config) { c.Risk.MaxPositionSize = 0 }},
		{"zero max daily loss", func(c *Config) { c.Risk.MaxDailyLoss = 0 }},
		{"zero concentration limit", func(c *Config) { c.Risk.PositionConcentrationLimitPct = 0 }},
		{"zero max trades per symbol", func(c *Config) { c.Risk.MaxTradesPerSymbol = 0 }},
		{"empty data dir", func(c *Config) { c.Store.DataDir = "" }},
		{"empty passphrase env name", func(c *Config) { c.Vault.MasterPassphraseEnv = "" }},
	}

	path := writeConfig(t, sampleYAML)
	t.Setenv("HEDGEX_MASTER_PASSPHRASE", "correct horse battery staple")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() error = nil, want error")
			}
		})
	}
}

func TestValidateRejectsUnsetPassphraseEnv(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	os.Unsetenv("HEDGEX_MASTER_PASSPHRASE")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for unset passphrase env var")
	}
}
