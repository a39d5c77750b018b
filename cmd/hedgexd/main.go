// hedgexd is an algorithmic intraday trading engine for NIFTY 50
// constituents on the NSE, connecting to Zerodha Kite Connect.
//
// Architecture:
//
//	main.go                   — entry point: loads config, completes the
//	                            Kite session handshake, wires every
//	                            subsystem, waits for SIGINT/SIGTERM
//	internal/config           — YAML config with HEDGEX_* env overrides
//	internal/vault            — Argon2id-derived credential sealing
//	internal/store            — embedded SQLite persistence boundary
//	internal/broker           — rate-limited Kite Connect REST client
//	internal/ticks            — Kite WebSocket tick stream, auto-reconnect
//	internal/risk             — pre-trade validation, position ledger
//	internal/strategy         — per-user strategy CRUD, entry signal rule
//	internal/engine           — central orchestrator: OnTick, submission
//	                            worker, order-status reconciler
//
// How it makes money:
//
//	The engine watches the live tick stream for NIFTY 50 constituents and,
//	per strategy, compares last traded price against the bid/ask midpoint.
//	A large enough deviation from mid is read as a short-lived mispricing:
//	the engine takes the side that bets on reversion back to mid, sized by
//	a fixed percentage of account risk capital. Open positions are closed
//	automatically on a stop-loss or take-profit move, or by an operator's
//	emergency stop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hedgexd/internal/broker"
	"hedgexd/internal/config"
	"hedgexd/internal/engine"
	"hedgexd/internal/risk"
	"hedgexd/internal/store"
	"hedgexd/internal/strategy"
	"hedgexd/internal/ticks"
	"hedgexd/internal/vault"
)

// nifty50Symbols is the curated, fixed universe of tradable symbols. NIFTY
// 50 membership changes only on NSE's periodic index rebalancing, so this
// engine trades a static list rather than a dynamically scanned one.
var nifty50Symbols = []string{
	"RELIANCE", "TCS", "HDFCBANK", "ICICIBANK", "INFY", "HINDUNILVR",
	"ITC", "SBIN", "BHARTIARTL", "BAJFINANCE", "KOTAKBANK", "LT",
	"AXISBANK", "ASIANPAINT", "MARUTI", "HCLTECH", "SUNPHARMA", "TITAN",
	"ULTRACEMCO", "WIPRO", "NESTLEIND", "ADANIENT", "ONGC", "NTPC",
	"POWERGRID", "M&M", "TATAMOTORS", "TATASTEEL", "JSWSTEEL", "TECHM",
	"BAJAJFINSV", "INDUSINDBK", "COALINDIA", "HINDALCO", "DRREDDY",
	"GRASIM", "CIPLA", "DIVISLAB", "BRITANNIA", "EICHERMOT", "APOLLOHOSP",
	"HEROMOTOCO", "BPCL", "UPL", "BAJAJ-AUTO", "SBILIFE", "HDFCLIFE",
	"TATACONSUM", "ADANIPORTS", "SHREECEM", "LTIM",
}

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("HEDGEX_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Store.DataDir, cfg.Store.DBFile)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if _, err := loadVault(st, cfg.Vault); err != nil {
		logger.Error("failed to initialize vault", "error", err)
		os.Exit(1)
	}

	brokerClient := broker.NewClient(cfg.Broker, cfg.DryRun, logger)

	if err := loginSession(brokerClient, cfg.Broker, logger); err != nil {
		logger.Error("failed to establish broker session", "error", err)
		os.Exit(1)
	}

	riskMgr, err := risk.NewManager(ctx, cfg.Risk, st, logger)
	if err != nil {
		logger.Error("failed to initialize risk manager", "error", err)
		os.Exit(1)
	}

	strategyMgr, err := strategy.NewManager(ctx, st, logger)
	if err != nil {
		logger.Error("failed to initialize strategy manager", "error", err)
		os.Exit(1)
	}

	stream := ticks.NewStream(cfg.Broker.WSURL, cfg.Ticks.BroadcastCapacity, logger)
	if err := subscribeUniverse(brokerClient, stream, logger); err != nil {
		logger.Error("failed to subscribe tick universe", "error", err)
		os.Exit(1)
	}

	if snapshot, err := st.LoadTickSnapshot(); err != nil {
		logger.Warn("failed to load tick snapshot, starting with a cold cache", "error", err)
	} else if len(snapshot) > 0 {
		stream.SeedLatest(snapshot)
		logger.Info("seeded tick cache from durable snapshot", "tokens", len(snapshot))
	}

	go stream.Supervise(ctx, cfg.Ticks.SupervisorInterval, stream.Run)
	go runSnapshotWriter(ctx, stream, st, cfg.Ticks.SnapshotInterval, logger)

	eng := engine.New(cfg.Risk, brokerClient, stream, riskMgr, strategyMgr, st, logger)
	if err := eng.Start(ctx); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("hedgexd started",
		"symbols", len(nifty50Symbols),
		"max_position_size", cfg.Risk.MaxPositionSize,
		"max_daily_loss", cfg.Risk.MaxDailyLoss,
		"dry_run", cfg.DryRun,
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	eng.Stop()
	if err := stream.Close(); err != nil {
		logger.Error("failed to close tick stream", "error", err)
	}
}

// loadVault installs the vault's install-wide salt on first boot (or
// loads the existing one), then constructs the vault from the configured
// master passphrase env var.
func loadVault(st *store.Store, cfg config.VaultConfig) (*vault.Vault, error) {
	salt, err := st.InstallSalt(context.Background(), vault.NewSalt)
	if err != nil {
		return nil, err
	}
	passphrase := os.Getenv(cfg.MasterPassphraseEnv)
	return vault.New(passphrase, salt), nil
}

// loginSession completes the Kite Connect login handshake. Kite access
// tokens expire daily, so every process start requires a fresh
// request_token obtained by the operator visiting the client's
// SessionLoginURL and supplying the redirect's request_token via env var.
func loginSession(c *broker.Client, cfg config.BrokerConfig, logger *slog.Logger) error {
	requestToken := os.Getenv("HEDGEX_REQUEST_TOKEN")
	if requestToken == "" {
		return fmt.Errorf("HEDGEX_REQUEST_TOKEN not set; visit %s and set it to the redirect's request_token", c.SessionLoginURL())
	}
	if _, err := c.ExchangeRequestToken(requestToken, cfg.APISecret); err != nil {
		return err
	}
	logger.Info("broker session established")
	return nil
}

// subscribeUniverse resolves the curated symbol list to instrument tokens
// via the broker's instrument master and registers them with the stream.
func subscribeUniverse(c *broker.Client, stream *ticks.Stream, logger *slog.Logger) error {
	instruments, err := c.GetInstruments("NSE")
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(nifty50Symbols))
	for _, sym := range nifty50Symbols {
		wanted[sym] = true
	}

	tokens := make(map[uint32]string)
	for _, inst := range instruments {
		if wanted[inst.TradingSymbol] {
			tokens[inst.InstrumentToken] = inst.TradingSymbol
		}
	}

	if len(tokens) < len(nifty50Symbols) {
		logger.Warn("instrument master is missing some curated symbols",
			"resolved", len(tokens), "expected", len(nifty50Symbols))
	}

	stream.AddTokens(tokens)
	return nil
}

// runSnapshotWriter periodically persists the tick stream's latest-tick
// cache so a restart can seed marks without waiting for the first live
// tick. interval falls back to a sane default if unconfigured.
func runSnapshotWriter(ctx context.Context, stream *ticks.Stream, st *store.Store, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := stream.LatestAll()
			if len(snapshot) == 0 {
				continue
			}
			if err := st.SaveTickSnapshot(snapshot); err != nil {
				logger.Error("failed to persist tick snapshot", "error", err)
			}
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
