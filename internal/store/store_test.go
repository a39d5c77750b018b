package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hedgexd/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, "test.db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateUser(t *testing.T, s *Store, id, username string) types.User {
	t.Helper()
	u := types.User{
		ID:               id,
		Username:         username,
		PasswordVerifier: "salt$hash",
		CreatedAt:        time.Now().UTC(),
		LastLoginAt:      time.Now().UTC(),
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestCreateAndGetUser(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	want := mustCreateUser(t, s, "u1", "trader1")

	got, err := s.GetUserByUsername(ctx, "trader1")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("ID = %q, want %q", got.ID, want.ID)
	}
}

func TestCreateUserDuplicateUsernameRejected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "u1", "trader1")
	u2 := types.User{ID: "u2", Username: "trader1", PasswordVerifier: "x", CreatedAt: time.Now(), LastLoginAt: time.Now()}
	if err := s.CreateUser(ctx, u2); err == nil {
		t.Error("CreateUser with duplicate username = nil error, want error")
	}
}

func TestGetUserNotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if _, err := s.GetUser(context.Background(), "nope"); err == nil {
		t.Error("GetUser(missing) = nil error, want error")
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "u1", "trader1")

	now := time.Now().UTC()
	sess := types.Session{
		Token:     "tok-abc",
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
		LastUsed:  now,
		Active:    true,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.ValidateSession(ctx, "tok-abc", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if got.UserID != u.ID {
		t.Errorf("UserID = %q, want %q", got.UserID, u.ID)
	}

	if err := s.Logout(ctx, "tok-abc"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := s.ValidateSession(ctx, "tok-abc", now.Add(time.Minute)); err == nil {
		t.Error("ValidateSession after logout = nil error, want error")
	}
}

func TestValidateSessionRejectsExpired(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "u1", "trader1")

	now := time.Now().UTC()
	sess := types.Session{
		Token: "tok-expired", UserID: u.ID,
		CreatedAt: now.Add(-25 * time.Hour), ExpiresAt: now.Add(-time.Hour), LastUsed: now.Add(-25 * time.Hour), Active: true,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := s.ValidateSession(ctx, "tok-expired", now); err == nil {
		t.Error("ValidateSession(expired) = nil error, want error")
	}
}

func TestSweepExpiredSessions(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "u1", "trader1")

	now := time.Now().UTC()
	_ = s.CreateSession(ctx, types.Session{Token: "t1", UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(-time.Minute), LastUsed: now, Active: true})
	_ = s.CreateSession(ctx, types.Session{Token: "t2", UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour), LastUsed: now, Active: true})

	n, err := s.SweepExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("SweepExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("swept = %d, want 1", n)
	}
}

func TestTradeStatusTransitionEnforced(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "u1", "trader1")

	trade := types.Trade{
		ID: "tr1", UserID: u.ID, StrategyID: "st1", Symbol: "RELIANCE", Exchange: "NSE",
		Side: types.Buy, Qty: 10, Price: decimal.NewFromInt(2500), Status: types.StatusPending,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := s.CreateTrade(ctx, trade); err != nil {
		t.Fatalf("CreateTrade: %v", err)
	}

	if err := s.UpdateTradeStatus(ctx, "tr1", types.StatusExecuted, "broker-1", time.Now()); err != nil {
		t.Fatalf("UpdateTradeStatus: %v", err)
	}

	// Executed -> Cancelled is illegal per the trade status state machine.
	if err := s.UpdateTradeStatus(ctx, "tr1", types.StatusCancelled, "", time.Now()); err == nil {
		t.Error("UpdateTradeStatus(Executed -> Cancelled) = nil error, want error")
	}
}

func TestExecutedTradesForSymbol(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "u1", "trader1")

	t1 := types.Trade{ID: "tr1", UserID: u.ID, StrategyID: "st1", Symbol: "TCS", Exchange: "NSE", Side: types.Buy, Qty: 5, Price: decimal.NewFromInt(3500), Status: types.StatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	t2 := types.Trade{ID: "tr2", UserID: u.ID, StrategyID: "st1", Symbol: "TCS", Exchange: "NSE", Side: types.Sell, Qty: 2, Price: decimal.NewFromInt(3550), Status: types.StatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	_ = s.CreateTrade(ctx, t1)
	_ = s.CreateTrade(ctx, t2)
	_ = s.UpdateTradeStatus(ctx, "tr1", types.StatusExecuted, "b1", time.Now())
	// tr2 stays Pending and should be excluded.

	trades, err := s.ExecutedTradesForSymbol(ctx, u.ID, "TCS", "NSE")
	if err != nil {
		t.Fatalf("ExecutedTradesForSymbol: %v", err)
	}
	if len(trades) != 1 || trades[0].ID != "tr1" {
		t.Errorf("ExecutedTradesForSymbol = %+v, want only tr1", trades)
	}
}

func TestActiveTradesExcludesTerminalStatuses(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "u1", "trader1")

	pending := types.Trade{ID: "tr1", UserID: u.ID, StrategyID: "st1", Symbol: "TCS", Exchange: "NSE", Side: types.Buy, Qty: 5, Price: decimal.NewFromInt(3500), Status: types.StatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	partial := types.Trade{ID: "tr2", UserID: u.ID, StrategyID: "st1", Symbol: "INFY", Exchange: "NSE", Side: types.Buy, Qty: 5, Price: decimal.NewFromInt(1500), Status: types.StatusPartiallyFilled, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	executed := types.Trade{ID: "tr3", UserID: u.ID, StrategyID: "st1", Symbol: "WIPRO", Exchange: "NSE", Side: types.Buy, Qty: 5, Price: decimal.NewFromInt(400), Status: types.StatusExecuted, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	for _, tr := range []types.Trade{pending, partial, executed} {
		if err := s.CreateTrade(ctx, tr); err != nil {
			t.Fatalf("CreateTrade(%s): %v", tr.ID, err)
		}
	}

	active, err := s.ActiveTrades(ctx)
	if err != nil {
		t.Fatalf("ActiveTrades: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("ActiveTrades() returned %d trades, want 2", len(active))
	}
	ids := map[string]bool{active[0].ID: true, active[1].ID: true}
	if !ids["tr1"] || !ids["tr2"] {
		t.Errorf("ActiveTrades() = %+v, want tr1 and tr2", active)
	}
}

func TestStrategyCRUD(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "u1", "trader1")

	p := types.StrategyParams{
		ID: "st1", UserID: u.ID, Name: "momentum", Enabled: true, MaxTradesPerDay: 20,
		RiskPct: decimal.NewFromInt(2), StopLossPct: decimal.NewFromInt(1), TakeProfitPct: decimal.NewFromInt(3),
		VolumeThreshold: 1000, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := s.CreateStrategy(ctx, p); err != nil {
		t.Fatalf("CreateStrategy: %v", err)
	}

	p.MaxTradesPerDay = 30
	if err := s.UpdateStrategy(ctx, p); err != nil {
		t.Fatalf("UpdateStrategy: %v", err)
	}

	all, err := s.EnabledStrategies(ctx)
	if err != nil {
		t.Fatalf("EnabledStrategies: %v", err)
	}
	if len(all) != 1 || all[0].MaxTradesPerDay != 30 {
		t.Errorf("EnabledStrategies = %+v, want MaxTradesPerDay=30", all)
	}

	if err := s.DisableStrategy(ctx, u.ID, "st1"); err != nil {
		t.Fatalf("DisableStrategy: %v", err)
	}
	all, err = s.EnabledStrategies(ctx)
	if err != nil {
		t.Fatalf("EnabledStrategies: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("EnabledStrategies after disable = %+v, want empty", all)
	}
}

func TestStockSelectionUniquePerUserSymbol(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "u1", "trader1")

	sel := types.StockSelection{UserID: u.ID, Symbol: "INFY", Exchange: "NSE", Active: true}
	if err := s.UpsertSelection(ctx, sel); err != nil {
		t.Fatalf("UpsertSelection: %v", err)
	}
	sel.Exchange = "BSE"
	if err := s.UpsertSelection(ctx, sel); err != nil {
		t.Fatalf("UpsertSelection (update): %v", err)
	}

	active, err := s.ActiveSelectionsForUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("ActiveSelectionsForUser: %v", err)
	}
	if len(active) != 1 || active[0].Exchange != "BSE" {
		t.Errorf("ActiveSelectionsForUser = %+v, want one row with exchange BSE", active)
	}
}

func TestTickSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	ticks := map[uint32]types.Tick{
		256265: {InstrumentToken: 256265, Symbol: "NIFTY50", LTP: 24800.5, ServerTime: time.Now().UTC()},
	}
	if err := s.SaveTickSnapshot(ticks); err != nil {
		t.Fatalf("SaveTickSnapshot: %v", err)
	}

	loaded, err := s.LoadTickSnapshot()
	if err != nil {
		t.Fatalf("LoadTickSnapshot: %v", err)
	}
	if loaded[256265].LTP != 24800.5 {
		t.Errorf("LTP = %v, want 24800.5", loaded[256265].LTP)
	}
}

func TestLoadTickSnapshotMissing(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	loaded, err := s.LoadTickSnapshot()
	if err != nil {
		t.Fatalf("LoadTickSnapshot: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("LoadTickSnapshot (missing) = %+v, want empty", loaded)
	}
}

func TestRecordFillAndGetStrategyPerformance(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordFill(ctx, "st1", decimal.NewFromInt(150), true); err != nil {
		t.Fatalf("RecordFill: %v", err)
	}
	if err := s.RecordFill(ctx, "st1", decimal.NewFromInt(-50), false); err != nil {
		t.Fatalf("RecordFill: %v", err)
	}

	perf, err := s.GetStrategyPerformance(ctx, "st1")
	if err != nil {
		t.Fatalf("GetStrategyPerformance: %v", err)
	}
	if perf.TotalTrades != 2 {
		t.Errorf("TotalTrades = %d, want 2", perf.TotalTrades)
	}
	if perf.ProfitableTrades != 1 {
		t.Errorf("ProfitableTrades = %d, want 1", perf.ProfitableTrades)
	}
}

func TestGetStrategyPerformanceZeroValueWhenMissing(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	perf, err := s.GetStrategyPerformance(context.Background(), "never-traded")
	if err != nil {
		t.Fatalf("GetStrategyPerformance: %v", err)
	}
	if perf.TotalTrades != 0 {
		t.Errorf("TotalTrades = %d, want 0", perf.TotalTrades)
	}
}

func TestInstallSaltGeneratedOnce(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	calls := 0
	gen := func() ([]byte, error) {
		calls++
		return []byte{1, 2, 3, 4}, nil
	}

	salt1, err := s.InstallSalt(ctx, gen)
	if err != nil {
		t.Fatalf("InstallSalt: %v", err)
	}
	salt2, err := s.InstallSalt(ctx, gen)
	if err != nil {
		t.Fatalf("InstallSalt: %v", err)
	}
	if string(salt1) != string(salt2) {
		t.Errorf("InstallSalt not stable across calls: %v != %v", salt1, salt2)
	}
	if calls != 1 {
		t.Errorf("generate() called %d times, want 1", calls)
	}
}
