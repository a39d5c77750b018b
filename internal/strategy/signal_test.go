package strategy

import (
	"context"
	"testing"
	"time"

	"hedgexd/pkg/types"
)

func setupStrategy(t *testing.T, volumeThreshold int64) (*Manager, types.StrategyParams) {
	t.Helper()
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "u1")

	m, err := NewManager(ctx, s, testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	strat := sampleStrategy("s1", "u1")
	strat.VolumeThreshold = volumeThreshold
	if err := m.CreateStrategy(ctx, strat); err != nil {
		t.Fatalf("CreateStrategy: %v", err)
	}
	if err := m.SetSelection(ctx, types.StockSelection{UserID: "u1", Symbol: "INFY", Exchange: "NSE", Active: true}); err != nil {
		t.Fatalf("SetSelection: %v", err)
	}
	return m, strat
}

func baseTick() types.Tick {
	return types.Tick{
		InstrumentToken: 1, Symbol: "INFY",
		LTP: 1500, Bid: 1499, Ask: 1501, Volume: 100000,
		ServerTime: time.Now().UTC(),
	}
}

func TestOnTickEmitsSellOnPositiveDeviation(t *testing.T) {
	t.Parallel()
	m, strat := setupStrategy(t, 1000)

	tick := baseTick()
	tick.LTP = 1510 // mid=1500, deviation = 10/1500 = 0.0067 > 0.002

	sig, err := m.OnTick(tick, strat.ID)
	if err != nil {
		t.Fatalf("OnTick: %v", err)
	}
	if sig == nil {
		t.Fatal("OnTick() = nil, want a Sell signal")
	}
	if sig.Kind != types.SignalSell {
		t.Errorf("Kind = %v, want Sell", sig.Kind)
	}
}

func TestOnTickEmitsBuyOnNegativeDeviation(t *testing.T) {
	t.Parallel()
	m, strat := setupStrategy(t, 1000)

	tick := baseTick()
	tick.LTP = 1490 // mid=1500, deviation = -10/1500 = -0.0067 < -0.002

	sig, err := m.OnTick(tick, strat.ID)
	if err != nil {
		t.Fatalf("OnTick: %v", err)
	}
	if sig == nil {
		t.Fatal("OnTick() = nil, want a Buy signal")
	}
	if sig.Kind != types.SignalBuy {
		t.Errorf("Kind = %v, want Buy", sig.Kind)
	}
}

func TestOnTickHoldsInsideNeutralBand(t *testing.T) {
	t.Parallel()
	m, strat := setupStrategy(t, 1000)

	tick := baseTick()
	tick.LTP = 1500.5 // deviation well under 0.002

	sig, err := m.OnTick(tick, strat.ID)
	if err != nil {
		t.Fatalf("OnTick: %v", err)
	}
	if sig != nil {
		t.Errorf("OnTick() = %+v, want nil inside the neutral band", sig)
	}
}

func TestOnTickHoldsBelowVolumeThreshold(t *testing.T) {
	t.Parallel()
	m, strat := setupStrategy(t, 1_000_000)

	tick := baseTick()
	tick.LTP = 1510
	tick.Volume = 500

	sig, err := m.OnTick(tick, strat.ID)
	if err != nil {
		t.Fatalf("OnTick: %v", err)
	}
	if sig != nil {
		t.Error("OnTick() != nil, want nil below volume threshold")
	}
}

func TestOnTickHoldsWhenStrategyDisabled(t *testing.T) {
	t.Parallel()
	m, strat := setupStrategy(t, 1000)
	if err := m.DisableStrategy(context.Background(), strat.UserID, strat.ID); err != nil {
		t.Fatalf("DisableStrategy: %v", err)
	}

	tick := baseTick()
	tick.LTP = 1510

	sig, err := m.OnTick(tick, strat.ID)
	if err != nil {
		t.Fatalf("OnTick: %v", err)
	}
	if sig != nil {
		t.Error("OnTick() != nil, want nil when strategy disabled")
	}
}

func TestOnTickHoldsWhenSymbolNotActive(t *testing.T) {
	t.Parallel()
	m, strat := setupStrategy(t, 1000)
	if err := m.DeactivateSelection(context.Background(), strat.UserID, "INFY"); err != nil {
		t.Fatalf("DeactivateSelection: %v", err)
	}

	tick := baseTick()
	tick.LTP = 1510

	sig, err := m.OnTick(tick, strat.ID)
	if err != nil {
		t.Fatalf("OnTick: %v", err)
	}
	if sig != nil {
		t.Error("OnTick() != nil, want nil when symbol not active for user")
	}
}

func TestOnTickUnknownStrategyReturnsNil(t *testing.T) {
	t.Parallel()
	m, _ := setupStrategy(t, 1000)

	sig, err := m.OnTick(baseTick(), "does-not-exist")
	if err != nil {
		t.Fatalf("OnTick: %v", err)
	}
	if sig != nil {
		t.Error("OnTick() != nil, want nil for unknown strategy id")
	}
}

func TestSignalStrengthWeightsVolumeAndSpread(t *testing.T) {
	t.Parallel()
	tight := types.Tick{LTP: 1500, Bid: 1499.9, Ask: 1500.1, Volume: 1_000_000}
	wide := types.Tick{LTP: 1500, Bid: 1490, Ask: 1510, Volume: 1_000_000}

	strengthTight := signalStrength(tight)
	strengthWide := signalStrength(wide)

	if strengthTight <= strengthWide {
		t.Errorf("tight-spread strength %v should exceed wide-spread strength %v", strengthTight, strengthWide)
	}
	if strengthTight < 0 || strengthTight > 1 {
		t.Errorf("strength %v out of [0,1]", strengthTight)
	}
}
