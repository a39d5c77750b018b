package types

import "testing"

func TestTradeStatusCanTransitionTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from TradeStatus
		to   TradeStatus
		want bool
	}{
		{StatusPending, StatusPartiallyFilled, true},
		{StatusPending, StatusExecuted, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusPending, false},
		{StatusPartiallyFilled, StatusExecuted, true},
		{StatusPartiallyFilled, StatusCancelled, true},
		{StatusPartiallyFilled, StatusPending, false},
		{StatusExecuted, StatusCancelled, false},
		{StatusCancelled, StatusExecuted, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s.CanTransitionTo(%s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSideOpposite(t *testing.T) {
	t.Parallel()

	if Buy.Opposite() != Sell {
		t.Errorf("Buy.Opposite() = %s, want Sell", Buy.Opposite())
	}
	if Sell.Opposite() != Buy {
		t.Errorf("Sell.Opposite() = %s, want Buy", Sell.Opposite())
	}
}

func TestPositionSide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		netQty int32
		want   Side
	}{
		{10, Buy},
		{0, Buy}, // sign convention; callers must check NetQty != 0 separately
		{-5, Sell},
	}

	for _, tt := range tests {
		p := Position{NetQty: tt.netQty}
		if got := p.Side(); got != tt.want {
			t.Errorf("Position{NetQty: %d}.Side() = %s, want %s", tt.netQty, got, tt.want)
		}
	}
}
