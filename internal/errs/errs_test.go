package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	t.Parallel()

	base := New(Validation, "bad input")
	wrapped := fmt.Errorf("submit order: %w", base)

	if !Is(wrapped, Validation) {
		t.Error("Is(wrapped, Validation) = false, want true")
	}
	if Is(wrapped, Trading) {
		t.Error("Is(wrapped, Trading) = true, want false")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := Wrap(ExternalService, "broker call failed", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestKindRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		want bool
	}{
		{RateLimit, true},
		{ExternalService, true},
		{Validation, false},
		{Trading, false},
	}

	for _, tt := range tests {
		if got := tt.kind.Retryable(); got != tt.want {
			t.Errorf("Kind(%s).Retryable() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestKindFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		want bool
	}{
		{DataIntegrity, true},
		{Crypto, true},
		{Config, true},
		{Trading, false},
	}

	for _, tt := range tests {
		if got := tt.kind.Fatal(); got != tt.want {
			t.Errorf("Kind(%s).Fatal() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
