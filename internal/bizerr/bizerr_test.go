package bizerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOfExtractsBusinessCode(t *testing.T) {
	err := E(CodeInsufficientBalance)
	code, ok := CodeOf(err)
	if !ok {
		t.Fatalf("expected business error")
	}
	if code != CodeInsufficientBalance {
		t.Fatalf("expected %s, got %s", CodeInsufficientBalance, code)
	}
}

func TestCodeOfRejectsInfrastructureError(t *testing.T) {
	if _, ok := CodeOf(errors.New("connection refused")); ok {
		t.Fatalf("infrastructure error must not map to a business code")
	}
}

func TestCodeOfSeesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("charge: %w", E(CodeCardExpired))
	code, ok := CodeOf(wrapped)
	if !ok || code != CodeCardExpired {
		t.Fatalf("expected %s through wrapping, got %s ok=%v", CodeCardExpired, code, ok)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("row locked")
	err := Wrap(CodeRefundExceedsRemaining, cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to survive errors.Is")
	}
	if !HasCode(err, CodeRefundExceedsRemaining) {
		t.Fatalf("expected code to survive wrapping")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	if !errors.Is(Op("refund", CodeTxNotFound), E(CodeTxNotFound)) {
		t.Fatalf("errors with the same code must match")
	}
	if errors.Is(E(CodeTxNotFound), E(CodeCardExpired)) {
		t.Fatalf("errors with different codes must not match")
	}
}
