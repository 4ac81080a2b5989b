package contracts

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestGenerationErrorIs(t *testing.T) {
	cause := context.DeadlineExceeded
	err := fmt.Errorf("batch: %w", NewError(KindGeneratorUnavailable, "3 attempts failed", cause))

	if !errors.Is(err, ErrGeneratorUnavailable) {
		t.Errorf("errors.Is(err, ErrGeneratorUnavailable) = false, want true")
	}
	if errors.Is(err, ErrInvalidRequest) {
		t.Errorf("errors.Is(err, ErrInvalidRequest) = true, want false")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("cause not reachable through Unwrap")
	}
	if got := KindOf(err); got != KindGeneratorUnavailable {
		t.Errorf("KindOf() = %q, want %q", got, KindGeneratorUnavailable)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestGenerationErrorMessage(t *testing.T) {
	err := NewError(KindInvalidRequest, "num_rows out of range", nil)
	want := "invalid_request: num_rows out of range"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
