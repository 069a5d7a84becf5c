package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindUnknown},
		{name: "tagged", err: New(KindNotFound, "missing"), want: KindNotFound},
		{name: "wrapped tagged", err: fmt.Errorf("outer: %w", New(KindPermanent, "bad")), want: KindPermanent},
		{name: "context canceled", err: context.Canceled, want: KindCancelled},
		{name: "deadline", err: context.DeadlineExceeded, want: KindTransient},
		{name: "plain", err: errors.New("plain"), want: KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapKeepsInnerKind(t *testing.T) {
	inner := New(KindPermanent, "schema violation")
	wrapped := Wrap(KindTransient, "outer context", inner)
	if KindOf(wrapped) != KindPermanent {
		t.Errorf("wrap must preserve the inner kind, got %v", KindOf(wrapped))
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(KindTransient, "noop", nil) != nil {
		t.Error("wrapping nil must return nil")
	}
}

func TestRetryAfterHint(t *testing.T) {
	err := RateLimited("429", 3*time.Second, nil)
	hint, ok := RetryAfterHint(err)
	if !ok || hint != 3*time.Second {
		t.Errorf("hint = %v ok = %v, want 3s true", hint, ok)
	}

	zero := RateLimited("429", 0, nil)
	hint, ok = RetryAfterHint(zero)
	if !ok || hint != 0 {
		t.Errorf("zero hint must still be a hint, got %v %v", hint, ok)
	}

	if _, ok := RetryAfterHint(New(KindTransient, "no hint")); ok {
		t.Error("plain transient error must carry no hint")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(New(KindTransient, "x")) {
		t.Error("transient must be retryable")
	}
	if Retryable(New(KindPermanent, "x")) {
		t.Error("permanent must not be retryable")
	}
	if Retryable(New(KindCancelled, "x")) {
		t.Error("cancelled must not be retryable")
	}
}
