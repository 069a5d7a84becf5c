package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/everspan/cognita/pkg/errs"
)

func instantPolicy(maxAttempts int) *BackoffPolicy {
	return &BackoffPolicy{
		Base:        time.Nanosecond,
		Cap:         time.Nanosecond,
		MaxAttempts: maxAttempts,
		sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func TestBackoffSucceedsFirstTry(t *testing.T) {
	policy := instantPolicy(5)
	retries, err := policy.Do(context.Background(), "op", func(context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if retries != 0 {
		t.Errorf("retries = %d, want 0", retries)
	}
}

func TestBackoffRetriesTransient(t *testing.T) {
	policy := instantPolicy(5)
	calls := 0
	retries, err := policy.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errs.New(errs.KindTransient, "flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if retries != 2 {
		t.Errorf("retries = %d, want 2", retries)
	}
}

func TestBackoffStopsOnPermanent(t *testing.T) {
	policy := instantPolicy(5)
	calls := 0
	_, err := policy.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return errs.New(errs.KindPermanent, "bad key")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("permanent error retried: %d calls", calls)
	}
}

func TestBackoffExhaustsAttempts(t *testing.T) {
	policy := instantPolicy(3)
	calls := 0
	retries, err := policy.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return errs.New(errs.KindTransient, "always down")
	})
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if retries != 2 {
		t.Errorf("retries = %d, want 2", retries)
	}
}

func TestBackoffHonoursRetryAfterZero(t *testing.T) {
	policy := instantPolicy(3)
	var sleeps []time.Duration
	policy.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	calls := 0
	_, err := policy.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls == 1 {
			return errs.RateLimited("429", 0, nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(sleeps) != 1 || sleeps[0] != 0 {
		t.Errorf("retryAfter=0 should retry immediately, slept %v", sleeps)
	}
}

func TestBackoffHonoursRetryAfterHint(t *testing.T) {
	policy := instantPolicy(3)
	policy.Cap = time.Minute
	var sleeps []time.Duration
	policy.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	calls := 0
	_, err := policy.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls == 1 {
			return errs.RateLimited("429", 5*time.Second, nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(sleeps) != 1 || sleeps[0] != 5*time.Second {
		t.Errorf("expected 5s hint sleep, got %v", sleeps)
	}
}

func TestBackoffObservesCancellation(t *testing.T) {
	policy := instantPolicy(5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := policy.Do(ctx, "op", func(context.Context) error {
		calls++
		return errs.New(errs.KindTransient, "never reached")
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if errs.KindOf(err) != errs.KindCancelled {
		t.Errorf("kind = %v, want cancelled", errs.KindOf(err))
	}
	if calls != 0 {
		t.Errorf("cancelled context must not invoke fn, got %d calls", calls)
	}
}

func TestRegistryAcquire(t *testing.T) {
	registry := NewRegistry(1000, 10)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := registry.Acquire(ctx, "openai", "chat"); err != nil {
			t.Fatalf("Acquire: %v", err)
		}
	}

	registry.Configure("slow", "chat", 0.0001, 1)
	if err := registry.Acquire(ctx, "slow", "chat"); err != nil {
		t.Fatalf("first token should be available: %v", err)
	}
	cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := registry.Acquire(cancelCtx, "slow", "chat"); err == nil {
		t.Error("expected exhausted bucket to block until deadline")
	}
}
