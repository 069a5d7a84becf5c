package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/everspan/cognita/pkg/errs"
)

// Breaker wraps gobreaker to stop hammering a provider that is failing hard.
// A rejected call surfaces as a transient error so the backoff policy treats
// an open circuit like any other retryable outage.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// BreakerConfig holds circuit-breaker tuning.
type BreakerConfig struct {
	Name        string
	MaxFailures uint32
	Timeout     time.Duration
}

// NewBreaker creates a circuit breaker that opens after MaxFailures
// consecutive failures (default 3) and probes again after Timeout
// (default 30s).
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// cancellation and permanent caller errors are not provider health signals
			if err == nil {
				return true
			}
			kind := errs.KindOf(err)
			return kind == errs.KindCancelled || kind == errs.KindValidation
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Do executes fn through the breaker.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errs.Wrap(errs.KindTransient, "circuit open for "+b.cb.Name(), err)
	}
	return err
}
