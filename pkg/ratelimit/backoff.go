package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/everspan/cognita/pkg/errs"
	"github.com/everspan/cognita/pkg/logger"
)

// BackoffPolicy retries transient failures with exponential backoff and
// jitter. A provider retry-after hint overrides the computed delay; permanent
// and cancellation errors are never retried.
type BackoffPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultBackoff matches the engine-wide retry policy: base 1s, cap 60s,
// 5 attempts.
func DefaultBackoff() *BackoffPolicy {
	return &BackoffPolicy{
		Base:        time.Second,
		Cap:         60 * time.Second,
		MaxAttempts: 5,
	}
}

// Do runs fn until it succeeds, fails permanently, or attempts are exhausted.
// Retries returns the number of retries performed, for stage counters.
func (p *BackoffPolicy) Do(ctx context.Context, op string, fn func(context.Context) error) (retries int, err error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return retries, errs.Wrap(errs.KindCancelled, op, ctxErr)
		}

		err = fn(ctx)
		if err == nil {
			return retries, nil
		}
		if !errs.Retryable(err) {
			return retries, err
		}
		if attempt == attempts {
			break
		}

		delay := p.delayFor(attempt, err)
		logger.Debug("[Retry] Backing off", "op", op, "attempt", attempt, "delay", delay, "err", err)
		if sleepErr := p.doSleep(ctx, delay); sleepErr != nil {
			return retries, errs.Wrap(errs.KindCancelled, op, sleepErr)
		}
		retries++
	}
	return retries, err
}

func (p *BackoffPolicy) delayFor(attempt int, err error) time.Duration {
	if hint, ok := errs.RetryAfterHint(err); ok {
		// retryAfter=0 is an explicit "retry immediately"
		if hint > p.Cap {
			return p.Cap
		}
		return hint
	}

	delay := p.Base << (attempt - 1)
	if delay > p.Cap || delay <= 0 {
		delay = p.Cap
	}
	// full jitter keeps concurrent workers from retrying in lockstep
	return time.Duration(rand.Int64N(int64(delay) + 1))
}

func (p *BackoffPolicy) doSleep(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
