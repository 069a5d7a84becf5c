package openai

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/everspan/cognita/pkg/errs"
)

// classifyError converts a provider failure into the engine's error taxonomy.
// 429 becomes a rate-limited transient error carrying the Retry-After hint;
// 5xx, timeouts and network failures are transient; any other 4xx is
// permanent (bad key, bad request, content policy).
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.KindCancelled, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindTransient, op+" deadline exceeded", err)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			if hint, ok := retryAfterFrom(apiErr); ok {
				return errs.RateLimited(op+" rate limited", hint, err)
			}
			// no usable Retry-After: plain transient, so backoff applies
			return errs.Wrap(errs.KindTransient, op+" rate limited", err)
		case apiErr.StatusCode >= 500:
			return errs.Wrap(errs.KindTransient, op, err)
		case apiErr.StatusCode >= 400:
			return errs.Wrap(errs.KindPermanent, op, err)
		}
	}

	// no HTTP status: connection reset, DNS failure and friends
	return errs.Wrap(errs.KindTransient, op, err)
}

func retryAfterFrom(apiErr *openai.Error) (time.Duration, bool) {
	if apiErr.Response == nil {
		return 0, false
	}
	header := apiErr.Response.Header.Get("Retry-After")
	if header == "" {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}
