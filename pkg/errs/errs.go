package errs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind partitions every error the engine produces or converts at a driver
// boundary. The pipeline engine decides fatal-vs-continue from the kind alone.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation marks malformed caller input (unknown dataset, bad topK).
	KindValidation
	// KindNotFound marks a missing dataset, data record or chunk.
	KindNotFound
	// KindTransient marks network failures, 5xx responses, timeouts and
	// rate limits. Subject to retry with backoff.
	KindTransient
	// KindPermanent marks provider 4xx responses, auth failures and schema
	// violations that survived all parse retries. Never retried.
	KindPermanent
	// KindIntegrity marks dropped items (missing edge endpoint, id collision).
	// The run continues; counters report it.
	KindIntegrity
	// KindDegraded marks an unavailable optional subsystem (validator,
	// reranker). The run succeeds with a warning.
	KindDegraded
	// KindCancelled marks an observed cancellation signal.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindIntegrity:
		return "integrity"
	case KindDegraded:
		return "degraded"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is a tagged error carrying its taxonomy kind. RetryAfter holds the
// provider's retry hint when Hinted is set; a hinted zero means "retry now".
type Error struct {
	Kind       Kind
	Msg        string
	RetryAfter time.Duration
	Hinted     bool
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a tagged error with the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a tagged error with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a kind and message. Returns nil for a
// nil error. An already tagged error keeps its original kind.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Msg: msg, RetryAfter: e.RetryAfter, Hinted: e.Hinted, Err: err}
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// RateLimited creates a transient error carrying the provider's retry-after hint.
func RateLimited(msg string, retryAfter time.Duration, err error) error {
	return &Error{Kind: KindTransient, Msg: msg, RetryAfter: retryAfter, Hinted: true, Err: err}
}

// KindOf classifies any error. Context cancellation maps to KindCancelled,
// deadline expiry to KindTransient, untagged errors to KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindUnknown
}

// Retryable reports whether the engine should retry the failed operation.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

// RetryAfterHint returns the provider-supplied retry delay. The second return
// is false when the error carries no explicit hint.
func RetryAfterHint(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.Hinted {
		return e.RetryAfter, true
	}
	return 0, false
}
