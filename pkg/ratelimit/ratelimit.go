package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Registry holds process-wide token buckets keyed by (provider, resource),
// e.g. "openai/chat" or "openai/embed". Acquisitions are FIFO per bucket;
// all buckets are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	defaultRate  rate.Limit
	defaultBurst int
}

// NewRegistry creates a registry whose buckets default to the given
// requests-per-second rate and burst.
func NewRegistry(requestsPerSecond float64, burst int) *Registry {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	if burst <= 0 {
		burst = 1
	}
	return &Registry{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// Configure sets a dedicated rate for one bucket, replacing any existing one.
func (r *Registry) Configure(provider, resource string, requestsPerSecond float64, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[provider+"/"+resource] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Acquire blocks until the bucket grants a token or the context is done.
func (r *Registry) Acquire(ctx context.Context, provider, resource string) error {
	return r.limiter(provider + "/" + resource).Wait(ctx)
}

func (r *Registry) limiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(r.defaultRate, r.defaultBurst)
		r.limiters[key] = l
	}
	return l
}
