package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited wraps a provider with a client-side token bucket shared by every
// stage that uses it.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

var _ DocumentProvider = (*RateLimited)(nil)

// NewRateLimited limits inner to rps requests per second with the given burst.
// A non-positive rps returns inner unchanged.
func NewRateLimited(inner Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return WithLimiter(inner, rate.NewLimiter(rate.Limit(rps), burst))
}

// WithLimiter wraps inner with an existing limiter, so several providers can
// share one budget.
func WithLimiter(inner Provider, limiter *rate.Limiter) Provider {
	return &RateLimited{inner: inner, limiter: limiter}
}

func (r *RateLimited) Name() string { return r.inner.Name() }

// Unwrap returns the wrapped provider.
func (r *RateLimited) Unwrap() Provider { return r.inner }

func (r *RateLimited) SupportsDocument(mimeType string) bool {
	return AcceptsDocument(r.inner, mimeType)
}

func (r *RateLimited) Generate(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s: rate limiter: %w", r.inner.Name(), ctx.Err())
		}
		// The wait would outlive the deadline.
		return "", fmt.Errorf("%s: rate limiter: %w: %v", r.inner.Name(), context.DeadlineExceeded, err)
	}
	return r.inner.Generate(ctx, req)
}
