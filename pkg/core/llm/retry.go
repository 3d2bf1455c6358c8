package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default retry settings for reasoning service calls.
const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 2 * time.Second
	DefaultMaxInterval     = 30 * time.Second
	DefaultRequestTimeout  = 120 * time.Second
)

// RetryPolicy bounds how a single logical request is retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// RequestTimeout caps each attempt; a timed-out attempt counts as transient.
	RequestTimeout time.Duration
	// OnRetry is called before each wait with the failed attempt's error.
	OnRetry func(err error, wait time.Duration)
}

// DefaultRetryPolicy returns the policy used when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		RequestTimeout:  DefaultRequestTimeout,
	}
}

// IsTransient reports whether err is worth retrying: timeouts, rate limits and 5xx.
// Cancellation of the caller's context is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == 429 || statusErr.Code >= 500
	}

	errStr := err.Error()
	for _, marker := range []string{
		"429", "RESOURCE_EXHAUSTED", "rate limit", "quota",
		"500", "502", "503", "504", "UNAVAILABLE", "INTERNAL", "overloaded",
		"timeout", "deadline exceeded",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// Do runs call under the policy and returns the response, the number of
// attempts made and the last error. Non-transient errors stop immediately.
func (p RetryPolicy) Do(ctx context.Context, call func(ctx context.Context) (string, error)) (string, int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	var (
		out      string
		attempts int
	)
	op := func() error {
		attempts++
		attemptCtx, cancel := p.attemptContext(ctx)
		defer cancel()

		resp, err := call(attemptCtx)
		if err == nil {
			out = resp
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(err, wait)
		}
	})
	return out, attempts, err
}

func (p RetryPolicy) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.RequestTimeout)
}
