package chain

import (
	"context"
	"time"
)

const (
	defaultRetryDelay = 100 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

// retryPolicy retries failed RPC calls with doubling delays.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
}

func newRetryPolicy(maxRetries int, baseDelay time.Duration) retryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = defaultRetryDelay
	}
	return retryPolicy{maxRetries: maxRetries, baseDelay: baseDelay}
}

// backoff returns the wait before retry n, counting from 1.
func (p retryPolicy) backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	d := p.baseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

// do runs fn once plus up to maxRetries retries. onRetry, when set, sees the
// error that caused each retry. A done ctx stops retrying and is reported
// instead of the last call error.
func (p retryPolicy) do(ctx context.Context, fn func(context.Context) error, onRetry func(n int, err error)) error {
	err := fn(ctx)
	for n := 1; err != nil && n <= p.maxRetries; n++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if onRetry != nil {
			onRetry(n, err)
		}

		timer := time.NewTimer(p.backoff(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		err = fn(ctx)
	}
	return err
}
