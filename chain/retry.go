package chain

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryDescriptor configures an exponential backoff retry loop, used for
// both view calls and transaction submissions (spec.md §4.1, §6
// time_limits.provider_reset_descriptor / contract_*_retry_descriptor).
type RetryDescriptor struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
}

// DefaultViewRetry mirrors spec.md §6's contract_view_retry_descriptor
// default: fast, bounded retries for transient transport errors.
func DefaultViewRetry() RetryDescriptor {
	return RetryDescriptor{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		MaxAttempts:     5,
	}
}

// DefaultTxRetry mirrors spec.md §6's contract_transaction_retry_descriptor
// default: slower backoff, fewer attempts, since each attempt consumes a
// nonce and gas estimate.
func DefaultTxRetry() RetryDescriptor {
	return RetryDescriptor{
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		MaxAttempts:     3,
	}
}

func (d RetryDescriptor) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.InitialInterval
	b.MaxInterval = d.MaxInterval
	b.Multiplier = d.Multiplier
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not wall time
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts(d.MaxAttempts))), ctx)
}

func maxAttempts(n int) int {
	if n <= 0 {
		return 1
	}
	return n - 1 // WithMaxRetries counts retries after the first attempt
}

// WithRetry runs op, retrying per d on error, honoring ctx cancellation as
// a suspension point (spec.md §5: dynamic tasks accept cancellation at
// every await).
func WithRetry(ctx context.Context, d RetryDescriptor, op func() error) error {
	return backoff.Retry(op, d.backoff(ctx))
}
