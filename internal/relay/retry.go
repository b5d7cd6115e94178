package relay

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// RetryPolicy is a fixed-interval retry. Zero MaxAttempts and zero Deadline
// retry until the context ends.
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	Deadline    time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	var b backoff.BackOff = backoff.NewConstantBackOff(interval)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// Do runs op until it succeeds or the policy gives up, returning op's last
// error (or the context's, once it is done).
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	if p.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Deadline)
		defer cancel()
	}
	return backoff.Retry(op, p.backOff(ctx))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
