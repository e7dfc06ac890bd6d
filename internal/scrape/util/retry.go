package util

import (
	"context"
	"errors"
	"math"
	"net"
	"time"
)

// RetryPolicy is a bounded retry schedule. Sleep is injectable so tests can
// observe the backoff without waiting on it.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
	Retryable   func(err error) bool
}

// APIRetryPolicy is used for ATS API calls and career list pages:
// three attempts, 0.6s*2^n + 0.05s*n between them.
func APIRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff: func(n int) time.Duration {
			secs := 0.6*math.Pow(2, float64(n)) + 0.05*float64(n)
			return time.Duration(secs * float64(time.Second))
		},
	}
}

// DetailRetryPolicy is used for career detail pages: two attempts, 0.2s*2^n.
func DetailRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Backoff: func(n int) time.Duration {
			return time.Duration(0.2 * math.Pow(2, float64(n)) * float64(time.Second))
		},
	}
}

func NoRetry() RetryPolicy { return RetryPolicy{MaxAttempts: 1} }

func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for n := 0; n < attempts; n++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if n == attempts-1 || ctx.Err() != nil || !retryable(err) {
			return err
		}
		if p.Backoff != nil {
			if serr := sleep(ctx, p.Backoff(n)); serr != nil {
				return err
			}
		}
	}
	return err
}

// IsTransient reports whether err is worth another attempt: transport
// failures, timeouts, 429 and 5xx.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == 429 || se.Code >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
