// Package poll provides bounded wait and retry loops against slow,
// eventually-consistent collaborators.
package poll

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Budget bounds a polling loop.
type Budget struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Attempts returns a budget that allows n checks spaced by interval.
func Attempts(n int, interval time.Duration) Budget {
	if n < 1 {
		n = 1
	}
	return Budget{Interval: interval, Timeout: time.Duration(n) * interval}
}

// Check is a predicate over external state.
type Check func(ctx context.Context) (bool, error)

// Until evaluates check immediately and then every b.Interval until it
// holds, b.Timeout elapses or ctx is done. Check errors count as "not yet".
// A timeout is a normal outcome and is reported as false.
func Until(ctx context.Context, b Budget, check Check) bool {
	if b.Interval <= 0 {
		b.Interval = 10 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	timer := time.NewTimer(b.Interval)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		ok, err := check(ctx)
		switch {
		case err != nil:
			zlog.Debug().Err(err).Msgf("poll: check failed, attempt=%d", attempt)
		case ok:
			return true
		}

		timer.Reset(b.Interval)
		select {
		case <-ctx.Done():
			zlog.Debug().Msgf("poll: gave up after %d attempts (timeout=%v)", attempt, b.Timeout)
			return false
		case <-timer.C:
		}
	}
}

// Retry calls fn up to attempts times, sleeping delay*attempt between
// tries while the error is retryable.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry cancelled")
			case <-time.After(delay * time.Duration(attempt)):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return err
		}
		zlog.Warn().Err(err).Msgf("poll: retryable error, attempt %d/%d", attempt+1, attempts)
	}
	return errors.Wrapf(lastErr, "failed after %d retries", attempts)
}

// IsRetryable reports whether err looks like a transient failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit", "429", "500", "502", "503", "504",
		"timeout", "connection reset", "connection refused", "eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
