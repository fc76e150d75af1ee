package poll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestUntil_SucceedsImmediately(t *testing.T) {
	var calls atomic.Int32
	ok := Until(context.Background(), Budget{Interval: time.Hour, Timeout: time.Second}, func(context.Context) (bool, error) {
		calls.Add(1)
		return true, nil
	})
	assert.True(t, ok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUntil_SucceedsEventually(t *testing.T) {
	var calls atomic.Int32
	ok := Until(context.Background(), Budget{Interval: 5 * time.Millisecond, Timeout: time.Second}, func(context.Context) (bool, error) {
		return calls.Add(1) >= 3, nil
	})
	assert.True(t, ok)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUntil_TimeoutIsNotAnError(t *testing.T) {
	start := time.Now()
	ok := Until(context.Background(), Budget{Interval: 5 * time.Millisecond, Timeout: 40 * time.Millisecond}, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUntil_CheckErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	ok := Until(context.Background(), Budget{Interval: 5 * time.Millisecond, Timeout: time.Second}, func(context.Context) (bool, error) {
		if calls.Add(1) < 3 {
			return false, errors.New("engine busy")
		}
		return true, nil
	})
	assert.True(t, ok)
}

func TestUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok := Until(ctx, Budget{Interval: time.Millisecond, Timeout: time.Hour}, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.False(t, ok)
}

func TestAttempts(t *testing.T) {
	b := Attempts(8, 200*time.Millisecond)
	assert.Equal(t, 1600*time.Millisecond, b.Timeout)
	assert.Equal(t, 200*time.Millisecond, b.Interval)
	assert.Equal(t, 200*time.Millisecond, Attempts(0, 200*time.Millisecond).Timeout)
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantErr   bool
		wantCalls int
	}{
		{name: "first try", errs: []error{nil}, wantCalls: 1},
		{name: "transient then ok", errs: []error{errors.New("503 service unavailable"), nil}, wantCalls: 2},
		{name: "permanent error", errs: []error{errors.New("404 not found")}, wantErr: true, wantCalls: 1},
		{
			name:      "exhausted",
			errs:      []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")},
			wantErr:   true,
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), 3, time.Millisecond, func(context.Context) error {
				err := tt.errs[calls]
				calls++
				return err
			})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(errors.New("rate limit exceeded")))
	assert.True(t, IsRetryable(errors.New("read: connection reset by peer")))
	assert.False(t, IsRetryable(errors.New("invalid argument")))
}
