package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryExecutor_StopsAfterMaxRetries(t *testing.T) {
	retry, delays := newTestRetry(3)

	attempts := 0
	err := retry.Run(context.Background(), "download X.7z", func(ctx context.Context) error {
		attempts++
		return MarkTransient(errors.New("connection reset"))
	})

	require.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second}, *delays)

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "download X.7z", exhausted.Operation)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.Contains(t, err.Error(), "download X.7z")
}

func TestRetryExecutor_SucceedsAfterTransientFailure(t *testing.T) {
	retry, delays := newTestRetry(3)

	attempts := 0
	err := retry.Run(context.Background(), "list", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return context.DeadlineExceeded
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, *delays, 2)
}

func TestRetryExecutor_PermanentErrorReturnsImmediately(t *testing.T) {
	retry, delays := newTestRetry(3)
	permanent := errors.New("550 file not found")

	attempts := 0
	err := retry.Run(context.Background(), "download", func(ctx context.Context) error {
		attempts++
		return permanent
	})

	assert.Same(t, permanent, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, *delays)
}

func TestRetryExecutor_CancelDuringBackoff(t *testing.T) {
	retry := NewRetryExecutor(5, time.Hour, 2)
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- retry.Run(ctx, "load", func(ctx context.Context) error {
			attempts++
			return MarkTransient(errors.New("503"))
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not honour cancellation")
	}
}

func TestRetryExecutor_ZeroRetries(t *testing.T) {
	retry, delays := newTestRetry(0)

	attempts := 0
	err := retry.Run(context.Background(), "op", func(ctx context.Context) error {
		attempts++
		return MarkTransient(errors.New("timeout"))
	})

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, *delays)
}

func TestDo_ReturnsValue(t *testing.T) {
	retry, _ := newTestRetry(2)

	calls := 0
	files, err := Do(context.Background(), retry, "list files", func(ctx context.Context) ([]string, error) {
		calls++
		if calls == 1 {
			return nil, MarkTransient(errors.New("421 too many connections"))
		}
		return []string{"A.7z"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"A.7z"}, files)
}

func TestRetryExecutor_Delay(t *testing.T) {
	retry := NewRetryExecutor(3, 10*time.Second, 2)

	assert.Equal(t, 10*time.Second, retry.Delay(0))
	assert.Equal(t, 20*time.Second, retry.Delay(1))
	assert.Equal(t, 40*time.Second, retry.Delay(2))
	assert.Equal(t, 4, retry.MaxAttempts())
}
