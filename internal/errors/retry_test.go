package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  2,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		JitterFactor: 0,
	}
}

func TestRetryTransientEventuallySucceeds(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(), func(ctx context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, NewTransientError(errors.New("blip"), "")
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.Equal(t, 3, attempts)
}

func TestRetryPermanentStopsImmediately(t *testing.T) {
	attempts := 0
	_, err := RetryWithResult(context.Background(), fastRetryConfig(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, NewPermanentError(errors.New("bad api key"), "")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
	require.True(t, IsPermanent(err))
}

func TestRetryDegradedStopsImmediately(t *testing.T) {
	attempts := 0
	_, err := RetryWithResult(context.Background(), fastRetryConfig(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, NewDegradedError(errors.New("circuit open"), "unavailable", "")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
	require.True(t, IsDegraded(err))
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	_, err := RetryWithResult(context.Background(), fastRetryConfig(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, NewTransientError(errors.New("still down"), "")
	})
	require.Error(t, err)
	require.Equal(t, 3, attempts) // 1 initial + 2 retries
	require.Contains(t, err.Error(), "max retries exceeded")
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	_, err := RetryWithResult(ctx, fastRetryConfig(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, nil
	})
	require.Error(t, err)
	require.Zero(t, attempts)
}

func TestErrorClassification(t *testing.T) {
	require.True(t, IsTransient(NewTransientError(errors.New("x"), "")))
	require.False(t, IsTransient(NewPermanentError(errors.New("x"), "")))
	require.True(t, IsPermanent(errors.New("unauthorized: bad key")))
	require.True(t, IsTransient(errors.New("connection refused")))
	require.Equal(t, ErrorTypeDegraded, GetErrorType(NewDegradedError(errors.New("x"), "", "")))
	require.Equal(t, ErrorTypePermanent, GetErrorType(errors.New("some unknown condition")))
}

func TestFormatForUserPrefersAttachedMessage(t *testing.T) {
	err := NewTransientError(errors.New("http 429"), "Please slow down a little.")
	require.Equal(t, "Please slow down a little.", FormatForUser(err))

	require.Contains(t, FormatForUser(errors.New("dial tcp 127.0.0.1:11434: connection refused")), "ollama serve")
}
