package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          50 * time.Millisecond,
	}
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("test-provider", testBreakerConfig())
	boom := errors.New("provider exploded")

	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error {
			return boom
		})
		require.ErrorIs(t, err, boom)
	}

	require.Equal(t, StateOpen, cb.State())

	// Calls fail fast without invoking the function.
	invoked := false
	start := time.Now()
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	require.Error(t, err)
	require.True(t, IsDegraded(err))
	require.False(t, invoked)
	require.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test-provider", testBreakerConfig())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("fail")
		})
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(60 * time.Millisecond)

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test-provider", testBreakerConfig())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("fail")
		})
	}
	time.Sleep(60 * time.Millisecond)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("still failing")
	})
	require.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test-provider", testBreakerConfig())

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("fail")
		})
	}
	require.Equal(t, StateClosed, cb.State())

	require.NoError(t, cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	}))

	// Two more failures should not trip the threshold of three.
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("fail")
		})
	}
	require.Equal(t, StateClosed, cb.State())
}

func TestExecuteFuncReturnsValue(t *testing.T) {
	cb := NewCircuitBreaker("test-provider", testBreakerConfig())

	got, err := ExecuteFunc(cb, context.Background(), func(ctx context.Context) (string, error) {
		return "hello", nil
	})
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestCircuitBreakerManagerReusesBreakers(t *testing.T) {
	mgr := NewCircuitBreakerManager(testBreakerConfig())

	a := mgr.Get("ollama")
	b := mgr.Get("ollama")
	c := mgr.Get("openai")

	require.Same(t, a, b)
	require.NotSame(t, a, c)
}

func TestCircuitBreakerManagerSetConfigLeavesExistingBreakers(t *testing.T) {
	mgr := NewCircuitBreakerManager(testBreakerConfig())
	before := mgr.Get("llm-a")

	looser := testBreakerConfig()
	looser.FailureThreshold = 100
	mgr.SetConfig(looser)

	require.Same(t, before, mgr.Get("llm-a"), "existing breakers keep their state")

	// A breaker created after the change picks up the new threshold: three
	// failures no longer open it.
	after := mgr.Get("llm-b")
	for i := 0; i < 3; i++ {
		_ = after.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("fail")
		})
	}
	require.Equal(t, StateClosed, after.State())
}
