package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidekick/pkg/llm/llmerrors"
	"sidekick/pkg/logx"
)

// newTestInvoker returns an invoker whose sleeps are recorded instead of
// performed, with jitter disabled for deterministic delay checks.
func newTestInvoker(cfg RetryConfig) (*Invoker, *[]time.Duration) {
	inv := NewInvoker(cfg)
	slept := &[]time.Duration{}
	inv.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	inv.jitter = func(time.Duration) time.Duration { return 0 }
	return inv, slept
}

func retryableErr(msg string) error {
	return llmerrors.NewError(llmerrors.ErrorTypeRateLimit, msg)
}

func TestInvokeSucceedsFirstAttempt(t *testing.T) {
	inv, slept := newTestInvoker(RetryConfig{})
	calls := 0

	result, err := Invoke(context.Background(), inv, "worker", func(_ context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestInvokeSucceedsAfterRetryableFailures(t *testing.T) {
	inv, slept := newTestInvoker(RetryConfig{MaxRetries: 3})
	calls := 0

	result, err := Invoke(context.Background(), inv, "worker", func(_ context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", retryableErr("slow down")
		}
		return "recovered", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 3, calls, "two failures then success means three attempts")
	assert.Len(t, *slept, 2)
}

func TestInvokeLogsRecoveryAfterRetries(t *testing.T) {
	inv, _ := newTestInvoker(RetryConfig{MaxRetries: 2})
	calls := 0

	_, err := Invoke(context.Background(), inv, "flaky-recovery", func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", retryableErr("slow down")
		}
		return "ok", nil
	})
	require.NoError(t, err)

	found := false
	for _, entry := range logx.GetRecentLogEntries("llm-retry") {
		if strings.Contains(entry.Message, "flaky-recovery succeeded on attempt 3/3") {
			found = true
			break
		}
	}
	assert.True(t, found, "recovery after retries is logged with the attempt number")
}

func TestInvokeExhaustsRetryBudget(t *testing.T) {
	inv, slept := newTestInvoker(RetryConfig{MaxRetries: 3})
	calls := 0

	_, err := Invoke(context.Background(), inv, "worker", func(_ context.Context) (string, error) {
		calls++
		return "", retryableErr("still failing")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls, "max_retries=3 means 4 total attempts")
	assert.Len(t, *slept, 3, "no delay after the final attempt")

	var invErr *InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, 4, invErr.Attempts)
	assert.Equal(t, 4, invErr.MaxAttempts)
	assert.False(t, invErr.Fatal)
	assert.True(t, llmerrors.Is(invErr.Err, llmerrors.ErrorTypeRateLimit))
}

func TestInvokeFatalErrorFailsFast(t *testing.T) {
	inv, slept := newTestInvoker(RetryConfig{MaxRetries: 5})
	calls := 0

	_, err := Invoke(context.Background(), inv, "worker", func(_ context.Context) (string, error) {
		calls++
		return "", llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad api key")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept, "fatal failure must not delay")

	var invErr *InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.True(t, invErr.Fatal)
	assert.Equal(t, 1, invErr.Attempts)
}

func TestInvokeUnclassifiedErrorFailsFast(t *testing.T) {
	inv, _ := newTestInvoker(RetryConfig{MaxRetries: 5})
	calls := 0

	_, err := Invoke(context.Background(), inv, "worker", func(_ context.Context) (string, error) {
		calls++
		return "", errors.New("something nobody recognizes")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "unclassified errors are not retried")

	var invErr *InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.True(t, invErr.Fatal)
}

func TestInvokeBackoffDoublesAndCaps(t *testing.T) {
	inv, slept := newTestInvoker(RetryConfig{
		MaxRetries:   5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     5 * time.Second,
	})

	_, err := Invoke(context.Background(), inv, "worker", func(_ context.Context) (string, error) {
		return "", retryableErr("nope")
	})
	require.Error(t, err)

	require.Len(t, *slept, 5)
	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second, // capped
		5 * time.Second,
	}
	assert.Equal(t, expected, *slept)
}

func TestInvokeJitterStaysWithinBound(t *testing.T) {
	inv := NewInvoker(RetryConfig{InitialDelay: 1 * time.Second, MaxDelay: 60 * time.Second})

	for attempt := 1; attempt <= 4; attempt++ {
		base := 1 * time.Second << (attempt - 1)
		for i := 0; i < 50; i++ {
			delay := inv.delayFor(attempt)
			assert.GreaterOrEqual(t, delay, base)
			assert.LessOrEqual(t, delay, base+time.Duration(float64(base)*jitterFraction))
		}
	}
}

func TestInvokeCancelDuringBackoff(t *testing.T) {
	inv := NewInvoker(RetryConfig{MaxRetries: 3, InitialDelay: 10 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	inv.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := Invoke(ctx, inv, "worker", func(_ context.Context) (string, error) {
		calls++
		return "", retryableErr("busy")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestInvokeDefaults(t *testing.T) {
	inv := NewInvoker(RetryConfig{})
	cfg := inv.Config()
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultInitialDelay, cfg.InitialDelay)
	assert.Equal(t, DefaultMaxDelay, cfg.MaxDelay)
}
