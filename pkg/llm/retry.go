package llm

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"sidekick/pkg/llm/llmerrors"
	"sidekick/pkg/logx"
	"sidekick/pkg/metrics"
)

// Retry defaults. A zero RetryConfig field falls back to these.
const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 60 * time.Second
)

// jitterFraction bounds the random jitter added to each backoff delay.
const jitterFraction = 0.1

// RetryConfig controls the retry invoker's backoff behavior.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt, so a call
	// makes at most MaxRetries+1 attempts.
	MaxRetries int

	// InitialDelay is the backoff before the first retry; it doubles on each
	// subsequent retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff between attempts.
	MaxDelay time.Duration
}

// withDefaults fills zero fields from the package defaults.
func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	return c
}

// InvocationError is the terminal error returned when an invocation gives up.
// It distinguishes a fatal first-attempt failure from an exhausted retry
// budget.
type InvocationError struct {
	Err         error
	Op          string
	Attempts    int
	MaxAttempts int
	Fatal       bool
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("%s failed with non-retryable error after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s failed after %d/%d attempts: %v", e.Op, e.Attempts, e.MaxAttempts, e.Err)
}

// Unwrap returns the final underlying error.
func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Invoker runs model calls with exponential backoff on retryable errors.
// Classified non-retryable errors and unclassified errors fail fast.
type Invoker struct {
	cfg    RetryConfig
	logger *logx.Logger

	// sleep and jitter are replaceable for tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(base time.Duration) time.Duration
}

// NewInvoker creates a retry invoker with the given configuration. Zero
// fields in cfg take the package defaults.
func NewInvoker(cfg RetryConfig) *Invoker {
	return &Invoker{
		cfg:    cfg.withDefaults(),
		logger: logx.NewLogger("llm-retry"),
		sleep:  sleepCtx,
		jitter: func(base time.Duration) time.Duration {
			return time.Duration(rand.Float64() * jitterFraction * float64(base))
		},
	}
}

// Config returns the effective retry configuration.
func (inv *Invoker) Config() RetryConfig {
	return inv.cfg
}

// delayFor computes the backoff before retrying after the given failed
// attempt (1-based): initial * 2^(attempt-1) plus jitter, capped at MaxDelay.
func (inv *Invoker) delayFor(attempt int) time.Duration {
	base := inv.cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		base *= 2
		if base >= inv.cfg.MaxDelay {
			base = inv.cfg.MaxDelay
			break
		}
	}
	delay := base + inv.jitter(base)
	if delay > inv.cfg.MaxDelay {
		delay = inv.cfg.MaxDelay
	}
	return delay
}

// Invoke runs fn with retries per the invoker's configuration. The op string
// names the call for logging and metrics. On terminal failure the returned
// error is an *InvocationError wrapping the final underlying error.
func Invoke[T any](ctx context.Context, inv *Invoker, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := inv.cfg.MaxRetries + 1
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				inv.logger.Info("%s succeeded on attempt %d/%d", op, attempt, maxAttempts)
			}
			metrics.LLMRequests.WithLabelValues(op, metrics.StatusSuccess, "").Inc()
			metrics.LLMRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			metrics.LLMRequests.WithLabelValues(op, metrics.StatusError, "canceled").Inc()
			return zero, ctx.Err()
		}

		errType := llmerrors.TypeOf(err)
		if !llmerrors.IsRetryable(err) {
			inv.logger.Error("%s attempt %d/%d failed with non-retryable error (%s): %v",
				op, attempt, maxAttempts, errType, err)
			metrics.LLMRequests.WithLabelValues(op, metrics.StatusError, errType.String()).Inc()
			metrics.LLMRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
			return zero, &InvocationError{
				Err:         err,
				Op:          op,
				Attempts:    attempt,
				MaxAttempts: maxAttempts,
				Fatal:       true,
			}
		}

		if attempt == maxAttempts {
			break
		}

		delay := inv.delayFor(attempt)
		inv.logger.Warn("%s attempt %d/%d failed (%s), retrying in %v: %v",
			op, attempt, maxAttempts, errType, delay.Round(time.Millisecond), err)
		metrics.LLMRetries.WithLabelValues(op, errType.String()).Inc()

		if err := inv.sleep(ctx, delay); err != nil {
			metrics.LLMRequests.WithLabelValues(op, metrics.StatusError, "canceled").Inc()
			return zero, err
		}
	}

	errType := llmerrors.TypeOf(lastErr)
	inv.logger.Error("%s exhausted %d attempts, last error (%s): %v", op, maxAttempts, errType, lastErr)
	metrics.LLMRequests.WithLabelValues(op, metrics.StatusError, errType.String()).Inc()
	metrics.LLMRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return zero, &InvocationError{
		Err:         lastErr,
		Op:          op,
		Attempts:    maxAttempts,
		MaxAttempts: maxAttempts,
	}
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
