package providers

import (
	"context"
	"time"

	"github.com/cocodeai/cocode/internal/retry"
)

// BaseProvider holds shared retry configuration for LLM providers.
type BaseProvider struct {
	name       string
	maxRetries int
	retryDelay time.Duration
}

// NewBaseProvider creates a base provider with sane defaults.
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return BaseProvider{
		name:       name,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// retryableErr lets a plain isRetryable(error) bool func feed into
// retry.RetryContext's RetryableError check.
type retryableErr struct {
	error
	retryable bool
}

func (r retryableErr) Retryable() bool { return r.retryable }

// retryConfig builds the RetryContext backing both Retry and
// RetryWithBackoff; fallback detection is left disabled here since none of
// the provider isRetryableError checks distinguish overload from ordinary
// retryable failures.
func (b *BaseProvider) retryConfig() retry.ContextConfig {
	return retry.ContextConfig{
		MaxRetries:     b.maxRetries,
		BaseDelay:      b.retryDelay,
		MaxDelay:       b.retryDelay * time.Duration(1<<uint(maxInt(b.maxRetries, 1))),
		Multiplier:     2.0,
		EnableFallback: false,
	}
}

// Retry executes op, deciding whether to retry each failure via a fresh
// retry.RetryContext (exponential backoff capped at retryConfig's MaxDelay).
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	return b.retryWithDelayFn(ctx, isRetryable, nil, op)
}

// RetryWithBackoff is like Retry but lets the caller override the computed
// backoff delay per attempt (e.g. providers with their own multiplier
// curve).
func (b *BaseProvider) RetryWithBackoff(ctx context.Context, isRetryable func(error) bool, op func() error, delayFn func(attempt int) time.Duration) error {
	return b.retryWithDelayFn(ctx, isRetryable, delayFn, op)
}

func (b *BaseProvider) retryWithDelayFn(ctx context.Context, isRetryable func(error) bool, delayFn func(attempt int) time.Duration, op func() error) error {
	if op == nil {
		return nil
	}
	rc := retry.NewRetryContext(b.retryConfig())

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := op()
		if err == nil {
			return nil
		}

		wrapped := retryableErr{error: err, retryable: isRetryable == nil || isRetryable(err)}
		outcome := rc.Decide(wrapped)

		switch outcome.Decision {
		case retry.DecisionRetry:
			delay := outcome.Delay
			if delayFn != nil {
				delay = delayFn(rc.Attempts())
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		case retry.DecisionGiveUp, retry.DecisionFallback:
			return outcome.Err
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
