package client

import (
	"context"
	"math/rand"
	"time"

	"zarz/internal/logging"
)

// RetryConfig holds retry configuration shared by all providers.
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts
	RetryDelay time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum backoff delay (cap)
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// CalculateBackoff calculates exponential backoff with up to 25% jitter.
func CalculateBackoff(baseDelay time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	// Exponential backoff: baseDelay * 2^attempt
	delay := baseDelay * time.Duration(1<<uint(attempt))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}

	if delay/4 <= 0 {
		return delay
	}
	jitter := time.Duration(rand.Int63n(int64(delay / 4)))
	return delay + jitter
}

// retryingProvider retries transient failures of the wrapped provider.
type retryingProvider struct {
	CompletionProvider
	cfg RetryConfig
}

// WithRetry wraps p so that retryable errors are retried with backoff.
func WithRetry(p CompletionProvider, cfg RetryConfig) CompletionProvider {
	if cfg.MaxRetries <= 0 {
		return p
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = DefaultRetryConfig().MaxDelay
	}
	return &retryingProvider{CompletionProvider: p, cfg: cfg}
}

func (r *retryingProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(r.cfg.RetryDelay, attempt-1, r.cfg.MaxDelay)
			logging.Warn("retrying completion",
				"provider", r.Name(),
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		resp, err := r.CompletionProvider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryableError(err) {
			return nil, err
		}
	}
	return nil, lastErr
}
