package ai

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"
)

const maxBackoff = 30 * time.Second

// permanentError marks an error that must not be retried regardless of
// its underlying cause.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// retryClient repeats failed attempts with exponential backoff and
// jitter. Streams retry only if no chunk was delivered yet; once text
// reached the caller the stream fails as-is.
type retryClient struct {
	inner      Client
	maxRetries int
	baseDelay  time.Duration
	log        *slog.Logger
}

func (c *retryClient) Generate(ctx context.Context, prompt string) (string, error) {
	var result string
	err := c.attempt(ctx, func() error {
		var err error
		result, err = c.inner.Generate(ctx, prompt)
		return err
	})
	return result, err
}

func (c *retryClient) GenerateStream(ctx context.Context, prompt string, fn func(chunk string) error) error {
	var delivered bool
	wrapped := func(chunk string) error {
		delivered = true
		return fn(chunk)
	}

	return c.attempt(ctx, func() error {
		err := c.inner.GenerateStream(ctx, prompt, wrapped)
		if err != nil && delivered {
			return &permanentError{err: err}
		}
		return err
	})
}

func (c *retryClient) attempt(ctx context.Context, call func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(attempt, c.baseDelay)
			c.log.WarnContext(ctx, "retrying model call",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = call()
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

// calculateBackoff doubles the base delay per attempt, caps it, and
// applies ±25% jitter so concurrent retries spread out.
func calculateBackoff(attempt int, base time.Duration) time.Duration {
	delay := base << (attempt - 1)
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}

	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(delay) * jitter)
}
