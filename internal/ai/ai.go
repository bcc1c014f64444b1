// Package ai provides the model client used to generate future-self
// replies. Two providers are supported behind one interface: a native
// Ollama HTTP client and an OpenAI-compatible client, each wrapped with
// bounded retry.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/futureself/backend/internal/config"
)

// ErrEmptyResponse is returned when the provider answers successfully
// but with no usable text.
var ErrEmptyResponse = errors.New("ai: empty response from model")

// Client generates replies for an assembled prompt. GenerateStream
// invokes fn once per chunk as text arrives; returning an error from fn
// aborts the stream.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string, fn func(chunk string) error) error
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ai: provider returned status %d: %s", e.StatusCode, e.Body)
}

// New builds the configured provider client wrapped with retry.
func New(cfg config.AIConfig, log *slog.Logger) (Client, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	var inner Client
	switch cfg.Provider {
	case "ollama":
		inner = newOllamaClient(cfg, httpClient)
	case "openai":
		inner = newOpenAIClient(cfg, httpClient)
	default:
		return nil, fmt.Errorf("ai: unknown provider %q", cfg.Provider)
	}

	return &retryClient{
		inner:      inner,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryDelay,
		log:        log,
	}, nil
}

// retryable reports whether an attempt is worth repeating: transport
// errors, rate limits, and 5xx responses. Context cancellation is not.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, ErrEmptyResponse) {
		return false
	}
	return true
}
