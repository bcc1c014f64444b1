package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/futureself/backend/internal/config"
)

// openaiClient speaks the OpenAI chat-completions API. Pointing its base
// URL at an Ollama server's /v1 endpoint works as well.
type openaiClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

func newOpenAIClient(cfg config.AIConfig, httpClient *http.Client) *openaiClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/v1"
	}
	clientCfg.HTTPClient = httpClient

	return &openaiClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

func (c *openaiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(prompt, false))
	if err != nil {
		return "", translateOpenAIError(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *openaiClient) GenerateStream(ctx context.Context, prompt string, fn func(chunk string) error) error {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.request(prompt, true))
	if err != nil {
		return translateOpenAIError(err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return translateOpenAIError(err)
		}

		if len(resp.Choices) == 0 {
			continue
		}
		if content := resp.Choices[0].Delta.Content; content != "" {
			if err := fn(content); err != nil {
				return err
			}
		}
	}
}

func (c *openaiClient) request(prompt string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Stream:      stream,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
}

// translateOpenAIError maps the SDK's error type onto StatusError so the
// retry policy treats both providers the same.
func translateOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}

	return fmt.Errorf("calling openai-compatible provider: %w", err)
}
