package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/futureself/backend/internal/config"
)

// ollamaClient talks to Ollama's native chat API. Streaming responses
// arrive as newline-delimited JSON objects.
type ollamaClient struct {
	baseURL     string
	model       string
	temperature float32
	httpClient  *http.Client
}

func newOllamaClient(cfg config.AIConfig, httpClient *http.Client) *ollamaClient {
	return &ollamaClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  httpClient,
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

func (c *ollamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.send(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}
	if chatResp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", chatResp.Error)
	}
	if strings.TrimSpace(chatResp.Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return chatResp.Message.Content, nil
}

func (c *ollamaClient) GenerateStream(ctx context.Context, prompt string, fn func(chunk string) error) error {
	resp, err := c.send(ctx, prompt, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("decoding ollama stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return fmt.Errorf("ollama error: %s", chunk.Error)
		}

		if chunk.Message.Content != "" {
			if err := fn(chunk.Message.Content); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading ollama stream: %w", err)
	}
	return nil
}

func (c *ollamaClient) send(ctx context.Context, prompt string, stream bool) (*http.Response, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    c.model,
		Messages: []ollamaMessage{{Role: "user", Content: prompt}},
		Stream:   stream,
		Options:  ollamaOptions{Temperature: c.temperature},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return resp, nil
}
