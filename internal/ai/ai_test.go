package ai_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/futureself/backend/internal/ai"
	"github.com/futureself/backend/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL string) config.AIConfig {
	return config.AIConfig{
		Provider:    "ollama",
		BaseURL:     baseURL,
		Model:       "mistral",
		Temperature: 0.8,
		Timeout:     5 * time.Second,
		MaxRetries:  2,
		RetryDelay:  time.Millisecond,
	}
}

func TestNewUnknownProvider(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1:1")
	cfg.Provider = "gemini"
	if _, err := ai.New(cfg, discardLogger()); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestOllamaGenerate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"You already know the answer."},"done":true}`)
	}))
	defer server.Close()

	client, err := ai.New(testConfig(server.URL), discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := client.Generate(context.Background(), "should I go?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "You already know the answer." {
		t.Errorf("Generate = %q, want model reply", got)
	}
}

func TestOllamaGenerateEmptyResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"  "},"done":true}`)
	}))
	defer server.Close()

	client, err := ai.New(testConfig(server.URL), discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := client.Generate(context.Background(), "hi"); !errors.Is(err, ai.ErrEmptyResponse) {
		t.Errorf("Generate error = %v, want ErrEmptyResponse", err)
	}
}

func TestOllamaGenerateRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"here now"},"done":true}`)
	}))
	defer server.Close()

	client, err := ai.New(testConfig(server.URL), discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := client.Generate(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "here now" {
		t.Errorf("Generate = %q, want %q", got, "here now")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("provider called %d times, want 3", n)
	}
}

func TestOllamaGenerateExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := ai.New(testConfig(server.URL), discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = client.Generate(context.Background(), "hi")
	var statusErr *ai.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Generate error = %v, want StatusError", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", statusErr.StatusCode)
	}
	// MaxRetries = 2, so three attempts total.
	if n := calls.Load(); n != 3 {
		t.Errorf("provider called %d times, want 3", n)
	}
}

func TestOllamaGenerateStream(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Take "},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"the trip."},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer server.Close()

	client, err := ai.New(testConfig(server.URL), discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var b strings.Builder
	err = client.GenerateStream(context.Background(), "hi", func(chunk string) error {
		b.WriteString(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if got := b.String(); got != "Take the trip." {
		t.Errorf("streamed text = %q, want %q", got, "Take the trip.")
	}
}

func TestOllamaGenerateStreamCallbackAborts(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"chunk"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"never seen"},"done":true}`)
	}))
	defer server.Close()

	client, err := ai.New(testConfig(server.URL), discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	abort := errors.New("client went away")
	err = client.GenerateStream(context.Background(), "hi", func(chunk string) error {
		return abort
	})
	if !errors.Is(err, abort) {
		t.Errorf("GenerateStream error = %v, want callback error", err)
	}
}

func TestOllamaGenerateContextCancelled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server watches for client disconnect;
		// otherwise r.Context() is never cancelled and Close hangs.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := ai.New(testConfig(server.URL), discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.Generate(ctx, "hi"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
