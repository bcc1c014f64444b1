package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/futureself/backend/internal/config"
	"github.com/futureself/backend/internal/database"
	"github.com/futureself/backend/internal/queue"
	"github.com/futureself/backend/internal/server"
)

type fakeAI struct {
	reply  string
	chunks []string
	err    error
}

func (f *fakeAI) Generate(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeAI) GenerateStream(ctx context.Context, prompt string, fn func(chunk string) error) error {
	if f.err != nil {
		return f.err
	}
	for _, chunk := range f.chunks {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

type testEnv struct {
	handler http.Handler
	store   database.Store
	queue   *queue.Queue
	ai      *fakeAI
}

func newTestEnv(t *testing.T, apiKey string) *testEnv {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), time.Minute)
	if err != nil {
		t.Fatalf("database.NewDB: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, log)

	mr := miniredis.RunT(t)
	queueCfg := config.QueueConfig{
		RedisURL:      "redis://" + mr.Addr(),
		Name:          "test:tasks",
		Concurrency:   1,
		TaskTimeLimit: time.Minute,
		ResultTTL:     time.Hour,
	}
	q, err := queue.New(queueCfg, log)
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	t.Cleanup(func() { q.Close() })

	model := &fakeAI{reply: "Future Self: Take the trip.", chunks: []string{"Take ", "the trip."}}

	cfg := &config.Config{
		Server: config.ServerConfig{
			Addr:         ":0",
			APIKey:       apiKey,
			HistoryLimit: 20,
		},
		Queue: queueCfg,
	}

	srv := server.New(cfg, server.Deps{
		Store: store,
		AI:    model,
		Queue: q,
		Log:   log,
	})

	return &testEnv{
		handler: srv.Handler(),
		store:   store,
		queue:   q,
		ai:      model,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createUser(t *testing.T, body map[string]string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/users", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /users = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding user response: %v", err)
	}
	return resp.ID
}

func TestRootBanner(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "future-self backend") {
		t.Errorf("banner = %s", rec.Body)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, body %s", rec.Code, rec.Body)
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "secret")

	rec := env.do(t, http.MethodPost, "/users", map[string]string{"name": "Maya"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without key = %d, want 401", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health without key = %d, want 200", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{"name":"Maya"}`))
	req.Header.Set("X-API-Key", "secret")
	authed := httptest.NewRecorder()
	env.handler.ServeHTTP(authed, req)
	if authed.Code != http.StatusCreated {
		t.Errorf("with key = %d, want 201", authed.Code)
	}
}

func TestUserLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	userID := env.createUser(t, map[string]string{
		"name":          "Maya",
		"birth_date":    "1995-07-10",
		"birth_country": "France",
	})

	rec := env.do(t, http.MethodGet, "/users/"+userID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /users/{id} = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "1995-07-10") {
		t.Errorf("user body = %s, want birth date", rec.Body)
	}

	rec = env.do(t, http.MethodPut, "/users/"+userID, map[string]string{"location": "Lyon"})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /users/{id} = %d, body %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "Lyon") {
		t.Errorf("updated user = %s, want Lyon", rec.Body)
	}

	// PUT merges, so fields absent from the request survive.
	for _, want := range []string{"Maya", "1995-07-10"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("updated user = %s, want %s kept", rec.Body, want)
		}
	}

	rec = env.do(t, http.MethodGet, "/users/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET unknown user = %d, want 404", rec.Code)
	}
}

func TestCreateUserValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/users", map[string]string{"name": ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty name = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/users", map[string]string{"name": "Maya", "birth_date": "10/07/1995"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad birth date = %d, want 400", rec.Code)
	}
}

func TestAstrology(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	userID := env.createUser(t, map[string]string{
		"name":          "Maya",
		"birth_date":    "1995-07-10",
		"birth_country": "France",
	})

	rec := env.do(t, http.MethodGet, "/users/"+userID+"/astrology", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET astrology = %d, body %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "Cancer") {
		t.Errorf("astrology body = %s, want Cancer sun sign", rec.Body)
	}

	noBirthDate := env.createUser(t, map[string]string{"name": "Sam"})
	rec = env.do(t, http.MethodGet, "/users/"+noBirthDate+"/astrology", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("astrology without birth date = %d, want 400", rec.Code)
	}
}

func TestChatPipeline(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	userID := env.createUser(t, map[string]string{"name": "Maya"})

	rec := env.do(t, http.MethodPost, "/chat", map[string]string{
		"user_id": userID,
		"message": "I love hiking! Should I move to the mountains?",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /chat = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding chat response: %v", err)
	}
	// The speaker label is stripped before the reply goes out.
	if resp.Reply != "Take the trip." {
		t.Errorf("reply = %q, want humanized reply", resp.Reply)
	}

	rec = env.do(t, http.MethodGet, "/users/"+userID+"/messages", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET messages = %d", rec.Code)
	}
	var messages struct {
		Messages []struct {
			Author  string `json:"author"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &messages); err != nil {
		t.Fatalf("decoding messages: %v", err)
	}
	if len(messages.Messages) != 2 {
		t.Fatalf("len(messages) = %d, want user message and reply", len(messages.Messages))
	}
	if messages.Messages[0].Author != userID || messages.Messages[1].Author != "ai" {
		t.Errorf("authors = %q, %q, want user then ai",
			messages.Messages[0].Author, messages.Messages[1].Author)
	}

	// The pipeline also snapshots the style profile and merges details.
	profile, err := env.store.GetStyleProfile(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetStyleProfile: %v", err)
	}
	if profile == nil || profile.MessageLength == 0 {
		t.Errorf("style profile = %+v, want populated snapshot", profile)
	}

	details, err := env.store.GetPersonalDetails(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetPersonalDetails: %v", err)
	}
	if len(details) == 0 {
		t.Error("expected extracted personal details after chat")
	}
}

func TestChatValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/chat", map[string]string{"user_id": "", "message": "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing user_id = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/chat", map[string]string{"user_id": "ghost", "message": "hi"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user = %d, want 404", rec.Code)
	}
}

func TestChatUpstreamFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	env.ai.err = fmt.Errorf("model exploded")
	userID := env.createUser(t, map[string]string{"name": "Maya"})

	rec := env.do(t, http.MethodPost, "/chat", map[string]string{"user_id": userID, "message": "hi"})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("POST /chat with failing model = %d, want 502", rec.Code)
	}
}

func TestChatStream(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	userID := env.createUser(t, map[string]string{"name": "Maya"})

	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	body := strings.NewReader(fmt.Sprintf(`{"user_id":%q,"message":"hello"}`, userID))
	resp, err := http.Post(ts.URL+"/chat/stream", "application/json", body)
	if err != nil {
		t.Fatalf("POST /chat/stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	stream := string(raw)

	for _, want := range []string{"data: Take ", "data: the trip.", "event: done"} {
		if !strings.Contains(stream, want) {
			t.Errorf("stream missing %q:\n%s", want, stream)
		}
	}

	// The reply is persisted even though it went out chunked.
	messages, err := env.store.GetRecentMessages(context.Background(), userID, 10)
	if err != nil {
		t.Fatalf("GetRecentMessages: %v", err)
	}
	if len(messages) != 2 || messages[1].Content != "Take the trip." {
		t.Errorf("persisted messages = %+v, want user message and reply", messages)
	}
}

func TestChatStreamMultilineChunks(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	env.ai.chunks = []string{"Pack light.\nTrust yourself."}
	userID := env.createUser(t, map[string]string{"name": "Maya"})

	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	body := strings.NewReader(fmt.Sprintf(`{"user_id":%q,"message":"hello"}`, userID))
	resp, err := http.Post(ts.URL+"/chat/stream", "application/json", body)
	if err != nil {
		t.Fatalf("POST /chat/stream: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	stream := string(raw)

	// A newline inside a chunk becomes an extra data line in the same
	// event, never an escape sequence the client must undo.
	if !strings.Contains(stream, "data: Pack light.\ndata: Trust yourself.\n\n") {
		t.Errorf("stream missing multi-line data framing:\n%s", stream)
	}
	if strings.Contains(stream, `\n`) {
		t.Errorf("stream contains escaped newlines:\n%s", stream)
	}
	if !strings.Contains(stream, "event: done\ndata: Pack light.\ndata: Trust yourself.\n\n") {
		t.Errorf("done event not framed per line:\n%s", stream)
	}
}

func TestAnalysisEnqueueAndPoll(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	userID := env.createUser(t, map[string]string{"name": "Maya"})

	rec := env.do(t, http.MethodPost, "/analysis/emotion", map[string]string{
		"user_id": userID,
		"text":    "I am thrilled about tomorrow!",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /analysis/emotion = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding task response: %v", err)
	}
	if resp.TaskID == "" {
		t.Fatal("empty task id")
	}

	rec = env.do(t, http.MethodGet, "/tasks/"+resp.TaskID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /tasks/{id} = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "PENDING") {
		t.Errorf("task status = %s, want PENDING before a worker runs", rec.Body)
	}

	rec = env.do(t, http.MethodGet, "/tasks/nonexistent", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown task = %d, want 404", rec.Code)
	}
}

func TestAnalysisValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/analysis/bias", map[string]string{"user_id": "u", "text": ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty text = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/analysis/bias", map[string]string{"user_id": "ghost", "text": "hi"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user = %d, want 404", rec.Code)
	}
}

func TestLocationContextUnconfigured(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/context/location?q=Lyon", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured location = %d, want 503", rec.Code)
	}
}

func TestAnalyticsEmpty(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	userID := env.createUser(t, map[string]string{"name": "Maya"})

	rec := env.do(t, http.MethodGet, "/users/"+userID+"/analytics?days=7", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET analytics = %d, body %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "stable") {
		t.Errorf("analytics = %s, want stable trends with no data", rec.Body)
	}

	rec = env.do(t, http.MethodGet, "/users/"+userID+"/analytics?type=velocity", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad type = %d, want 400", rec.Code)
	}
}
