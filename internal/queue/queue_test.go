package queue_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/futureself/backend/internal/config"
	"github.com/futureself/backend/internal/queue"
)

func newTestQueue(t *testing.T, concurrency int) (*queue.Queue, config.QueueConfig, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := config.QueueConfig{
		RedisURL:      "redis://" + mr.Addr(),
		Name:          "test:tasks",
		Concurrency:   concurrency,
		TaskTimeLimit: time.Minute,
		ResultTTL:     time.Hour,
	}

	q, err := queue.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	t.Cleanup(func() { q.Close() })

	return q, cfg, mr
}

func waitForState(t *testing.T, q *queue.Queue, taskID, want string) *queue.Status {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := q.Status(context.Background(), taskID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if status != nil && status.State == want {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached state %s", taskID, want)
	return nil
}

func TestEnqueueSetsPendingStatus(t *testing.T) {
	t.Parallel()

	q, _, _ := newTestQueue(t, 1)

	taskID, err := q.Enqueue(context.Background(), "analyze_emotion", map[string]string{"text": "hi"}, "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if taskID == "" {
		t.Fatal("Enqueue returned empty task id")
	}

	status, err := q.Status(context.Background(), taskID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status == nil || status.State != queue.StatePending {
		t.Errorf("status = %+v, want PENDING", status)
	}
}

func TestStatusUnknownTask(t *testing.T) {
	t.Parallel()

	q, _, _ := newTestQueue(t, 1)

	status, err := q.Status(context.Background(), "no-such-task")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != nil {
		t.Errorf("status = %+v, want nil for unknown task", status)
	}
}

func TestWorkerRunsTask(t *testing.T) {
	t.Parallel()

	q, cfg, _ := newTestQueue(t, 1)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	worker := queue.NewWorker(q, cfg, log)
	worker.Register("echo", func(ctx context.Context, task *queue.Task, progress queue.ProgressFunc) (any, error) {
		progress("working")
		var payload map[string]string
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return nil, err
		}
		return map[string]string{"echo": payload["text"]}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	taskID, err := q.Enqueue(context.Background(), "echo", map[string]string{"text": "hello"}, "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	status := waitForState(t, q, taskID, queue.StateSuccess)

	var result map[string]string
	if err := json.Unmarshal(status.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result["echo"] != "hello" {
		t.Errorf("result = %v, want echo of payload", result)
	}
}

func TestWorkerMarksFailure(t *testing.T) {
	t.Parallel()

	q, cfg, _ := newTestQueue(t, 1)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	worker := queue.NewWorker(q, cfg, log)
	worker.Register("boom", func(ctx context.Context, task *queue.Task, progress queue.ProgressFunc) (any, error) {
		return nil, context.DeadlineExceeded
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	taskID, err := q.Enqueue(context.Background(), "boom", nil, "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	status := waitForState(t, q, taskID, queue.StateFailure)
	if status.Error == "" {
		t.Error("failed task has no error message")
	}
}

func TestWorkerUnknownTaskType(t *testing.T) {
	t.Parallel()

	q, cfg, _ := newTestQueue(t, 1)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	worker := queue.NewWorker(q, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	taskID, err := q.Enqueue(context.Background(), "mystery", nil, "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitForState(t, q, taskID, queue.StateFailure)
}

func TestWorkerIdempotencyKeyRunsOnce(t *testing.T) {
	t.Parallel()

	q, cfg, _ := newTestQueue(t, 1)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	var runs atomic.Int32
	worker := queue.NewWorker(q, cfg, log)
	worker.Register("count", func(ctx context.Context, task *queue.Task, progress queue.ProgressFunc) (any, error) {
		runs.Add(1)
		return map[string]int32{"run": runs.Load()}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	firstID, err := q.Enqueue(context.Background(), "count", nil, "user1:msg1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	secondID, err := q.Enqueue(context.Background(), "count", nil, "user1:msg1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	first := waitForState(t, q, firstID, queue.StateSuccess)
	second := waitForState(t, q, secondID, queue.StateSuccess)

	if n := runs.Load(); n != 1 {
		t.Errorf("handler ran %d times, want 1", n)
	}
	if string(first.Result) != string(second.Result) {
		t.Errorf("duplicate result %s differs from original %s", second.Result, first.Result)
	}
}

func TestWorkerDuplicateWaitsForRunningOwner(t *testing.T) {
	t.Parallel()

	q, cfg, mr := newTestQueue(t, 2)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	release := make(chan struct{})
	defer close(release)

	var runs atomic.Int32
	worker := queue.NewWorker(q, cfg, log)
	worker.Register("slow", func(ctx context.Context, task *queue.Task, progress queue.ProgressFunc) (any, error) {
		runs.Add(1)
		<-release
		return map[string]string{"done": "yes"}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	firstID, err := q.Enqueue(context.Background(), "slow", nil, "same-key")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	secondID, err := q.Enqueue(context.Background(), "slow", nil, "same-key")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Wait until both consumers picked up their copy, so the duplicate
	// sees the owner mid-run rather than finished.
	deadline := time.Now().Add(5 * time.Second)
	for {
		entries, _ := mr.List("test:tasks:processing")
		if len(entries) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("both tasks never in flight, processing list = %v", entries)
		}
		time.Sleep(10 * time.Millisecond)
	}

	release <- struct{}{}

	first := waitForState(t, q, firstID, queue.StateSuccess)
	second := waitForState(t, q, secondID, queue.StateSuccess)

	if n := runs.Load(); n != 1 {
		t.Errorf("handler ran %d times, want 1", n)
	}
	if string(first.Result) != string(second.Result) {
		t.Errorf("duplicate result %s differs from original %s", second.Result, first.Result)
	}
}

func TestWorkerRequeuesInFlightTasks(t *testing.T) {
	t.Parallel()

	q, cfg, mr := newTestQueue(t, 1)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	// An envelope stranded in the processing list stands in for a
	// worker that died between pop and completion.
	orphan := queue.Task{
		ID:         "orphan-1",
		Type:       "echo",
		Payload:    json.RawMessage(`{"text":"again"}`),
		EnqueuedAt: time.Now().UTC(),
	}
	envelope, err := json.Marshal(orphan)
	if err != nil {
		t.Fatalf("encoding envelope: %v", err)
	}
	if _, err := mr.Lpush("test:tasks:processing", string(envelope)); err != nil {
		t.Fatalf("seeding processing list: %v", err)
	}

	worker := queue.NewWorker(q, cfg, log)
	worker.Register("echo", func(ctx context.Context, task *queue.Task, progress queue.ProgressFunc) (any, error) {
		var payload map[string]string
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return nil, err
		}
		return map[string]string{"echo": payload["text"]}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	status := waitForState(t, q, "orphan-1", queue.StateSuccess)

	var result map[string]string
	if err := json.Unmarshal(status.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result["echo"] != "again" {
		t.Errorf("result = %v, want echo of recovered payload", result)
	}

	if entries, _ := mr.List("test:tasks:processing"); len(entries) != 0 {
		t.Errorf("processing list = %v, want empty after completion", entries)
	}
}

func TestWorkerStopsOnCancel(t *testing.T) {
	t.Parallel()

	q, cfg, _ := newTestQueue(t, 2)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	worker := queue.NewWorker(q, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on cancel", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
