package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/futureself/backend/internal/config"
)

const (
	// popTimeout bounds each blocking pop so consumers notice context
	// cancellation promptly.
	popTimeout = 5 * time.Second

	// ownerPollInterval spaces the status checks while a duplicate task
	// waits for the key-owning task to finish.
	ownerPollInterval = 100 * time.Millisecond
)

// ProgressFunc lets a running task publish an intermediate note.
type ProgressFunc func(note string)

// Handler executes one task type. The returned value is stored as the
// task result JSON.
type Handler func(ctx context.Context, task *Task, progress ProgressFunc) (any, error)

// Worker runs task handlers over a pool of queue consumers.
type Worker struct {
	queue       *Queue
	handlers    map[string]Handler
	concurrency int
	timeLimit   time.Duration
	log         *slog.Logger
}

func NewWorker(q *Queue, cfg config.QueueConfig, log *slog.Logger) *Worker {
	return &Worker{
		queue:       q,
		handlers:    make(map[string]Handler),
		concurrency: cfg.Concurrency,
		timeLimit:   cfg.TaskTimeLimit,
		log:         log,
	}
}

// Register binds a handler to a task type. Registering the same type
// twice is a programming error.
func (w *Worker) Register(taskType string, h Handler) {
	if _, exists := w.handlers[taskType]; exists {
		panic(fmt.Sprintf("queue: handler already registered for %q", taskType))
	}
	w.handlers[taskType] = h
}

// Run consumes tasks until the context is cancelled. It returns nil on
// clean shutdown. Envelopes left in the processing list by an earlier
// run are pushed back onto the queue first.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.requeueInFlight(ctx); err != nil {
		return err
	}

	w.log.InfoContext(ctx, "worker starting",
		"queue", w.queue.name,
		"concurrency", w.concurrency,
		"task_types", len(w.handlers))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			return w.consume(ctx)
		})
	}
	return g.Wait()
}

// requeueInFlight recovers envelopes that were popped but never
// completed, so a crash between pop and completion does not lose the
// task.
func (w *Worker) requeueInFlight(ctx context.Context) error {
	moved := 0
	for {
		_, err := w.queue.rdb.LMove(ctx, w.queue.processingKey(), w.queue.name, "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return fmt.Errorf("requeueing in-flight tasks: %w", err)
		}
		moved++
	}
	if moved > 0 {
		w.log.InfoContext(ctx, "requeued in-flight tasks", "count", moved)
	}
	return nil
}

func (w *Worker) consume(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		envelope, err := w.queue.rdb.BLMove(ctx,
			w.queue.name, w.queue.processingKey(), "RIGHT", "LEFT", popTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.ErrorContext(ctx, "queue pop failed", "error", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		w.process(ctx, []byte(envelope))

		// A shutdown mid-task leaves the envelope in the processing
		// list for the next run to redeliver.
		if ctx.Err() == nil {
			w.ack(ctx, envelope)
		}
	}
}

// ack drops a completed envelope from the processing list. A failed ack
// means the envelope is redelivered on the next startup, which the
// idempotency claim makes safe.
func (w *Worker) ack(ctx context.Context, envelope string) {
	if err := w.queue.rdb.LRem(ctx, w.queue.processingKey(), 1, envelope).Err(); err != nil {
		w.log.ErrorContext(ctx, "removing task from processing list failed", "error", err)
	}
}

func (w *Worker) process(ctx context.Context, envelope []byte) {
	var task Task
	if err := json.Unmarshal(envelope, &task); err != nil {
		w.log.ErrorContext(ctx, "dropping malformed task envelope", "error", err)
		return
	}

	log := w.log.With("task_id", task.ID, "type", task.Type)

	handler, ok := w.handlers[task.Type]
	if !ok {
		log.ErrorContext(ctx, "no handler for task type")
		w.fail(ctx, task.ID, fmt.Errorf("unknown task type %q", task.Type))
		return
	}

	// Delivery is at-least-once, so side effects are guarded by the
	// idempotency key: the first worker to claim it runs the task, any
	// redelivery copies the recorded outcome instead.
	if task.IdempotencyKey != "" {
		claimed, ownerID, err := w.queue.claimIdempotencyKey(ctx, task.IdempotencyKey, task.ID)
		if err != nil {
			log.ErrorContext(ctx, "idempotency claim failed", "error", err)
			w.fail(ctx, task.ID, err)
			return
		}
		if !claimed && ownerID != task.ID {
			log.InfoContext(ctx, "duplicate task, reusing recorded outcome", "owner_task_id", ownerID)
			w.copyOutcome(ctx, task.ID, ownerID)
			return
		}
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.timeLimit)
	defer cancel()

	if err := w.queue.setStatus(taskCtx, task.ID, Status{State: StateStarted}); err != nil {
		log.ErrorContext(ctx, "marking task started failed", "error", err)
	}

	progress := func(note string) {
		if err := w.queue.setStatus(taskCtx, task.ID, Status{State: StateProgress, Note: note}); err != nil {
			log.WarnContext(taskCtx, "publishing task progress failed", "error", err)
		}
	}

	started := time.Now()
	result, err := handler(taskCtx, &task, progress)
	if err != nil {
		log.ErrorContext(ctx, "task failed", "error", err, "duration", time.Since(started))
		w.fail(ctx, task.ID, err)
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		log.ErrorContext(ctx, "encoding task result failed", "error", err)
		w.fail(ctx, task.ID, err)
		return
	}

	if err := w.queue.setStatus(ctx, task.ID, Status{State: StateSuccess, Result: raw}); err != nil {
		log.ErrorContext(ctx, "marking task succeeded failed", "error", err)
		return
	}
	log.InfoContext(ctx, "task completed", "duration", time.Since(started))
}

func (w *Worker) fail(ctx context.Context, taskID string, taskErr error) {
	if err := w.queue.setStatus(ctx, taskID, Status{State: StateFailure, Error: taskErr.Error()}); err != nil {
		w.log.ErrorContext(ctx, "marking task failed failed", "task_id", taskID, "error", err)
	}
}

// copyOutcome mirrors the owning task's terminal status onto a
// duplicate task id so polling either id converges. A still-running
// owner is waited on, bounded by the task time limit.
func (w *Worker) copyOutcome(ctx context.Context, taskID, ownerID string) {
	deadline := time.NewTimer(w.timeLimit)
	defer deadline.Stop()

	for {
		owner, err := w.queue.Status(ctx, ownerID)
		if err != nil || owner == nil {
			w.log.WarnContext(ctx, "owner task status unavailable", "task_id", taskID, "owner_task_id", ownerID)
			w.fail(ctx, taskID, fmt.Errorf("duplicate of task %s whose outcome expired", ownerID))
			return
		}

		if owner.State == StateSuccess || owner.State == StateFailure {
			if err := w.queue.setStatus(ctx, taskID, *owner); err != nil {
				w.log.ErrorContext(ctx, "copying task outcome failed", "task_id", taskID, "error", err)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			w.fail(ctx, taskID, fmt.Errorf("task %s did not finish within the time limit", ownerID))
			return
		case <-time.After(ownerPollInterval):
		}
	}
}
