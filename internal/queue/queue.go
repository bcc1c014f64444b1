// Package queue implements a Redis-backed task queue: producers push
// task envelopes, workers pop and execute them, and task status is
// tracked in per-task hashes that HTTP clients poll by id.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/futureself/backend/internal/config"
)

// Task states, following the Celery naming the mobile clients already
// understand.
const (
	StatePending  = "PENDING"
	StateStarted  = "STARTED"
	StateProgress = "PROGRESS"
	StateSuccess  = "SUCCESS"
	StateFailure  = "FAILURE"
)

// Task is the envelope pushed onto the queue list.
type Task struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
}

// Status is the tracked state of a task, read from its status hash.
type Status struct {
	State     string          `json:"state"`
	Note      string          `json:"note,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Queue is the producer side. It is safe for concurrent use.
type Queue struct {
	rdb       *redis.Client
	name      string
	resultTTL time.Duration
	log       *slog.Logger
}

// New connects to Redis using the configured URL.
func New(cfg config.QueueConfig, log *slog.Logger) (*Queue, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	return &Queue{
		rdb:       redis.NewClient(opts),
		name:      cfg.Name,
		resultTTL: cfg.ResultTTL,
		log:       log,
	}, nil
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func (q *Queue) Close() error {
	return q.rdb.Close()
}

// Enqueue pushes a task and records its PENDING status. The returned id
// is what clients poll with.
func (q *Queue) Enqueue(ctx context.Context, taskType string, payload any, idempotencyKey string) (string, error) {
	if taskType == "" {
		return "", fmt.Errorf("empty task type")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding task payload: %w", err)
	}

	task := Task{
		ID:             uuid.NewString(),
		Type:           taskType,
		Payload:        raw,
		IdempotencyKey: idempotencyKey,
		EnqueuedAt:     time.Now().UTC(),
	}

	envelope, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("encoding task envelope: %w", err)
	}

	if err := q.setStatus(ctx, task.ID, Status{State: StatePending}); err != nil {
		return "", err
	}
	if err := q.rdb.LPush(ctx, q.name, envelope).Err(); err != nil {
		return "", fmt.Errorf("pushing task: %w", err)
	}

	q.log.InfoContext(ctx, "task enqueued", "task_id", task.ID, "type", taskType)
	return task.ID, nil
}

// Status reads a task's status hash. Unknown or expired ids return
// (nil, nil).
func (q *Queue) Status(ctx context.Context, taskID string) (*Status, error) {
	fields, err := q.rdb.HGetAll(ctx, q.statusKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading task status: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	status := &Status{
		State: fields["state"],
		Note:  fields["note"],
		Error: fields["error"],
	}
	if result := fields["result"]; result != "" {
		status.Result = json.RawMessage(result)
	}
	if ts := fields["updated_at"]; ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			status.UpdatedAt = parsed
		}
	}
	return status, nil
}

func (q *Queue) setStatus(ctx context.Context, taskID string, status Status) error {
	key := q.statusKey(taskID)

	fields := map[string]any{
		"state":      status.State,
		"note":       status.Note,
		"error":      status.Error,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if status.Result != nil {
		fields["result"] = string(status.Result)
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, q.resultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing task status: %w", err)
	}
	return nil
}

// claimIdempotencyKey records the key as owned by taskID. The second
// return is the owning task id when the key was already claimed.
func (q *Queue) claimIdempotencyKey(ctx context.Context, key, taskID string) (bool, string, error) {
	redisKey := q.name + ":idem:" + key

	claimed, err := q.rdb.SetNX(ctx, redisKey, taskID, q.resultTTL).Result()
	if err != nil {
		return false, "", fmt.Errorf("claiming idempotency key: %w", err)
	}
	if claimed {
		return true, taskID, nil
	}

	owner, err := q.rdb.Get(ctx, redisKey).Result()
	if err != nil {
		return false, "", fmt.Errorf("resolving idempotency key owner: %w", err)
	}
	return false, owner, nil
}

func (q *Queue) statusKey(taskID string) string {
	return q.name + ":task:" + taskID
}

// processingKey names the list holding envelopes popped by workers but
// not yet completed.
func (q *Queue) processingKey() string {
	return q.name + ":processing"
}
