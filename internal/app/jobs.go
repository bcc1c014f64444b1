package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/futureself/backend/internal/database"
	"github.com/futureself/backend/internal/queue"
	"github.com/futureself/backend/internal/scheduler"
	"github.com/futureself/backend/internal/tasks"
)

// Jobs builds the scheduled job registry: database maintenance and the
// nightly analytics precompute that fans one task out per user.
func Jobs(store database.Store, q *queue.Queue, log *slog.Logger) map[string]scheduler.JobFunc {
	return map[string]scheduler.JobFunc{
		"db_maintenance": func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			return store.RunSQLMaintenance(ctx)
		},

		"analytics_refresh": func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()

			userIDs, err := store.ListUserIDs(ctx)
			if err != nil {
				return fmt.Errorf("listing users: %w", err)
			}

			// The date-scoped idempotency key keeps reschedules from
			// fanning out duplicate work within the same day.
			day := time.Now().UTC().Format(time.DateOnly)
			for _, userID := range userIDs {
				key := fmt.Sprintf("analytics:%s:%s", userID, day)
				if _, err := q.Enqueue(ctx, tasks.TypeGenerateAnalytics, tasks.AnalyticsPayload{
					UserID: userID,
					Days:   7,
					Type:   "all",
				}, key); err != nil {
					log.ErrorContext(ctx, "enqueueing analytics refresh failed",
						"user_id", userID, "error", err)
				}
			}

			log.InfoContext(ctx, "analytics refresh enqueued", "users", len(userIDs))
			return nil
		},
	}
}
