// Package scheduler runs the periodic maintenance jobs: database
// upkeep and analytics precomputation.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/futureself/backend/internal/config"
)

// JobFunc is one scheduled job body.
type JobFunc func(ctx context.Context) error

// Scheduler wires configured cron jobs onto gocron.
type Scheduler struct {
	scheduler gocron.Scheduler
	log       *slog.Logger
	cfg       config.SchedulerConfig
	jobs      map[string]JobFunc

	mu      sync.Mutex
	running bool
}

// New creates the scheduler over a registry of named job functions.
func New(cfg config.SchedulerConfig, jobs map[string]JobFunc, log *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		log:       log.With("component", "scheduler"),
		cfg:       cfg,
		jobs:      jobs,
	}, nil
}

// Start registers every enabled configured job and starts ticking.
// Disabled or unknown jobs are skipped with a log line.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	scheduled := 0
	for name, jobCfg := range s.cfg.Jobs {
		if !jobCfg.Enabled {
			s.log.Info("skipping disabled job", "job", name)
			continue
		}

		job, exists := s.jobs[name]
		if !exists {
			s.log.Warn("configured job has no registered body, skipping", "job", name)
			continue
		}
		if jobCfg.Schedule == "" {
			s.log.Warn("enabled job has empty schedule, skipping", "job", name)
			continue
		}

		_, err := s.scheduler.NewJob(
			gocron.CronJob(jobCfg.Schedule, false),
			gocron.NewTask(s.wrap(name, job), context.Background()),
			gocron.WithName(name),
		)
		if err != nil {
			s.log.Error("failed to schedule job", "job", name, "schedule", jobCfg.Schedule, "error", err)
			continue
		}

		s.log.Info("scheduled job", "job", name, "schedule", jobCfg.Schedule)
		scheduled++
	}

	s.scheduler.Start()
	s.running = true
	s.log.Info("scheduler started", "jobs", scheduled)
	return nil
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	err := s.scheduler.Shutdown()
	s.running = false
	if err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) wrap(name string, job JobFunc) func(ctx context.Context) {
	return func(ctx context.Context) {
		started := time.Now()
		s.log.Info("running job", "job", name)
		if err := job(ctx); err != nil {
			s.log.Error("job failed", "job", name, "error", err)
			return
		}
		s.log.Info("job finished", "job", name, "duration", time.Since(started))
	}
}
