// Package main contains the entrypoint for the analysis worker process.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/futureself/backend/internal/bias"
	"github.com/futureself/backend/internal/config"
	"github.com/futureself/backend/internal/database"
	"github.com/futureself/backend/internal/emotion"
	"github.com/futureself/backend/internal/logger"
	"github.com/futureself/backend/internal/queue"
	"github.com/futureself/backend/internal/tasks"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes the worker and consumes tasks until shutdown,
// returning the process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path, cfg.Database.ConnMaxLifetime)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	q, err := queue.New(cfg.Queue, log)
	if err != nil {
		log.Error("Failed to connect to task queue", "error", err)
		return 1
	}
	defer q.Close()

	worker := queue.NewWorker(q, cfg.Queue, log)
	tasks.RegisterAll(worker, tasks.Deps{
		Store:   store,
		Emotion: emotion.NewAnalyzer(),
		Bias:    bias.NewAnalyzer(),
		Log:     log,
	})

	log.Info("Starting worker...")
	runErr := worker.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Worker stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Worker stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
