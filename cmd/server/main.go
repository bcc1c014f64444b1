// Package main contains the entrypoint for the API server process.
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

	"github.com/futureself/backend/internal/ai"
	"github.com/futureself/backend/internal/app"
	"github.com/futureself/backend/internal/config"
	"github.com/futureself/backend/internal/database"
	"github.com/futureself/backend/internal/location"
	"github.com/futureself/backend/internal/logger"
	"github.com/futureself/backend/internal/queue"
	"github.com/futureself/backend/internal/scheduler"
	"github.com/futureself/backend/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all components and blocks until shutdown, returning
// the process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	// A missing .env is fine; it only supplements the environment.
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

	model, err := ai.New(cfg.AI, log)
	if err != nil {
		log.Error("Failed to initialize AI client", "error", err)
		return 1
	}

	q, err := queue.New(cfg.Queue, log)
	if err != nil {
		log.Error("Failed to connect to task queue", "error", err)
		return 1
	}
	defer q.Close()

	locations := location.NewService(cfg.Location, log)

	srv := server.New(cfg, server.Deps{
		Store:    store,
		AI:       model,
		Queue:    q,
		Location: locations,
		Log:      log,
	})

	sched, err := scheduler.New(cfg.Scheduler, app.Jobs(store, q, log), log)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	application := app.New(cfg, srv.Handler(), sched, log)

	log.Info("Starting server...")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Server stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Server stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
