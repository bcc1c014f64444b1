// Package app orchestrates the long-running components of the API
// process: the HTTP server and the job scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/futureself/backend/internal/config"
	"github.com/futureself/backend/internal/scheduler"
)

// App owns the HTTP server and scheduler lifecycles.
type App struct {
	log       *slog.Logger
	cfg       *config.Config
	server    *http.Server
	scheduler *scheduler.Scheduler
}

// New wires the HTTP handler and scheduler into an application.
func New(cfg *config.Config, handler http.Handler, sched *scheduler.Scheduler, log *slog.Logger) *App {
	return &App{
		log: log.With("component", "app"),
		cfg: cfg,
		server: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		scheduler: sched,
	}
}

// Run starts everything and blocks until the context is cancelled or a
// component fails. Shutdown is graceful within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		a.log.Info("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := a.scheduler.Start(); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}

		<-gCtx.Done()
		if err := a.scheduler.Stop(); err != nil {
			a.log.Error("stopping scheduler failed", "error", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.log.Info("app stopped gracefully")
	return nil
}
