package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/photo-challenges/internal/notify"
	"github.com/diagnosis/photo-challenges/pkg/config"
	"github.com/diagnosis/photo-challenges/pkg/events"
	"github.com/diagnosis/photo-challenges/pkg/logger"
	"github.com/diagnosis/photo-challenges/pkg/mailer"
	mw "github.com/diagnosis/photo-challenges/pkg/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		logger.Error("Notify service error", "error", err)
		os.Exit(1)
	}
	logger.Info("Notify service stopped")
}

func run() error {
	_ = godotenv.Load()
	cfg := config.Load()

	bus, err := events.NewNATSEventBus(cfg.NATS.URL, "notify")
	if err != nil {
		return err
	}
	defer bus.Close()

	worker := notify.NewWorker(bus, mailer.New(cfg.Email))
	if err := worker.Start(); err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("notify"))
	r.Use(mw.Health)
	r.Use(mw.Metrics(worker.Stats))

	srv := &http.Server{
		Addr:         ":8086",
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Notify service starting on :8086", "dev_mode", cfg.Email.DevMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down notify service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := bus.Drain(); err != nil {
			logger.Warn("Failed to drain event bus", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
