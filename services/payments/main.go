package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/photo-challenges/internal/notify"
	"github.com/diagnosis/photo-challenges/internal/repo/postgres"
	"github.com/diagnosis/photo-challenges/internal/timeline"
	"github.com/diagnosis/photo-challenges/pkg/auth"
	"github.com/diagnosis/photo-challenges/pkg/config"
	"github.com/diagnosis/photo-challenges/pkg/database"
	"github.com/diagnosis/photo-challenges/pkg/events"
	"github.com/diagnosis/photo-challenges/pkg/logger"
	mw "github.com/diagnosis/photo-challenges/pkg/middleware"
	"github.com/diagnosis/photo-challenges/services/payments/internal/handlers"
	"github.com/diagnosis/photo-challenges/services/payments/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded", "error", err)
	}
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool, "up"); err != nil {
			logger.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "payments")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	if cfg.Payments.SecondKey == "" {
		logger.Warn("PAYMENTS_SECOND_KEY not set, gateway signatures are not verified")
	}

	store := postgres.NewStore(pool)
	notifier := notify.NewDispatcher(eventBus)
	dispatcher := service.NewDispatcher(service.Deps{
		Tx:            store,
		Payments:      store.Payments(),
		Bookings:      store.Bookings(),
		GiftCards:     store.GiftCards(),
		Challenges:    store.Challenges(),
		Timeline:      timeline.NewRecorder(store.Timeline()),
		Notifier:      notifier,
		Events:        eventBus,
		StrictPrefix:  cfg.Payments.StrictPrefix,
		PublicBaseURL: cfg.Challenge.PublicBaseURL,
	})
	h := handlers.New(dispatcher, handlers.Options{
		SecondKey:           cfg.Payments.SecondKey,
		StripeWebhookSecret: cfg.Stripe.WebhookSecret,
	})

	stats := func() map[string]int64 {
		out := dispatcher.Stats()
		for k, v := range notifier.Stats() {
			out[k] = v
		}
		return out
	}

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("payments"))
	r.Use(mw.Logging)
	r.Use(middleware.Recoverer)
	r.Use(mw.Health)
	r.Use(mw.Metrics(stats))

	h.Routes(r, mw.RequireRole(cfg.Auth.JWTSecret, auth.RoleAdmin))

	srv := &http.Server{
		Addr:         ":8085",
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down payments service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Payments service shutdown error", "error", err)
		}
		notifier.Wait()
	}()

	logger.Info("Starting payments service", "port", "8085")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Payments service error", "error", err)
		os.Exit(1)
	}
	<-done
}
