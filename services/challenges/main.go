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
	"github.com/diagnosis/photo-challenges/services/challenges/internal/handlers"
	"github.com/diagnosis/photo-challenges/services/challenges/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
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

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "challenges")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("Invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.Password != "" {
		redisOpts.Password = cfg.Redis.Password
	}
	redisOpts.DB = cfg.Redis.DB
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	store := postgres.NewStore(pool)
	dispatcher := notify.NewDispatcher(eventBus)

	challengeService := service.NewChallengeService(service.Deps{
		Tx:         store,
		Challenges: store.Challenges(),
		Accounts:   store.Accounts(),
		Bookings:   store.Bookings(),
		Catalog:    store.Catalog(),
		Timeline:   timeline.NewRecorder(store.Timeline()),
		Notifier:   dispatcher,
		Tokens:     auth.NewIssuer(cfg.Auth),
		Events:     eventBus,
		Config:     cfg.Challenge,
	})
	h := handlers.New(challengeService)

	decideLimiter := mw.NewRateLimiter(rdb, mw.RateLimitConfig{
		Requests: cfg.Challenge.DecideRateLimit,
		Window:   cfg.Challenge.DecideRateWindow,
		Prefix:   "challenge-decide",
	})

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("challenges"))
	r.Use(mw.Logging)
	r.Use(middleware.Recoverer)
	r.Use(mw.Health)
	r.Use(mw.Metrics(dispatcher.Stats))

	h.Routes(r, mw.RequireRole(cfg.Auth.JWTSecret, auth.RoleAdmin), decideLimiter.Middleware())

	srv := &http.Server{
		Addr:         ":8082",
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

		logger.Info("Shutting down challenges service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Challenges service shutdown error", "error", err)
		}
		dispatcher.Wait()
	}()

	logger.Info("Starting challenges service", "port", "8082")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Challenges service error", "error", err)
		os.Exit(1)
	}
	<-done
}
