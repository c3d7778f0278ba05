package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/photo-challenges/pkg/config"
	"github.com/diagnosis/photo-challenges/pkg/logger"
	"github.com/diagnosis/photo-challenges/services/gateway/internal/handlers"
	"github.com/diagnosis/photo-challenges/services/gateway/internal/proxy"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	challengesProxy := proxy.NewServiceProxy("challenges", cfg.Services.ChallengesURL)
	paymentsProxy := proxy.NewServiceProxy("payments", cfg.Services.PaymentsURL)

	h := handlers.New(challengesProxy, paymentsProxy)
	router := handlers.NewRouter(h, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 35 * time.Second, // upstream client timeout is 30s
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gateway...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Gateway forced to shutdown", "error", err)
		}
	}()

	logger.Info("API Gateway starting",
		"port", cfg.Server.Port,
		"challenges_url", cfg.Services.ChallengesURL,
		"payments_url", cfg.Services.PaymentsURL,
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Gateway failed to start", "error", err)
		os.Exit(1)
	}
	<-done
	logger.Info("Gateway stopped")
}
