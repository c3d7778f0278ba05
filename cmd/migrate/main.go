package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/diagnosis/photo-challenges/pkg/config"
	"github.com/diagnosis/photo-challenges/pkg/database"
	"github.com/diagnosis/photo-challenges/pkg/logger"
	"github.com/joho/godotenv"
)

const usage = "usage: migrate up|down|status"

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, command); err != nil {
		logger.Error("Migration failed", "command", command, "error", err)
		pool.Close()
		os.Exit(1)
	}
	logger.Info("Migration finished", "command", command)
}
