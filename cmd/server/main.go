package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brownie44l1/digitpad/internal/app"
	"github.com/Brownie44l1/digitpad/internal/config"
	"github.com/Brownie44l1/digitpad/internal/logger"
)

func main() {
	cfg := config.Load()

	appLogger, err := logger.New(cfg.LogDirectory)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer appLogger.Close()

	application, err := app.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to start: %v", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		appLogger.Error("Server failed: %v", err)
		application.Close()
		appLogger.Close()
		os.Exit(1)
	}
}
