package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	// Display timezones resolve even on images without zoneinfo.
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/app"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/config"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Printf("application stopped: %v", err)
		os.Exit(1)
	}
}
