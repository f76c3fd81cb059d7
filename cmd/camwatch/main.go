package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"camwatch/internal/app"
	"camwatch/internal/config"
)

func main() {
	envFile := flag.String("env", ".env", "Optional .env file")
	flag.Parse()

	cfg := config.Load(*envFile)

	application, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to start camwatch: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		stop()
		log.Fatalf("camwatch stopped: %v", err)
	}
}
