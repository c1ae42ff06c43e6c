package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/memberlink/memberlink/internal/app/bootstrap"
)

func main() {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := bootstrap.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	app, err := bootstrap.Build(cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
