package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gmkornilov/chess-analysis-backend/internal/app"
	"github.com/gmkornilov/chess-analysis-backend/internal/config"
	"github.com/gmkornilov/chess-analysis-backend/internal/logging"
)

func main() {
	cfg, err := config.InitConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("starting backend")
	}
	defer a.Close()

	if err := a.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped")
	}
}
