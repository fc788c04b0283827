package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"notebook/internal/bootstrap"
	"notebook/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build generation stack")
	}
	defer rt.Close()

	if rt.Claimer == nil {
		logger.Fatal().Msg("worker: a job store is required (DATABASE_URL or JOB_STORE_PATH)")
	}

	w := &jobWorker{
		claimer:    rt.Claimer,
		jobs:       rt.Jobs,
		resumer:    rt.Service,
		logger:     &logger,
		profile:    rt.LongRunning,
		interval:   cfg.WorkerPollInterval,
		staleAfter: cfg.WorkerStaleAfter,
	}
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
