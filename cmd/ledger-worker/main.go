package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/cli"
	"ledger/internal/log"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()

	logger, err := cli.SetupLogger(cfg, log.ComponentWorker, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Info("Starting ledger-worker", log.FieldOperation, log.OpStartup, "notify", cfg.NotifyBackend)

	app, err := cli.NewApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize ledger", log.FieldError, err)
		os.Exit(1)
	}
	if app.Backend.Broker == nil {
		logger.Warn("No broker configured, only the periodic budget check will run")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		logger.Info("Shutting down worker...", log.FieldOperation, log.OpShutdown)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Backend.Consumer().Consume(gctx, app.Worker.Handle)
	})
	g.Go(func() error {
		monitor := worker.NewMonitor(app.Worker, worker.MonitorConfig{Interval: cfg.BudgetCheckInterval}, logger)
		return monitor.Run(gctx)
	})

	err = g.Wait()
	if cerr := app.Close(); cerr != nil {
		logger.Error("Backend cleanup error", log.FieldError, cerr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", log.FieldError, err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
}
