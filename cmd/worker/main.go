package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zatekoja/medisync/internal/bootstrap"
	"github.com/zatekoja/medisync/internal/infrastructure/clients/temporal"
	"github.com/zatekoja/medisync/internal/workflows"
	"go.temporal.io/sdk/worker"
)

func main() {
	var skipSchedules bool
	flag.BoolVar(&skipSchedules, "no-schedules", false, "start the worker without installing cron workflows")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "medisync-worker")
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	logger := app.Logger()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		app.Close(shutdownCtx)
	}()

	acts := &workflows.Activities{}
	if acts.Insurance, err = app.InsuranceSync(ctx); err != nil {
		logger.Error().Err(err).Msg("insurance sync activities unavailable")
	}
	if acts.ClinicSync, err = app.ClinicSync(ctx); err != nil {
		logger.Error().Err(err).Msg("clinic sync activities unavailable")
	}
	if acts.Enrichment, err = app.ClinicEnrichment(ctx, "", 0); err != nil {
		logger.Error().Err(err).Msg("clinic enrichment activities unavailable")
	}

	cfg := app.Config.Temporal
	c, err := temporal.NewClient(ctx, &cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to Temporal")
	}
	defer c.Close()

	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	workflows.Register(w, acts)

	if !skipSchedules {
		if err := workflows.InstallSchedules(ctx, c, cfg.TaskQueue, workflows.Schedules(app.Config.Scraper)); err != nil {
			logger.Fatal().Err(err).Msg("failed to install schedules")
		}
	}

	if err := w.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start worker")
	}
	logger.Info().Str("task_queue", cfg.TaskQueue).Msg("worker started")

	<-ctx.Done()
	logger.Info().Msg("shutting down worker")
	w.Stop()
}
