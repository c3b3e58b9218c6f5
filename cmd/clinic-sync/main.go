package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/zatekoja/medisync/internal/bootstrap"
)

func main() {
	var force bool
	var intervalFlag string
	flag.BoolVar(&force, "force", false, "sync even when the sheet has not changed")
	flag.StringVar(&intervalFlag, "interval", "", "repeat interval for syncing (e.g. 24h, 30m)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "medisync-clinic-sync")
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

	intervalValue := strings.TrimSpace(intervalFlag)
	if intervalValue == "" {
		intervalValue = strings.TrimSpace(os.Getenv("CLINIC_SYNC_INTERVAL"))
	}

	var interval time.Duration
	if intervalValue != "" {
		interval, err = time.ParseDuration(intervalValue)
		if err != nil {
			logger.Fatal().Err(err).Str("interval", intervalValue).Msg("invalid interval")
		}
		if interval <= 0 {
			logger.Fatal().Msg("interval must be greater than zero")
		}
	}

	svc, err := app.ClinicSync(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build clinic sync")
	}

	for {
		if _, err := svc.Run(ctx, force); err != nil {
			logger.Error().Err(err).Msg("clinic sync failed")
		}

		if interval <= 0 {
			break
		}

		force = false
		logger.Info().Dur("interval", interval).Msg("clinic sync complete, waiting for next run")

		select {
		case <-ctx.Done():
			logger.Info().Msg("clinic sync shutting down")
			return
		case <-time.After(interval):
		}
	}
}
