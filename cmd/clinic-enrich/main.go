package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zatekoja/medisync/internal/bootstrap"
)

func main() {
	var batch int
	var mode string
	flag.IntVar(&batch, "batch", 0, "clinics to enrich in this run (default: ENRICHMENT_BATCH_SIZE)")
	flag.StringVar(&mode, "mode", "", "lookup backend: scrape or places (default: ENRICHMENT_MODE)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "medisync-clinic-enrich")
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	logger := app.Logger()

	code := 0
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		app.Close(shutdownCtx)
		os.Exit(code)
	}()

	svc, err := app.ClinicEnrichment(ctx, mode, batch)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build clinic enrichment")
		code = 1
		return
	}

	stats, err := svc.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("clinic enrichment failed")
		code = 1
		return
	}
	logger.Info().
		Int("enriched", stats.Enriched).
		Int("failed", stats.Failed).
		Int("pending", stats.Pending).
		Bool("blocked", stats.Blocked).
		Msg("clinic enrichment finished")
}
