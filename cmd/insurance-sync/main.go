package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/zatekoja/medisync/internal/application/services"
	"github.com/zatekoja/medisync/internal/bootstrap"
)

func main() {
	var providersFlag string
	var useLLM, dryRun bool
	flag.StringVar(&providersFlag, "providers", "", "comma separated provider keys (default: all)")
	flag.BoolVar(&useLLM, "llm", false, "extract plans with the LLM instead of page heuristics")
	flag.BoolVar(&dryRun, "dry-run", false, "scrape and assemble without writing to the database")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "medisync-insurance-sync")
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

	svc, err := app.InsuranceSync(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build insurance sync")
		code = 1
		return
	}

	opts := services.InsuranceSyncOptions{
		Providers: parseProviders(providersFlag),
		Mode:      services.ScrapeModeHeuristic,
		DryRun:    dryRun,
	}
	if useLLM {
		opts.Mode = services.ScrapeModeLLM
	}

	report, err := svc.Run(ctx, opts)
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			logger.Warn().Err(encErr).Msg("failed to print report")
		}
	}
	if err != nil {
		logger.Error().Err(err).Msg("insurance sync failed")
		code = 1
	}
}

func parseProviders(value string) []string {
	var keys []string
	for _, key := range strings.Split(value, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}
