// Package bootstrap wires clients, adapters and services for the command line binaries.
package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zatekoja/medisync/internal/adapters/cache"
	"github.com/zatekoja/medisync/internal/adapters/database"
	"github.com/zatekoja/medisync/internal/adapters/providers/browser"
	"github.com/zatekoja/medisync/internal/adapters/providers/geolocation"
	"github.com/zatekoja/medisync/internal/adapters/providers/googlesheets"
	"github.com/zatekoja/medisync/internal/adapters/providers/maps"
	"github.com/zatekoja/medisync/internal/adapters/providers/pdf"
	"github.com/zatekoja/medisync/internal/adapters/search"
	"github.com/zatekoja/medisync/internal/application/services"
	"github.com/zatekoja/medisync/internal/domain/entities"
	"github.com/zatekoja/medisync/internal/domain/providers"
	"github.com/zatekoja/medisync/internal/infrastructure/clients/openai"
	"github.com/zatekoja/medisync/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/medisync/internal/infrastructure/clients/redis"
	"github.com/zatekoja/medisync/internal/infrastructure/clients/typesense"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	"github.com/zatekoja/medisync/pkg/config"
	"github.com/zatekoja/medisync/pkg/secrets"
)

// Enrichment modes
const (
	EnrichModeScrape = "scrape"
	EnrichModePlaces = "places"
)

// App holds the process-wide configuration and the connections opened so far.
// Connections are opened on first use and released by Close.
type App struct {
	Config  *config.Config
	Metrics *observability.Metrics

	mu       sync.Mutex
	pg       *postgres.Client
	redis    *redis.Client
	redisErr error
	browser  *browser.PlaywrightBrowser
	closers  []func(context.Context) error
}

// New pulls secrets from Vault when enabled, loads configuration and starts
// logging, tracing and metrics.
func New(ctx context.Context, serviceName string) (*App, error) {
	vault, err := secrets.Apply(ctx, secrets.ConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("load vault secrets: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	observability.InitLogger(serviceName, cfg.Environment)
	logger := observability.GetLogger()
	if vault.Enabled {
		logger.Info().
			Str("path", vault.Path).
			Strs("loaded", vault.Loaded).
			Strs("skipped", vault.Skipped).
			Msg("secrets loaded from vault")
	}

	app := &App{Config: cfg}

	if cfg.OTEL.Enabled {
		shutdown, err := observability.Setup(ctx, serviceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to setup OpenTelemetry, continuing without it")
		} else {
			app.closers = append(app.closers, shutdown)
			logger.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize metrics")
	} else {
		app.Metrics = metrics
	}

	return app, nil
}

// Logger returns the process logger.
func (a *App) Logger() *zerolog.Logger {
	return observability.GetLogger()
}

// Close releases everything in reverse order of acquisition.
func (a *App) Close(ctx context.Context) {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			a.Logger().Warn().Err(err).Msg("shutdown step failed")
		}
	}
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Postgres returns the shared database client.
func (a *App) Postgres() (*postgres.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pg != nil {
		return a.pg, nil
	}
	pg, err := postgres.NewClient(&a.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pg = pg
	a.onClose(func(context.Context) error { return pg.Close() })
	return pg, nil
}

// Redis returns the shared Redis client, or nil when Redis is unreachable.
// Callers run without cache and locks in that case.
func (a *App) Redis(ctx context.Context) *redis.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.redis != nil || a.redisErr != nil {
		return a.redis
	}
	rc, err := redis.NewClient(ctx, &a.Config.Redis)
	if err != nil {
		a.redisErr = err
		a.Logger().Warn().Err(err).Msg("redis unavailable, running without cache and locks")
		return nil
	}
	a.redis = rc
	a.onClose(func(context.Context) error { return rc.Close() })
	return rc
}

// Browser returns the shared Chromium instance.
func (a *App) Browser(headless bool) (*browser.PlaywrightBrowser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.browser != nil {
		return a.browser, nil
	}
	b, err := browser.NewPlaywrightBrowser(browser.Options{Headless: headless})
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	a.browser = b
	a.onClose(func(context.Context) error { return b.Close() })
	return b, nil
}

func (a *App) cacheAndLocks(ctx context.Context) (providers.CacheProvider, providers.LockProvider) {
	rc := a.Redis(ctx)
	if rc == nil {
		return nil, nil
	}
	return cache.NewRedisAdapter(rc.Client(), a.Metrics), cache.NewRedisLocker(rc.Client())
}

// planIndexer returns the Typesense indexer when search is configured.
func (a *App) planIndexer(ctx context.Context) providers.PlanSearchIndexer {
	if a.Config.Typesense.URL == "" {
		return nil
	}
	ts, err := typesense.NewClient(&a.Config.Typesense)
	if err != nil {
		a.Logger().Warn().Err(err).Msg("typesense unavailable, plans will not be indexed")
		return nil
	}
	indexer := search.NewTypesenseAdapter(ts)
	if err := indexer.InitSchema(ctx); err != nil {
		a.Logger().Warn().Err(err).Msg("failed to initialize plan collection, plans will not be indexed")
		return nil
	}
	return indexer
}

// extractionDelegate returns the LLM-backed delegate, or one without a model when no key is set.
func (a *App) extractionDelegate() *services.ExtractionDelegate {
	cfg := a.Config.OpenAI
	pdfExtractors := []providers.PDFTextExtractor{pdf.ReaderExtractor{}, pdf.PdfToTextExtractor{}}

	llm, err := openai.NewClient(&cfg)
	if err != nil {
		a.Logger().Warn().Err(err).Msg("LLM extraction disabled")
		return services.NewExtractionDelegate(nil, cfg.ExtractionModel, cfg.ClassifierModel, pdfExtractors...)
	}
	return services.NewExtractionDelegate(llm, cfg.ExtractionModel, cfg.ClassifierModel, pdfExtractors...)
}

// InsuranceSync builds the insurance pipeline.
func (a *App) InsuranceSync(ctx context.Context) (*services.InsuranceSyncService, error) {
	pg, err := a.Postgres()
	if err != nil {
		return nil, err
	}
	b, err := a.Browser(a.Config.Scraper.Headless)
	if err != nil {
		return nil, err
	}

	scfg := a.Config.Scraper
	sleeper := services.NewJitterSleeper()
	delegate := a.extractionDelegate()
	_, locks := a.cacheAndLocks(ctx)

	reconciler := services.NewReconciliationService(
		database.NewInsurancePlanAdapter(pg, a.Metrics),
		locks,
		a.planIndexer(ctx),
		services.ReconciliationConfig{LockTTL: scfg.LockTTL},
	)
	scraper := services.NewProviderScrapeService(b, delegate, sleeper, scfg.NavigationTimeout)

	return services.NewInsuranceSyncService(
		entities.DefaultProviders(),
		scraper,
		reconciler,
		delegate,
		sleeper,
		a.Metrics,
		scfg.MinProviderDelay,
		scfg.MaxProviderDelay,
	), nil
}

// ClinicSync builds the spreadsheet sync.
func (a *App) ClinicSync(ctx context.Context) (*services.ClinicSyncService, error) {
	pg, err := a.Postgres()
	if err != nil {
		return nil, err
	}
	scfg := a.Config.Sheets
	sheets, err := googlesheets.NewSheetsAdapter(ctx, scfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	cacheProvider, _ := a.cacheAndLocks(ctx)

	return services.NewClinicSyncService(
		sheets,
		sheets,
		cacheProvider,
		database.NewClinicAdapter(pg, a.Metrics),
		a.Metrics,
		services.ClinicSyncConfig{
			SpreadsheetID: scfg.SpreadsheetID,
			Worksheet:     scfg.WorksheetName,
			SkipRows:      scfg.SkipRows,
		},
	), nil
}

// ClinicEnrichment builds the enrichment run. mode overrides the configured one when set.
func (a *App) ClinicEnrichment(ctx context.Context, mode string, batchSize int) (*services.ClinicEnrichmentService, error) {
	pg, err := a.Postgres()
	if err != nil {
		return nil, err
	}
	ecfg := a.Config.Enrichment
	if mode == "" {
		mode = ecfg.Mode
	}
	if batchSize <= 0 {
		batchSize = ecfg.BatchSize
	}

	sleeper := services.NewJitterSleeper()
	cacheProvider, locks := a.cacheAndLocks(ctx)

	var enricher providers.ClinicEnricher
	switch mode {
	case EnrichModeScrape:
		b, err := a.Browser(ecfg.Headless)
		if err != nil {
			return nil, err
		}
		enricher = maps.NewScraper(b, sleeper, "")
	case EnrichModePlaces:
		if ecfg.PlacesAPIKey == "" {
			return nil, fmt.Errorf("enrichment mode %q needs GOOGLE_PLACES_API_KEY", mode)
		}
		enricher = geolocation.NewGooglePlacesEnricher(ecfg.PlacesAPIKey, cacheProvider, ecfg.PlacesCacheTTL)
	default:
		return nil, fmt.Errorf("unknown enrichment mode %q", mode)
	}

	return services.NewClinicEnrichmentService(
		database.NewClinicAdapter(pg, a.Metrics),
		enricher,
		locks,
		sleeper,
		a.Metrics,
		services.ClinicEnrichmentConfig{
			BatchSize: batchSize,
			MinDelay:  ecfg.MinDelay,
			MaxDelay:  ecfg.MaxDelay,
		},
	), nil
}
