package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zatekoja/medisync/internal/domain/entities"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/medisync/pkg/errors"
)

// InsuranceSyncOptions selects what one pipeline run does.
type InsuranceSyncOptions struct {
	// Providers limits the run to these keys; empty means every provider in run order
	Providers []string
	Mode      ScrapeMode
	// DryRun scrapes and assembles without touching the store
	DryRun bool
}

// InsuranceSyncReport is the outcome of one pipeline run.
type InsuranceSyncReport struct {
	RunID      string                          `json:"run_id"`
	Mode       ScrapeMode                      `json:"mode"`
	DryRun     bool                            `json:"dry_run"`
	Results    []entities.ProviderScrapeResult `json:"results"`
	Stats      *entities.SyncStats             `json:"stats"`
	StartedAt  time.Time                       `json:"started_at"`
	FinishedAt time.Time                       `json:"finished_at"`
}

// InsuranceSyncService runs providers one after another and reconciles the result.
type InsuranceSyncService struct {
	registry         *entities.ProviderRegistry
	scraper          *ProviderScrapeService
	reconciler       *ReconciliationService
	delegate         *ExtractionDelegate
	sleeper          Sleeper
	metrics          *observability.Metrics
	minProviderDelay time.Duration
	maxProviderDelay time.Duration
}

// NewInsuranceSyncService wires the pipeline. metrics may be nil.
func NewInsuranceSyncService(
	registry *entities.ProviderRegistry,
	scraper *ProviderScrapeService,
	reconciler *ReconciliationService,
	delegate *ExtractionDelegate,
	sleeper Sleeper,
	metrics *observability.Metrics,
	minProviderDelay, maxProviderDelay time.Duration,
) *InsuranceSyncService {
	if sleeper == nil {
		sleeper = NewJitterSleeper()
	}
	return &InsuranceSyncService{
		registry:         registry,
		scraper:          scraper,
		reconciler:       reconciler,
		delegate:         delegate,
		sleeper:          sleeper,
		metrics:          metrics,
		minProviderDelay: minProviderDelay,
		maxProviderDelay: maxProviderDelay,
	}
}

// ProviderKeys resolves the run order for a mode.
func (s *InsuranceSyncService) ProviderKeys(opts InsuranceSyncOptions) []string {
	if len(opts.Providers) > 0 {
		return append([]string(nil), opts.Providers...)
	}
	if opts.Mode == ScrapeModeLLM {
		return append([]string(nil), entities.LLMSyncOrder...)
	}
	return s.registry.Keys()
}

// ProviderName returns the display name for a provider key.
func (s *InsuranceSyncService) ProviderName(key string) string {
	return s.registry.DisplayName(key)
}

// CheckReady fails fast when an LLM run has no API key.
func (s *InsuranceSyncService) CheckReady(mode ScrapeMode) error {
	if mode == ScrapeModeLLM && !s.delegate.Enabled() {
		return apperrors.ErrMissingAPIKey
	}
	return nil
}

// ScrapeProvider scrapes one provider by key.
func (s *InsuranceSyncService) ScrapeProvider(ctx context.Context, key string, mode ScrapeMode) (entities.ProviderScrapeResult, error) {
	if err := s.CheckReady(mode); err != nil {
		return entities.ProviderScrapeResult{ProviderKey: key}, err
	}
	provider, ok := s.registry.Get(key)
	if !ok {
		return entities.ProviderScrapeResult{ProviderKey: key}, apperrors.NewNotFoundError(fmt.Sprintf("unknown provider %q", key))
	}

	result, err := s.scraper.ScrapeProvider(ctx, provider, mode)
	observability.RecordPlansScraped(ctx, s.metrics, provider.Key, len(result.Plans))
	if result.Failed {
		observability.RecordProviderFailure(ctx, s.metrics, provider.Key, string(result.FailureReason))
	}
	return result, err
}

// ScrapeAll runs the selected providers strictly in sequence with a pause between them.
// Unknown keys are logged and skipped.
func (s *InsuranceSyncService) ScrapeAll(ctx context.Context, opts InsuranceSyncOptions) ([]entities.ProviderScrapeResult, error) {
	logger := observability.LoggerFromContext(ctx)
	if err := s.CheckReady(opts.Mode); err != nil {
		return nil, err
	}

	var results []entities.ProviderScrapeResult
	for i, key := range s.ProviderKeys(opts) {
		if _, ok := s.registry.Get(key); !ok {
			logger.Warn().Str("provider", key).Msg("unknown provider, skipping")
			continue
		}
		if i > 0 {
			if err := s.sleeper.Sleep(ctx, s.minProviderDelay, s.maxProviderDelay); err != nil {
				return results, err
			}
		}

		result, err := s.ScrapeProvider(ctx, key, opts.Mode)
		results = append(results, result)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// Reconcile persists scrape results and records outcome metrics.
func (s *InsuranceSyncService) Reconcile(ctx context.Context, results []entities.ProviderScrapeResult) (*entities.SyncStats, error) {
	stats, err := s.reconciler.Reconcile(ctx, results)
	if err != nil {
		return nil, err
	}
	observability.RecordReconciled(ctx, s.metrics, "new", stats.New)
	observability.RecordReconciled(ctx, s.metrics, "updated", stats.Updated)
	observability.RecordReconciled(ctx, s.metrics, "unchanged", stats.Unchanged)
	observability.RecordReconciled(ctx, s.metrics, "skipped", stats.SkippedDuplicates)
	observability.RecordReconciled(ctx, s.metrics, "deactivated", stats.Deactivated)
	observability.RecordReconciled(ctx, s.metrics, "error", stats.Errors)
	return stats, nil
}

// Run executes scrape, reconcile and summary in one call.
func (s *InsuranceSyncService) Run(ctx context.Context, opts InsuranceSyncOptions) (*InsuranceSyncReport, error) {
	ctx, span := observability.StartSpan(ctx, "InsuranceSyncService.Run")
	defer span.End()

	report := &InsuranceSyncReport{
		RunID:     uuid.NewString(),
		Mode:      opts.Mode,
		DryRun:    opts.DryRun,
		StartedAt: time.Now().UTC(),
	}
	logger := observability.LoggerFromContext(ctx).With().Str("run_id", report.RunID).Logger()
	logger.Info().Str("mode", string(opts.Mode)).Bool("dry_run", opts.DryRun).Msg("insurance sync started")

	results, err := s.ScrapeAll(ctx, opts)
	report.Results = results
	if err != nil {
		observability.RecordError(span, err)
		return report, err
	}

	if opts.DryRun {
		report.Stats = DryRunStats(results)
	} else {
		stats, err := s.Reconcile(ctx, results)
		if err != nil {
			observability.RecordError(span, err)
			return report, err
		}
		report.Stats = stats
	}
	report.FinishedAt = time.Now().UTC()

	LogSyncSummary(ctx, report.Stats)
	return report, nil
}

// DryRunStats counts scraped plans without classifying them against the store.
func DryRunStats(results []entities.ProviderScrapeResult) *entities.SyncStats {
	stats := entities.NewSyncStats()
	for _, result := range results {
		stats.TotalScraped += len(result.Plans)
		stats.ProviderStats[StatsKey(result)] += len(result.Plans)
		if result.Failed {
			stats.ProviderFailures[StatsKey(result)] = result.FailureReason
		}
	}
	return stats
}

// LogSyncSummary writes the run totals to the application log and the OTel log pipeline.
func LogSyncSummary(ctx context.Context, stats *entities.SyncStats) {
	if stats == nil {
		return
	}
	logger := observability.LoggerFromContext(ctx)

	event := logger.Info().
		Int("total_scraped", stats.TotalScraped).
		Int("new", stats.New).
		Int("updated", stats.Updated).
		Int("unchanged", stats.Unchanged).
		Int("skipped_duplicates", stats.SkippedDuplicates).
		Int("deactivated", stats.Deactivated).
		Int("errors", stats.Errors)
	for provider, count := range stats.ProviderStats {
		event = event.Int("provider."+provider, count)
	}
	for provider, reason := range stats.ProviderFailures {
		event = event.Str("failure."+provider, string(reason))
	}
	event.Msg("insurance sync summary")

	observability.EmitRunSummary(ctx, "insurance_sync", map[string]int{
		"total_scraped":      stats.TotalScraped,
		"new":                stats.New,
		"updated":            stats.Updated,
		"unchanged":          stats.Unchanged,
		"skipped_duplicates": stats.SkippedDuplicates,
		"deactivated":        stats.Deactivated,
		"errors":             stats.Errors,
		"failed_providers":   len(stats.ProviderFailures),
	})
}
