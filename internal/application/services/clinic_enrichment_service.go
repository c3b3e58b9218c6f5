package services

import (
	"context"
	"errors"
	"time"

	"github.com/zatekoja/medisync/internal/domain/entities"
	"github.com/zatekoja/medisync/internal/domain/providers"
	"github.com/zatekoja/medisync/internal/domain/repositories"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/medisync/pkg/errors"
)

const (
	clinicEnrichmentLockKey   = "lock:clinic-enrichment"
	defaultEnrichmentBatch    = 50
	defaultEnrichmentLockTTL  = 2 * time.Hour
	enrichmentNotFoundMessage = "clinic not found on map"
)

// ClinicEnrichmentConfig tunes batch size and pacing.
type ClinicEnrichmentConfig struct {
	BatchSize int
	MinDelay  time.Duration
	MaxDelay  time.Duration
	LockTTL   time.Duration
}

// ClinicEnrichmentOutcome is the lookup result for one clinic.
type ClinicEnrichmentOutcome struct {
	ClinicID   string                     `json:"clinic_id"`
	Name       string                     `json:"name"`
	Enrichment *entities.ClinicEnrichment `json:"enrichment,omitempty"`
	Error      string                     `json:"error,omitempty"`
	Blocked    bool                       `json:"blocked,omitempty"`
}

// Succeeded reports whether the lookup produced data.
func (o ClinicEnrichmentOutcome) Succeeded() bool {
	return o.Error == "" && !o.Blocked && o.Enrichment.HasData()
}

// ClinicEnrichmentService looks up pending clinics on a map service and records the outcome.
type ClinicEnrichmentService struct {
	repo     repositories.ClinicRepository
	enricher providers.ClinicEnricher
	locks    providers.LockProvider
	sleeper  Sleeper
	metrics  *observability.Metrics
	cfg      ClinicEnrichmentConfig
	now      func() time.Time
}

// NewClinicEnrichmentService creates the service. locks and metrics may be nil.
func NewClinicEnrichmentService(
	repo repositories.ClinicRepository,
	enricher providers.ClinicEnricher,
	locks providers.LockProvider,
	sleeper Sleeper,
	metrics *observability.Metrics,
	cfg ClinicEnrichmentConfig,
) *ClinicEnrichmentService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultEnrichmentBatch
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultEnrichmentLockTTL
	}
	if sleeper == nil {
		sleeper = NewJitterSleeper()
	}
	return &ClinicEnrichmentService{
		repo:     repo,
		enricher: enricher,
		locks:    locks,
		sleeper:  sleeper,
		metrics:  metrics,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CountPending returns how many clinics still wait for enrichment.
func (s *ClinicEnrichmentService) CountPending(ctx context.Context) (int, error) {
	return s.repo.CountPendingEnrichment(ctx)
}

// FetchPending returns the next batch as map queries.
func (s *ClinicEnrichmentService) FetchPending(ctx context.Context) ([]entities.ClinicQuery, error) {
	clinics, err := s.repo.ListPendingEnrichment(ctx, s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	queries := make([]entities.ClinicQuery, 0, len(clinics))
	for _, c := range clinics {
		queries = append(queries, entities.ClinicQuery{
			ID:      c.ID,
			Name:    c.Name,
			Address: deref(c.Address),
			City:    deref(c.City),
			State:   deref(c.State),
		})
	}
	return queries, nil
}

// EnrichBatch looks up each clinic in turn with a pause between lookups.
// A blocked lookup ends the batch; later clinics stay pending.
func (s *ClinicEnrichmentService) EnrichBatch(ctx context.Context, queries []entities.ClinicQuery) []ClinicEnrichmentOutcome {
	logger := observability.LoggerFromContext(ctx)

	outcomes := make([]ClinicEnrichmentOutcome, 0, len(queries))
	for i, q := range queries {
		logger.Info().Int("index", i+1).Int("total", len(queries)).Str("clinic", q.Name).Msg("enriching clinic")

		outcome := ClinicEnrichmentOutcome{ClinicID: q.ID, Name: q.Name}
		enrichment, err := s.enricher.Enrich(ctx, q)
		switch {
		case apperrors.IsType(err, apperrors.ErrorTypeBlocked):
			outcome.Blocked = true
			outcome.Error = err.Error()
		case err != nil:
			outcome.Error = err.Error()
		case !enrichment.HasData():
			outcome.Error = enrichmentNotFoundMessage
		default:
			outcome.Enrichment = enrichment
		}
		outcomes = append(outcomes, outcome)

		if outcome.Blocked {
			logger.Warn().Str("clinic", q.Name).Msg("map service blocked the session, stopping batch")
			break
		}
		if i < len(queries)-1 {
			if err := s.sleeper.Sleep(ctx, s.cfg.MinDelay, s.cfg.MaxDelay); err != nil {
				break
			}
		}
	}
	return outcomes
}

// Persist writes each outcome. Blocked outcomes are left pending.
func (s *ClinicEnrichmentService) Persist(ctx context.Context, outcomes []ClinicEnrichmentOutcome) entities.EnrichmentStats {
	logger := observability.LoggerFromContext(ctx)
	now := s.now()

	var stats entities.EnrichmentStats
	for _, o := range outcomes {
		stats.Attempts++
		switch {
		case o.Blocked:
			stats.Blocked = true
			observability.RecordClinicEnrichment(ctx, s.metrics, "blocked")
		case o.Succeeded():
			if err := s.repo.MarkEnriched(ctx, o.ClinicID, o.Enrichment, now); err != nil {
				logger.Error().Err(err).Str("clinic_id", o.ClinicID).Msg("failed to store enrichment")
				stats.Errors++
				continue
			}
			stats.Enriched++
			observability.RecordClinicEnrichment(ctx, s.metrics, string(entities.EnrichmentEnriched))
		default:
			if err := s.repo.MarkEnrichmentFailed(ctx, o.ClinicID, o.Error, now); err != nil {
				logger.Error().Err(err).Str("clinic_id", o.ClinicID).Msg("failed to mark enrichment failed")
				stats.Errors++
				continue
			}
			stats.Failed++
			observability.RecordClinicEnrichment(ctx, s.metrics, string(entities.EnrichmentFailed))
		}
	}
	return stats
}

// Run enriches one batch end to end. Concurrent runs are refused through the lock.
func (s *ClinicEnrichmentService) Run(ctx context.Context) (*entities.EnrichmentStats, error) {
	ctx, span := observability.StartSpan(ctx, "ClinicEnrichmentService.Run")
	defer span.End()
	logger := observability.LoggerFromContext(ctx)

	if s.locks != nil {
		lock, err := s.locks.Acquire(ctx, clinicEnrichmentLockKey, s.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, providers.ErrLockNotAcquired) {
				logger.Info().Msg("clinic enrichment already running, skipping")
				return &entities.EnrichmentStats{}, nil
			}
			return nil, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn().Err(err).Msg("failed to release enrichment lock")
			}
		}()
	}

	pending, err := s.CountPending(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	if pending == 0 {
		logger.Info().Msg("no clinics pending enrichment")
		return &entities.EnrichmentStats{}, nil
	}

	queries, err := s.FetchPending(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	stats := s.Persist(ctx, s.EnrichBatch(ctx, queries))
	stats.Pending = pending - stats.Enriched - stats.Failed

	LogEnrichmentSummary(ctx, &stats)
	return &stats, nil
}

// LogEnrichmentSummary writes batch totals to the application log and the OTel log pipeline.
func LogEnrichmentSummary(ctx context.Context, stats *entities.EnrichmentStats) {
	if stats == nil {
		return
	}
	observability.LoggerFromContext(ctx).Info().
		Int("attempts", stats.Attempts).
		Int("enriched", stats.Enriched).
		Int("failed", stats.Failed).
		Int("errors", stats.Errors).
		Int("remaining", stats.Pending).
		Bool("blocked", stats.Blocked).
		Msg("clinic enrichment batch complete")
	observability.EmitRunSummary(ctx, "clinic_enrichment", map[string]int{
		"attempts":  stats.Attempts,
		"enriched":  stats.Enriched,
		"failed":    stats.Failed,
		"errors":    stats.Errors,
		"remaining": stats.Pending,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
