package workflows

import (
	"context"
	"errors"

	"github.com/zatekoja/medisync/internal/application/services"
	"github.com/zatekoja/medisync/internal/domain/entities"
	"github.com/zatekoja/medisync/internal/domain/providers"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/medisync/pkg/errors"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// Activities exposes the pipeline steps to the worker. A nil service disables its activities.
type Activities struct {
	Insurance  *services.InsuranceSyncService
	ClinicSync *services.ClinicSyncService
	Enrichment *services.ClinicEnrichmentService
}

var errNotConfigured = temporal.NewNonRetryableApplicationError("service not configured on this worker", "NotConfigured", nil)

// PlanProviders resolves the provider run order and fails fast when an LLM run has no API key.
func (a *Activities) PlanProviders(ctx context.Context, input InsuranceSyncInput) ([]ProviderTarget, error) {
	if a.Insurance == nil {
		return nil, errNotConfigured
	}
	if err := a.Insurance.CheckReady(input.Mode); err != nil {
		return nil, nonRetryable(err)
	}

	keys := a.Insurance.ProviderKeys(services.InsuranceSyncOptions{Providers: input.Providers, Mode: input.Mode})
	targets := make([]ProviderTarget, 0, len(keys))
	for _, key := range keys {
		targets = append(targets, ProviderTarget{Key: key, Name: a.Insurance.ProviderName(key)})
	}
	return targets, nil
}

// ScrapeProvider scrapes one provider. Site failures come back inside the result.
func (a *Activities) ScrapeProvider(ctx context.Context, key string, mode services.ScrapeMode) (entities.ProviderScrapeResult, error) {
	if a.Insurance == nil {
		return entities.ProviderScrapeResult{}, errNotConfigured
	}
	activity.RecordHeartbeat(ctx, key)

	result, err := a.Insurance.ScrapeProvider(ctx, key, mode)
	if err != nil {
		return result, nonRetryable(err)
	}
	return result, nil
}

// ReconcilePlans writes scrape results to the store.
func (a *Activities) ReconcilePlans(ctx context.Context, results []entities.ProviderScrapeResult) (*entities.SyncStats, error) {
	if a.Insurance == nil {
		return nil, errNotConfigured
	}
	return a.Insurance.Reconcile(ctx, results)
}

// LogSyncSummary emits the insurance run summary.
func (a *Activities) LogSyncSummary(ctx context.Context, stats *entities.SyncStats) error {
	services.LogSyncSummary(ctx, stats)
	return nil
}

// CheckSheetModified compares the sheet modification time with the stored one.
func (a *Activities) CheckSheetModified(ctx context.Context) (SheetCheck, error) {
	if a.ClinicSync == nil {
		return SheetCheck{}, errNotConfigured
	}
	changed, modified := a.ClinicSync.CheckSheetModified(ctx)
	return SheetCheck{Changed: changed, ModifiedTime: modified}, nil
}

// ExtractClinics reads the worksheet rows.
func (a *Activities) ExtractClinics(ctx context.Context) ([]entities.ClinicSheetRow, error) {
	if a.ClinicSync == nil {
		return nil, errNotConfigured
	}
	return a.ClinicSync.ExtractFromSheet(ctx)
}

// TransformClinics maps sheet rows to clinic records.
func (a *Activities) TransformClinics(ctx context.Context, rows []entities.ClinicSheetRow) ([]*entities.Clinic, error) {
	if a.ClinicSync == nil {
		return nil, errNotConfigured
	}
	return a.ClinicSync.Transform(rows), nil
}

// UpsertClinics writes clinic records in batches.
func (a *Activities) UpsertClinics(ctx context.Context, clinics []*entities.Clinic) (entities.ClinicSyncStats, error) {
	if a.ClinicSync == nil {
		return entities.ClinicSyncStats{}, errNotConfigured
	}
	return a.ClinicSync.Upsert(ctx, clinics), nil
}

// UpdateSheetModified stores the synced modification time.
func (a *Activities) UpdateSheetModified(ctx context.Context, modified string) error {
	if a.ClinicSync == nil {
		return errNotConfigured
	}
	return a.ClinicSync.UpdateLastModified(ctx, modified)
}

// LogClinicSyncSummary emits the clinic sync summary.
func (a *Activities) LogClinicSyncSummary(ctx context.Context, report *services.ClinicSyncReport) error {
	services.LogClinicSyncSummary(ctx, report)
	return nil
}

// CountPendingClinics counts clinics waiting for enrichment.
func (a *Activities) CountPendingClinics(ctx context.Context) (int, error) {
	if a.Enrichment == nil {
		return 0, errNotConfigured
	}
	return a.Enrichment.CountPending(ctx)
}

// FetchPendingClinics returns the next enrichment batch.
func (a *Activities) FetchPendingClinics(ctx context.Context) ([]entities.ClinicQuery, error) {
	if a.Enrichment == nil {
		return nil, errNotConfigured
	}
	return a.Enrichment.FetchPending(ctx)
}

// EnrichClinics looks each clinic up on the map service.
func (a *Activities) EnrichClinics(ctx context.Context, queries []entities.ClinicQuery) ([]services.ClinicEnrichmentOutcome, error) {
	if a.Enrichment == nil {
		return nil, errNotConfigured
	}
	activity.RecordHeartbeat(ctx, len(queries))
	return a.Enrichment.EnrichBatch(ctx, queries), nil
}

// PersistEnrichment writes enrichment outcomes.
func (a *Activities) PersistEnrichment(ctx context.Context, outcomes []services.ClinicEnrichmentOutcome) (entities.EnrichmentStats, error) {
	if a.Enrichment == nil {
		return entities.EnrichmentStats{}, errNotConfigured
	}
	return a.Enrichment.Persist(ctx, outcomes), nil
}

// LogEnrichmentSummary emits the enrichment batch summary.
func (a *Activities) LogEnrichmentSummary(ctx context.Context, stats entities.EnrichmentStats) error {
	services.LogEnrichmentSummary(ctx, &stats)
	return nil
}

// nonRetryable marks errors that would fail identically on every attempt.
func nonRetryable(err error) error {
	switch {
	case errors.Is(err, apperrors.ErrMissingAPIKey), errors.Is(err, providers.ErrLLMUnauthorized):
		observability.GetLogger().Error().Err(err).Msg("llm credentials rejected, aborting run")
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeUnauthorized, err)
	case apperrors.IsType(err, apperrors.ErrorTypeNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeUnknownProvider, err)
	default:
		return err
	}
}
