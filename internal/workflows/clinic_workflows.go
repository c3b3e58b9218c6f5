package workflows

import (
	"time"

	"github.com/zatekoja/medisync/internal/application/services"
	"github.com/zatekoja/medisync/internal/domain/entities"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ClinicSyncWorkflow copies the clinic sheet into the store when it has changed.
func ClinicSyncWorkflow(ctx workflow.Context, input ClinicSyncInput) (*services.ClinicSyncReport, error) {
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, storeActivityOptions(15*time.Minute))
	report := &services.ClinicSyncReport{}

	var check SheetCheck
	if err := workflow.ExecuteActivity(ctx, ActivityCheckSheetModified).Get(ctx, &check); err != nil {
		return report, err
	}
	report.Changed = check.Changed || input.Force
	report.ModifiedTime = check.ModifiedTime
	if !report.Changed {
		logger.Info("clinic sheet unchanged, skipping sync")
		return report, nil
	}

	var rows []entities.ClinicSheetRow
	if err := workflow.ExecuteActivity(ctx, ActivityExtractClinics).Get(ctx, &rows); err != nil {
		return report, err
	}
	report.Extracted = len(rows)

	var clinics []*entities.Clinic
	if err := workflow.ExecuteActivity(ctx, ActivityTransformClinics, rows).Get(ctx, &clinics); err != nil {
		return report, err
	}

	if err := workflow.ExecuteActivity(ctx, ActivityUpsertClinics, clinics).Get(ctx, &report.Stats); err != nil {
		return report, err
	}

	if report.Stats.Errors == 0 {
		if err := workflow.ExecuteActivity(ctx, ActivityUpdateSheetModified, check.ModifiedTime).Get(ctx, nil); err != nil {
			logger.Warn("failed to record sheet modified time", "error", err)
		}
	}

	if err := workflow.ExecuteActivity(ctx, ActivityLogClinicSyncSummary, report).Get(ctx, nil); err != nil {
		logger.Warn("failed to log clinic sync summary", "error", err)
	}
	return report, nil
}

// ClinicEnrichmentWorkflow enriches one batch of pending clinics.
func ClinicEnrichmentWorkflow(ctx workflow.Context) (*ClinicEnrichmentResult, error) {
	logger := workflow.GetLogger(ctx)
	storeCtx := workflow.WithActivityOptions(ctx, storeActivityOptions(5*time.Minute))
	result := &ClinicEnrichmentResult{}

	var pending int
	if err := workflow.ExecuteActivity(storeCtx, ActivityCountPendingClinics).Get(ctx, &pending); err != nil {
		return result, err
	}
	if pending == 0 {
		logger.Info("no clinics pending enrichment")
		return result, nil
	}

	var queries []entities.ClinicQuery
	if err := workflow.ExecuteActivity(storeCtx, ActivityFetchPendingClinics).Get(ctx, &queries); err != nil {
		return result, err
	}

	enrichCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 5 * time.Minute,
			MaximumAttempts: 2,
		},
	})
	if err := workflow.ExecuteActivity(enrichCtx, ActivityEnrichClinics, queries).Get(ctx, &result.Outcomes); err != nil {
		return result, err
	}

	if err := workflow.ExecuteActivity(storeCtx, ActivityPersistEnrichment, result.Outcomes).Get(ctx, &result.Stats); err != nil {
		return result, err
	}
	result.Stats.Pending = pending - result.Stats.Enriched - result.Stats.Failed

	if err := workflow.ExecuteActivity(storeCtx, ActivityLogEnrichmentSummary, result.Stats).Get(ctx, nil); err != nil {
		logger.Warn("failed to log enrichment summary", "error", err)
	}
	return result, nil
}
