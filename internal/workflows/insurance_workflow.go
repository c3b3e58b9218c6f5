package workflows

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/zatekoja/medisync/internal/application/services"
	"github.com/zatekoja/medisync/internal/domain/entities"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// InsuranceSyncReport is returned by both insurance workflows.
type InsuranceSyncReport struct {
	Mode    services.ScrapeMode             `json:"mode"`
	DryRun  bool                            `json:"dry_run"`
	Results []entities.ProviderScrapeResult `json:"results"`
	Stats   *entities.SyncStats             `json:"stats"`
}

func scrapeActivityOptions(mode services.ScrapeMode) workflow.ActivityOptions {
	timeout := 30 * time.Minute
	if mode == services.ScrapeModeLLM {
		timeout = 90 * time.Minute
	}
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        5 * time.Minute,
			BackoffCoefficient:     2.0,
			MaximumAttempts:        2,
			NonRetryableErrorTypes: []string{ErrTypeUnauthorized, ErrTypeUnknownProvider},
		},
	}
}

func storeActivityOptions(timeout time.Duration) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    10 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    2 * time.Minute,
			MaximumAttempts:    3,
		},
	}
}

// InsuranceSyncWorkflow runs the daily heuristic scrape.
func InsuranceSyncWorkflow(ctx workflow.Context, input InsuranceSyncInput) (*InsuranceSyncReport, error) {
	if input.Mode == "" {
		input.Mode = services.ScrapeModeHeuristic
	}
	return runInsuranceSync(ctx, input)
}

// InsuranceLLMSyncWorkflow runs the weekly product-page scrape with LLM extraction.
func InsuranceLLMSyncWorkflow(ctx workflow.Context, input InsuranceSyncInput) (*InsuranceSyncReport, error) {
	input.Mode = services.ScrapeModeLLM
	return runInsuranceSync(ctx, input)
}

func runInsuranceSync(ctx workflow.Context, input InsuranceSyncInput) (*InsuranceSyncReport, error) {
	logger := workflow.GetLogger(ctx)
	report := &InsuranceSyncReport{Mode: input.Mode, DryRun: input.DryRun}

	storeCtx := workflow.WithActivityOptions(ctx, storeActivityOptions(15*time.Minute))
	var targets []ProviderTarget
	if err := workflow.ExecuteActivity(storeCtx, ActivityPlanProviders, input).Get(ctx, &targets); err != nil {
		return report, err
	}

	scrapeCtx := workflow.WithActivityOptions(ctx, scrapeActivityOptions(input.Mode))
	for i, target := range targets {
		if i > 0 {
			if err := jitterSleep(ctx, input.MinProviderDelay, input.MaxProviderDelay); err != nil {
				return report, err
			}
		}

		var result entities.ProviderScrapeResult
		err := workflow.ExecuteActivity(scrapeCtx, ActivityScrapeProvider, target.Key, input.Mode).Get(ctx, &result)
		if err != nil {
			if hasErrorType(err, ErrTypeUnauthorized) {
				return report, err
			}
			logger.Warn("provider scrape activity failed", "provider", target.Key, "error", err)
			result = entities.ProviderScrapeResult{
				ProviderKey:   target.Key,
				ProviderName:  target.Name,
				Failed:        true,
				FailureReason: entities.ProviderFailureUnreachable,
				Error:         err.Error(),
			}
		}
		report.Results = append(report.Results, result)
	}

	if input.DryRun {
		report.Stats = services.DryRunStats(report.Results)
	} else {
		reconcileCtx := workflow.WithActivityOptions(ctx, storeActivityOptions(30*time.Minute))
		if err := workflow.ExecuteActivity(reconcileCtx, ActivityReconcilePlans, report.Results).Get(ctx, &report.Stats); err != nil {
			return report, err
		}
	}

	summaryCtx := workflow.WithActivityOptions(ctx, storeActivityOptions(time.Minute))
	if err := workflow.ExecuteActivity(summaryCtx, ActivityLogSyncSummary, report.Stats).Get(ctx, nil); err != nil {
		logger.Warn("failed to log sync summary", "error", err)
	}
	return report, nil
}

// jitterSleep waits a random duration in [min, max]; the draw is recorded so replays agree.
func jitterSleep(ctx workflow.Context, min, max time.Duration) error {
	if max <= 0 && min <= 0 {
		return nil
	}
	var d time.Duration
	encoded := workflow.SideEffect(ctx, func(workflow.Context) interface{} {
		if max <= min {
			return min
		}
		return min + time.Duration(rand.Int64N(int64(max-min)+1))
	})
	if err := encoded.Get(&d); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	return workflow.Sleep(ctx, d)
}

func hasErrorType(err error, errType string) bool {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type() == errType
	}
	return false
}
