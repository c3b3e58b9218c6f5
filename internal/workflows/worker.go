package workflows

import (
	"context"
	"errors"
	"fmt"

	"github.com/zatekoja/medisync/internal/application/services"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	"github.com/zatekoja/medisync/pkg/config"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// Register adds every workflow and the activity methods of acts to w.
func Register(w worker.Registry, acts *Activities) {
	w.RegisterWorkflowWithOptions(InsuranceSyncWorkflow, workflow.RegisterOptions{Name: InsuranceSyncWorkflowName})
	w.RegisterWorkflowWithOptions(InsuranceLLMSyncWorkflow, workflow.RegisterOptions{Name: InsuranceLLMSyncWorkflowName})
	w.RegisterWorkflowWithOptions(ClinicSyncWorkflow, workflow.RegisterOptions{Name: ClinicSyncWorkflowName})
	w.RegisterWorkflowWithOptions(ClinicEnrichmentWorkflow, workflow.RegisterOptions{Name: ClinicEnrichmentWorkflowName})
	w.RegisterActivity(acts)
}

// Schedule is a cron workflow with a fixed id, so at most one run is active.
type Schedule struct {
	ID       string
	Workflow string
	Cron     string
	Input    interface{}
}

// Schedules returns the standing cron workflows. Times are UTC.
func Schedules(scraper config.ScraperConfig) []Schedule {
	return []Schedule{
		{
			ID:       "insurance-sync",
			Workflow: InsuranceSyncWorkflowName,
			Cron:     "0 3 * * *",
			Input: InsuranceSyncInput{
				Mode:             services.ScrapeModeHeuristic,
				MinProviderDelay: scraper.MinProviderDelay,
				MaxProviderDelay: scraper.MaxProviderDelay,
			},
		},
		{
			ID:       "insurance-llm-sync",
			Workflow: InsuranceLLMSyncWorkflowName,
			Cron:     "0 2 * * 0",
			Input: InsuranceSyncInput{
				Mode:             services.ScrapeModeLLM,
				MinProviderDelay: scraper.MinProviderDelay,
				MaxProviderDelay: scraper.MaxProviderDelay,
			},
		},
		{
			ID:       "clinic-sync",
			Workflow: ClinicSyncWorkflowName,
			Cron:     "0 2 * * *",
			Input:    ClinicSyncInput{},
		},
		{
			ID:       "clinic-enrichment",
			Workflow: ClinicEnrichmentWorkflowName,
			Cron:     "0 * * * *",
		},
	}
}

// InstallSchedules starts each cron workflow. A schedule that is already running is left alone.
func InstallSchedules(ctx context.Context, c client.Client, taskQueue string, schedules []Schedule) error {
	logger := observability.LoggerFromContext(ctx)

	for _, s := range schedules {
		opts := client.StartWorkflowOptions{
			ID:                    s.ID,
			TaskQueue:             taskQueue,
			CronSchedule:          s.Cron,
			WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		}

		var args []interface{}
		if s.Input != nil {
			args = append(args, s.Input)
		}

		if _, err := c.ExecuteWorkflow(ctx, opts, s.Workflow, args...); err != nil {
			var started *serviceerror.WorkflowExecutionAlreadyStarted
			if errors.As(err, &started) {
				logger.Info().Str("workflow_id", s.ID).Msg("schedule already running")
				continue
			}
			return fmt.Errorf("failed to install schedule %s: %w", s.ID, err)
		}
		logger.Info().Str("workflow_id", s.ID).Str("cron", s.Cron).Msg("schedule installed")
	}
	return nil
}
