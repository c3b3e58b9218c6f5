package workflows

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/zatekoja/medisync/internal/application/services"
	"github.com/zatekoja/medisync/internal/domain/entities"
)

func newEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	env.RegisterActivity(&Activities{})
	return env
}

var twoProviders = []ProviderTarget{
	{Key: entities.ProviderAIA, Name: "AIA Malaysia"},
	{Key: entities.ProviderPrudential, Name: "Prudential Malaysia"},
}

func TestInsuranceSyncWorkflow_FailedActivityBecomesUnreachable(t *testing.T) {
	env := newEnv(t)

	env.OnActivity(ActivityPlanProviders, mock.Anything, mock.MatchedBy(func(in InsuranceSyncInput) bool {
		return in.Mode == services.ScrapeModeHeuristic
	})).Return(twoProviders, nil)
	env.OnActivity(ActivityScrapeProvider, mock.Anything, entities.ProviderAIA, services.ScrapeModeHeuristic).
		Return(entities.ProviderScrapeResult{
			ProviderKey:  entities.ProviderAIA,
			ProviderName: "AIA Malaysia",
			Plans:        []entities.InsurancePlan{{ID: "a", ProviderName: "AIA Malaysia", PlanName: "A-Life Med"}},
		}, nil)
	env.OnActivity(ActivityScrapeProvider, mock.Anything, entities.ProviderPrudential, services.ScrapeModeHeuristic).
		Return(entities.ProviderScrapeResult{}, errors.New("browser crashed"))
	env.OnActivity(ActivityReconcilePlans, mock.Anything, mock.MatchedBy(func(results []entities.ProviderScrapeResult) bool {
		return len(results) == 2 && !results[0].Failed &&
			results[1].Failed && results[1].FailureReason == entities.ProviderFailureUnreachable &&
			results[1].ProviderName == "Prudential Malaysia"
	})).Return(&entities.SyncStats{TotalScraped: 1, New: 1}, nil)
	env.OnActivity(ActivityLogSyncSummary, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(InsuranceSyncWorkflow, InsuranceSyncInput{MinProviderDelay: 5 * time.Second, MaxProviderDelay: 10 * time.Second})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var report InsuranceSyncReport
	require.NoError(t, env.GetWorkflowResult(&report))
	assert.Equal(t, services.ScrapeModeHeuristic, report.Mode)
	assert.Len(t, report.Results, 2)
	assert.Equal(t, 1, report.Stats.New)
	env.AssertActivityNumberOfCalls(t, ActivityScrapeProvider, 3)
}

func TestInsuranceSyncWorkflow_UnauthorizedAbortsRun(t *testing.T) {
	env := newEnv(t)

	env.OnActivity(ActivityPlanProviders, mock.Anything, mock.Anything).Return(twoProviders, nil)
	env.OnActivity(ActivityScrapeProvider, mock.Anything, entities.ProviderAIA, mock.Anything).
		Return(entities.ProviderScrapeResult{}, temporal.NewNonRetryableApplicationError("llm provider rejected credentials", ErrTypeUnauthorized, nil))

	env.ExecuteWorkflow(InsuranceLLMSyncWorkflow, InsuranceSyncInput{})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.True(t, hasErrorType(err, ErrTypeUnauthorized))
	env.AssertActivityNumberOfCalls(t, ActivityScrapeProvider, 1)
	env.AssertActivityNotCalled(t, ActivityReconcilePlans, mock.Anything, mock.Anything)
}

func TestInsuranceSyncWorkflow_MissingKeyFailsBeforeScraping(t *testing.T) {
	env := newEnv(t)

	env.OnActivity(ActivityPlanProviders, mock.Anything, mock.MatchedBy(func(in InsuranceSyncInput) bool {
		return in.Mode == services.ScrapeModeLLM
	})).Return([]ProviderTarget(nil), temporal.NewNonRetryableApplicationError("openai api key is not configured", ErrTypeUnauthorized, nil))

	env.ExecuteWorkflow(InsuranceLLMSyncWorkflow, InsuranceSyncInput{Mode: services.ScrapeModeHeuristic})

	require.Error(t, env.GetWorkflowError())
	env.AssertActivityNotCalled(t, ActivityScrapeProvider, mock.Anything, mock.Anything, mock.Anything)
}

func TestInsuranceSyncWorkflow_DryRunSkipsStore(t *testing.T) {
	env := newEnv(t)

	env.OnActivity(ActivityPlanProviders, mock.Anything, mock.Anything).Return(twoProviders[:1], nil)
	env.OnActivity(ActivityScrapeProvider, mock.Anything, mock.Anything, mock.Anything).
		Return(entities.ProviderScrapeResult{
			ProviderKey:  entities.ProviderAIA,
			ProviderName: "AIA Malaysia",
			Plans:        []entities.InsurancePlan{{ID: "a"}, {ID: "b"}},
		}, nil)
	env.OnActivity(ActivityLogSyncSummary, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(InsuranceSyncWorkflow, InsuranceSyncInput{DryRun: true})

	require.NoError(t, env.GetWorkflowError())
	var report InsuranceSyncReport
	require.NoError(t, env.GetWorkflowResult(&report))
	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Stats.TotalScraped)
	assert.Equal(t, 2, report.Stats.ProviderStats[entities.ProviderAIA])
	env.AssertActivityNotCalled(t, ActivityReconcilePlans, mock.Anything, mock.Anything)
}

func TestClinicSyncWorkflow_UnchangedSheetSkips(t *testing.T) {
	env := newEnv(t)
	env.OnActivity(ActivityCheckSheetModified, mock.Anything).Return(SheetCheck{Changed: false, ModifiedTime: "2026-02-01T00:00:00Z"}, nil)

	env.ExecuteWorkflow(ClinicSyncWorkflow, ClinicSyncInput{})

	require.NoError(t, env.GetWorkflowError())
	var report services.ClinicSyncReport
	require.NoError(t, env.GetWorkflowResult(&report))
	assert.False(t, report.Changed)
	env.AssertActivityNotCalled(t, ActivityExtractClinics, mock.Anything)
}

func TestClinicSyncWorkflow_SyncsAndRecordsModifiedTime(t *testing.T) {
	env := newEnv(t)
	rows := []entities.ClinicSheetRow{{Name: "Klinik Kesihatan Bandar", Address: "Jalan 1, Kuala Lumpur"}}
	clinics := []*entities.Clinic{{ID: "bb373099-6174-15c4-5fd7-8cc0eccc3985", Name: "Klinik Kesihatan Bandar", IsActive: true}}

	env.OnActivity(ActivityCheckSheetModified, mock.Anything).Return(SheetCheck{Changed: true, ModifiedTime: "2026-02-10T08:00:00Z"}, nil)
	env.OnActivity(ActivityExtractClinics, mock.Anything).Return(rows, nil)
	env.OnActivity(ActivityTransformClinics, mock.Anything, mock.Anything).Return(clinics, nil)
	env.OnActivity(ActivityUpsertClinics, mock.Anything, mock.Anything).Return(entities.ClinicSyncStats{Processed: 1, Success: 1}, nil)
	env.OnActivity(ActivityUpdateSheetModified, mock.Anything, "2026-02-10T08:00:00Z").Return(nil)
	env.OnActivity(ActivityLogClinicSyncSummary, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(ClinicSyncWorkflow, ClinicSyncInput{})

	require.NoError(t, env.GetWorkflowError())
	var report services.ClinicSyncReport
	require.NoError(t, env.GetWorkflowResult(&report))
	assert.True(t, report.Changed)
	assert.Equal(t, 1, report.Extracted)
	assert.Equal(t, 1, report.Stats.Success)
	env.AssertActivityCalled(t, ActivityUpdateSheetModified, mock.Anything, "2026-02-10T08:00:00Z")
}

func TestClinicSyncWorkflow_ErrorsKeepOldModifiedTime(t *testing.T) {
	env := newEnv(t)

	env.OnActivity(ActivityCheckSheetModified, mock.Anything).Return(SheetCheck{Changed: false}, nil)
	env.OnActivity(ActivityExtractClinics, mock.Anything).Return([]entities.ClinicSheetRow{{Name: "A"}}, nil)
	env.OnActivity(ActivityTransformClinics, mock.Anything, mock.Anything).Return([]*entities.Clinic{{ID: "a", Name: "A"}}, nil)
	env.OnActivity(ActivityUpsertClinics, mock.Anything, mock.Anything).Return(entities.ClinicSyncStats{Processed: 1, Errors: 1}, nil)
	env.OnActivity(ActivityLogClinicSyncSummary, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(ClinicSyncWorkflow, ClinicSyncInput{Force: true})

	require.NoError(t, env.GetWorkflowError())
	env.AssertActivityNotCalled(t, ActivityUpdateSheetModified, mock.Anything, mock.Anything)
}

func TestClinicEnrichmentWorkflow_NothingPending(t *testing.T) {
	env := newEnv(t)
	env.OnActivity(ActivityCountPendingClinics, mock.Anything).Return(0, nil)

	env.ExecuteWorkflow(ClinicEnrichmentWorkflow)

	require.NoError(t, env.GetWorkflowError())
	env.AssertActivityNotCalled(t, ActivityFetchPendingClinics, mock.Anything)
}

func TestClinicEnrichmentWorkflow_EnrichesBatch(t *testing.T) {
	env := newEnv(t)
	queries := []entities.ClinicQuery{{ID: "c1", Name: "Klinik A"}, {ID: "c2", Name: "Klinik B"}}
	lat := 3.139
	outcomes := []services.ClinicEnrichmentOutcome{
		{ClinicID: "c1", Name: "Klinik A", Enrichment: &entities.ClinicEnrichment{Latitude: &lat}},
		{ClinicID: "c2", Name: "Klinik B", Error: "clinic not found on map"},
	}

	env.OnActivity(ActivityCountPendingClinics, mock.Anything).Return(10, nil)
	env.OnActivity(ActivityFetchPendingClinics, mock.Anything).Return(queries, nil)
	env.OnActivity(ActivityEnrichClinics, mock.Anything, mock.Anything).Return(outcomes, nil)
	env.OnActivity(ActivityPersistEnrichment, mock.Anything, mock.Anything).
		Return(entities.EnrichmentStats{Attempts: 2, Enriched: 1, Failed: 1}, nil)
	env.OnActivity(ActivityLogEnrichmentSummary, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(ClinicEnrichmentWorkflow)

	require.NoError(t, env.GetWorkflowError())
	var result ClinicEnrichmentResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 8, result.Stats.Pending)
	assert.Equal(t, 1, result.Stats.Enriched)
	assert.Len(t, result.Outcomes, 2)
}
