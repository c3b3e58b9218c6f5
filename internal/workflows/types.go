package workflows

import (
	"time"

	"github.com/zatekoja/medisync/internal/application/services"
	"github.com/zatekoja/medisync/internal/domain/entities"
)

const (
	InsuranceSyncWorkflowName    = "InsuranceSyncWorkflow"
	InsuranceLLMSyncWorkflowName = "InsuranceLLMSyncWorkflow"
	ClinicSyncWorkflowName       = "ClinicSyncWorkflow"
	ClinicEnrichmentWorkflowName = "ClinicEnrichmentWorkflow"
)

// Activity names. Activities are registered from the methods of *Activities,
// so each name equals its method name.
const (
	ActivityPlanProviders        = "PlanProviders"
	ActivityScrapeProvider       = "ScrapeProvider"
	ActivityReconcilePlans       = "ReconcilePlans"
	ActivityLogSyncSummary       = "LogSyncSummary"
	ActivityCheckSheetModified   = "CheckSheetModified"
	ActivityExtractClinics       = "ExtractClinics"
	ActivityTransformClinics     = "TransformClinics"
	ActivityUpsertClinics        = "UpsertClinics"
	ActivityUpdateSheetModified  = "UpdateSheetModified"
	ActivityLogClinicSyncSummary = "LogClinicSyncSummary"
	ActivityCountPendingClinics  = "CountPendingClinics"
	ActivityFetchPendingClinics  = "FetchPendingClinics"
	ActivityEnrichClinics        = "EnrichClinics"
	ActivityPersistEnrichment    = "PersistEnrichment"
	ActivityLogEnrichmentSummary = "LogEnrichmentSummary"
)

// Application error types that must not be retried.
const (
	ErrTypeUnauthorized    = "Unauthorized"
	ErrTypeUnknownProvider = "UnknownProvider"
)

// InsuranceSyncInput parameterizes an insurance pipeline run.
type InsuranceSyncInput struct {
	Mode             services.ScrapeMode `json:"mode"`
	Providers        []string            `json:"providers,omitempty"`
	DryRun           bool                `json:"dry_run"`
	MinProviderDelay time.Duration       `json:"min_provider_delay"`
	MaxProviderDelay time.Duration       `json:"max_provider_delay"`
}

// ProviderTarget is one provider scheduled for scraping.
type ProviderTarget struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// ClinicSyncInput parameterizes a clinic sheet sync.
type ClinicSyncInput struct {
	Force bool `json:"force"`
}

// SheetCheck is the result of the modification check.
type SheetCheck struct {
	Changed      bool   `json:"changed"`
	ModifiedTime string `json:"modified_time,omitempty"`
}

// ClinicEnrichmentResult is returned by the enrichment workflow.
type ClinicEnrichmentResult struct {
	Stats    entities.EnrichmentStats           `json:"stats"`
	Outcomes []services.ClinicEnrichmentOutcome `json:"outcomes,omitempty"`
}
