package providers

import (
	"context"

	"github.com/zatekoja/medisync/internal/domain/entities"
)

// ClinicEnricher looks a clinic up on a map service.
// A nil result with a nil error means the clinic was not found.
type ClinicEnricher interface {
	Enrich(ctx context.Context, query entities.ClinicQuery) (*entities.ClinicEnrichment, error)
}

// PlanSearchIndexer keeps the plan search index in step with the store
type PlanSearchIndexer interface {
	IndexPlans(ctx context.Context, plans []*entities.InsurancePlan) error
	RemovePlans(ctx context.Context, ids []string) error
}
