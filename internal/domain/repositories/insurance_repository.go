package repositories

import (
	"context"

	"github.com/zatekoja/medisync/internal/domain/entities"
)

// InsurancePlanRepository defines the destination store for insurance plans
type InsurancePlanRepository interface {
	// GetActiveByProvider returns the currently active plans of a provider keyed by id
	GetActiveByProvider(ctx context.Context, providerName string) (map[string]*entities.InsurancePlan, error)

	// InsertBatch inserts new plans
	InsertBatch(ctx context.Context, plans []*entities.InsurancePlan) error

	// UpsertBatch writes plans keyed by id, replacing the stored columns
	UpsertBatch(ctx context.Context, plans []*entities.InsurancePlan) error

	// SetInactive soft-retires plans and returns how many rows changed
	SetInactive(ctx context.Context, ids []string) (int, error)

	// Count returns the number of active plans, optionally for one provider
	Count(ctx context.Context, providerName string) (int, error)
}
