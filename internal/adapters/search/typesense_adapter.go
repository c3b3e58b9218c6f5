package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/zatekoja/medisync/internal/domain/entities"
	"github.com/zatekoja/medisync/internal/domain/providers"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	tsclient "github.com/zatekoja/medisync/internal/infrastructure/clients/typesense"
)

// TypesenseAdapter keeps the insurance_plans collection in step with the store
type TypesenseAdapter struct {
	client *tsclient.Client
}

// Ensure TypesenseAdapter implements PlanSearchIndexer
var _ providers.PlanSearchIndexer = (*TypesenseAdapter)(nil)

// NewTypesenseAdapter creates a new Typesense adapter
func NewTypesenseAdapter(client *tsclient.Client) *TypesenseAdapter {
	return &TypesenseAdapter{client: client}
}

// InitSchema ensures the collection exists
func (a *TypesenseAdapter) InitSchema(ctx context.Context) error {
	return a.client.InitSchema(ctx)
}

// IndexPlans upserts active plans. Inactive plans are removed instead.
func (a *TypesenseAdapter) IndexPlans(ctx context.Context, plans []*entities.InsurancePlan) error {
	logger := observability.LoggerFromContext(ctx)
	documents := a.client.Client().Collection(tsclient.PlansCollection).Documents()

	var inactive []string
	var failed int
	for _, plan := range plans {
		if plan == nil {
			continue
		}
		if !plan.IsActive {
			inactive = append(inactive, plan.ID)
			continue
		}
		if _, err := documents.Upsert(ctx, planDocument(plan)); err != nil {
			logger.Warn().Err(err).Str("plan_id", plan.ID).Msg("failed to index plan")
			failed++
		}
	}

	if err := a.RemovePlans(ctx, inactive); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("failed to index %d of %d plans", failed, len(plans))
	}
	return nil
}

// RemovePlans deletes documents by id. Missing documents are ignored.
func (a *TypesenseAdapter) RemovePlans(ctx context.Context, ids []string) error {
	collection := a.client.Client().Collection(tsclient.PlansCollection)
	for _, id := range ids {
		_, err := collection.Document(id).Delete(ctx)
		if err == nil {
			continue
		}
		var httpErr *typesense.HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
			continue
		}
		return fmt.Errorf("failed to delete plan %s from index: %w", id, err)
	}
	return nil
}

func planDocument(plan *entities.InsurancePlan) map[string]interface{} {
	doc := map[string]interface{}{
		"id":            plan.ID,
		"plan_name":     plan.PlanName,
		"provider_name": plan.ProviderName,
		"updated_at":    plan.UpdatedAt.Unix(),
	}
	if plan.PlanType != nil {
		doc["plan_type"] = *plan.PlanType
	}
	if plan.CoverageType != nil {
		doc["coverage_type"] = *plan.CoverageType
	}
	if plan.AnnualLimit != nil {
		doc["annual_limit"] = *plan.AnnualLimit
	}
	if plan.MonthlyPremiumMin != nil {
		doc["monthly_premium_min"] = *plan.MonthlyPremiumMin
	}
	if plan.OutpatientCovered != nil {
		doc["outpatient_covered"] = *plan.OutpatientCovered
	}
	if plan.MaternityCovered != nil {
		doc["maternity_covered"] = *plan.MaternityCovered
	}
	if len(plan.CoveredConditions) > 0 {
		doc["covered_conditions"] = plan.CoveredConditions
	}
	if len(plan.PanelHospitals) > 0 {
		doc["panel_hospitals"] = plan.PanelHospitals
	}
	if plan.MinAge != nil {
		doc["min_age"] = *plan.MinAge
	}
	if plan.MaxAge != nil {
		doc["max_age"] = *plan.MaxAge
	}
	return doc
}
