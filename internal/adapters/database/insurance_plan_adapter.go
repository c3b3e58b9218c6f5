package database

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"
	"github.com/zatekoja/medisync/internal/domain/entities"
	"github.com/zatekoja/medisync/internal/domain/repositories"
	"github.com/zatekoja/medisync/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/medisync/pkg/errors"
)

const insurancePlansTable = "insurance_plans"

var insurancePlanColumns = []interface{}{
	"id", "provider_name", "plan_name", "plan_type", "coverage_type",
	"annual_limit", "lifetime_limit", "room_board_limit",
	"outpatient_covered", "maternity_covered", "dental_covered", "optical_covered", "mental_health_covered",
	"covered_conditions", "excluded_conditions", "panel_hospitals",
	"monthly_premium_min", "monthly_premium_max", "deductible", "co_payment_percentage",
	"min_age", "max_age", "claim_process", "contact_phone", "website",
	"is_active", "created_at", "updated_at",
}

// InsurancePlanAdapter implements InsurancePlanRepository
type InsurancePlanAdapter struct {
	client  *postgres.Client
	db      *goqu.Database
	metrics *observability.Metrics
}

// NewInsurancePlanAdapter creates a new insurance plan adapter
func NewInsurancePlanAdapter(client *postgres.Client, metrics *observability.Metrics) repositories.InsurancePlanRepository {
	return &InsurancePlanAdapter{
		client:  client,
		db:      goqu.New("postgres", client.DB()),
		metrics: metrics,
	}
}

// GetActiveByProvider returns the provider's active plans keyed by id
func (a *InsurancePlanAdapter) GetActiveByProvider(ctx context.Context, providerName string) (map[string]*entities.InsurancePlan, error) {
	defer a.observe(ctx, "select_active_plans", time.Now())

	query, args, err := a.db.Select(insurancePlanColumns...).
		From(insurancePlansTable).
		Where(goqu.Ex{"provider_name": providerName, "is_active": true}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list insurance plans", err)
	}
	defer rows.Close()

	plans := make(map[string]*entities.InsurancePlan)
	for rows.Next() {
		plan := &entities.InsurancePlan{}
		if err := rows.Scan(
			&plan.ID, &plan.ProviderName, &plan.PlanName, &plan.PlanType, &plan.CoverageType,
			&plan.AnnualLimit, &plan.LifetimeLimit, &plan.RoomBoardLimit,
			&plan.OutpatientCovered, &plan.MaternityCovered, &plan.DentalCovered, &plan.OpticalCovered, &plan.MentalHealthCovered,
			pq.Array(&plan.CoveredConditions), pq.Array(&plan.ExcludedConditions), pq.Array(&plan.PanelHospitals),
			&plan.MonthlyPremiumMin, &plan.MonthlyPremiumMax, &plan.Deductible, &plan.CoPaymentPercentage,
			&plan.MinAge, &plan.MaxAge, &plan.ClaimProcess, &plan.ContactPhone, &plan.Website,
			&plan.IsActive, &plan.CreatedAt, &plan.UpdatedAt,
		); err != nil {
			return nil, apperrors.NewInternalError("failed to scan insurance plan", err)
		}
		plans[plan.ID] = plan
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate insurance plans", err)
	}

	return plans, nil
}

// InsertBatch inserts new plans. A row that already exists, typically a retired plan
// listed again, is reactivated; its stored values survive wherever the new row is NULL.
func (a *InsurancePlanAdapter) InsertBatch(ctx context.Context, plans []*entities.InsurancePlan) error {
	defer a.observe(ctx, "insert_plans", time.Now())
	return a.write(ctx, plans, reactivatedColumns(), "failed to insert insurance plans")
}

// UpsertBatch writes already merged plans keyed by id. created_at is kept from the stored row.
func (a *InsurancePlanAdapter) UpsertBatch(ctx context.Context, plans []*entities.InsurancePlan) error {
	defer a.observe(ctx, "upsert_plans", time.Now())
	return a.write(ctx, plans, excludedColumns(insurancePlanColumns, "id", "created_at"), "failed to upsert insurance plans")
}

func (a *InsurancePlanAdapter) write(ctx context.Context, plans []*entities.InsurancePlan, onConflict goqu.Record, failure string) error {
	if len(plans) == 0 {
		return nil
	}

	rows := make([]interface{}, 0, len(plans))
	for _, p := range plans {
		rows = append(rows, planRecord(p))
	}

	query, args, err := a.db.Insert(insurancePlansTable).
		Rows(rows...).
		OnConflict(goqu.DoUpdate("id", onConflict)).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError(failure, err)
	}
	return nil
}

// SetInactive retires the given active plans
func (a *InsurancePlanAdapter) SetInactive(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	defer a.observe(ctx, "deactivate_plans", time.Now())

	query, args, err := a.db.Update(insurancePlansTable).
		Set(goqu.Record{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		}).
		Where(goqu.Ex{"id": ids, "is_active": true}).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to deactivate insurance plans", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to get rows affected", err)
	}
	return int(rowsAffected), nil
}

// Count returns active plans, for one provider when providerName is set
func (a *InsurancePlanAdapter) Count(ctx context.Context, providerName string) (int, error) {
	where := goqu.Ex{"is_active": true}
	if providerName != "" {
		where["provider_name"] = providerName
	}

	query, args, err := a.db.From(insurancePlansTable).
		Select(goqu.COUNT("*")).
		Where(where).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build count query", err)
	}

	var count int
	if err := a.client.DB().QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.NewInternalError("failed to count insurance plans", err)
	}
	return count, nil
}

func (a *InsurancePlanAdapter) observe(ctx context.Context, operation string, start time.Time) {
	observability.RecordDBMetric(ctx, a.metrics, operation, time.Since(start))
}

func planRecord(p *entities.InsurancePlan) goqu.Record {
	return goqu.Record{
		"id":                    p.ID,
		"provider_name":         p.ProviderName,
		"plan_name":             p.PlanName,
		"plan_type":             p.PlanType,
		"coverage_type":         p.CoverageType,
		"annual_limit":          p.AnnualLimit,
		"lifetime_limit":        p.LifetimeLimit,
		"room_board_limit":      p.RoomBoardLimit,
		"outpatient_covered":    p.OutpatientCovered,
		"maternity_covered":     p.MaternityCovered,
		"dental_covered":        p.DentalCovered,
		"optical_covered":       p.OpticalCovered,
		"mental_health_covered": p.MentalHealthCovered,
		"covered_conditions":    pq.Array(p.CoveredConditions),
		"excluded_conditions":   pq.Array(p.ExcludedConditions),
		"panel_hospitals":       pq.Array(p.PanelHospitals),
		"monthly_premium_min":   p.MonthlyPremiumMin,
		"monthly_premium_max":   p.MonthlyPremiumMax,
		"deductible":            p.Deductible,
		"co_payment_percentage": p.CoPaymentPercentage,
		"min_age":               p.MinAge,
		"max_age":               p.MaxAge,
		"claim_process":         p.ClaimProcess,
		"contact_phone":         p.ContactPhone,
		"website":               p.Website,
		"is_active":             p.IsActive,
		"created_at":            p.CreatedAt,
		"updated_at":            p.UpdatedAt,
	}
}

// Columns a reactivating insert always takes from the incoming row.
var reactivationOverwrites = map[string]struct{}{
	"provider_name": {},
	"plan_name":     {},
	"is_active":     {},
	"updated_at":    {},
}

// reactivatedColumns builds the ON CONFLICT update for InsertBatch. Data columns
// fall back to the stored value when the incoming one is NULL.
func reactivatedColumns() goqu.Record {
	record := goqu.Record{}
	for _, c := range insurancePlanColumns {
		name := c.(string)
		switch {
		case name == "id" || name == "created_at":
			continue
		case isOverwrite(name):
			record[name] = goqu.L("EXCLUDED." + name)
		default:
			record[name] = goqu.L(fmt.Sprintf("COALESCE(EXCLUDED.%s, %s.%s)", name, insurancePlansTable, name))
		}
	}
	return record
}

func isOverwrite(column string) bool {
	_, ok := reactivationOverwrites[column]
	return ok
}

// excludedColumns builds an ON CONFLICT update that copies every column except skip.
func excludedColumns(columns []interface{}, skip ...string) goqu.Record {
	skipped := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		skipped[s] = struct{}{}
	}
	record := goqu.Record{}
	for _, c := range columns {
		name := c.(string)
		if _, ok := skipped[name]; ok {
			continue
		}
		record[name] = goqu.L("EXCLUDED." + name)
	}
	return record
}
