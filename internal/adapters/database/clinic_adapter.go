package database

import (
	"context"
	"encoding/json"
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

const clinicsTable = "clinic_facilities"

// Columns owned by the spreadsheet. A re-sync overwrites only these.
var clinicSheetColumns = []interface{}{
	"name", "facility_type", "address", "city", "state", "postcode",
	"is_24_hours", "is_active", "updated_at",
}

// ClinicAdapter implements ClinicRepository
type ClinicAdapter struct {
	client  *postgres.Client
	db      *goqu.Database
	metrics *observability.Metrics
}

// NewClinicAdapter creates a new clinic adapter
func NewClinicAdapter(client *postgres.Client, metrics *observability.Metrics) repositories.ClinicRepository {
	return &ClinicAdapter{
		client:  client,
		db:      goqu.New("postgres", client.DB()),
		metrics: metrics,
	}
}

// UpsertSheetBatch inserts new clinics as pending and refreshes sheet columns of existing ones
func (a *ClinicAdapter) UpsertSheetBatch(ctx context.Context, clinics []*entities.Clinic) error {
	if len(clinics) == 0 {
		return nil
	}
	defer a.observe(ctx, "upsert_clinics", time.Now())

	rows := make([]interface{}, 0, len(clinics))
	for _, c := range clinics {
		rows = append(rows, goqu.Record{
			"id":                c.ID,
			"name":              c.Name,
			"facility_type":     c.FacilityType,
			"address":           c.Address,
			"city":              c.City,
			"state":             c.State,
			"postcode":          c.Postcode,
			"is_24_hours":       c.Is24Hours,
			"is_government":     c.IsGovernment,
			"is_active":         c.IsActive,
			"enrichment_status": string(entities.EnrichmentPending),
			"created_at":        c.CreatedAt,
			"updated_at":        c.UpdatedAt,
		})
	}

	query, args, err := a.db.Insert(clinicsTable).
		Rows(rows...).
		OnConflict(goqu.DoUpdate("id", excludedColumns(clinicSheetColumns))).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to upsert clinics", err)
	}
	return nil
}

func pendingEnrichment() goqu.Ex {
	return goqu.Ex{
		"is_active":         true,
		"enrichment_status": string(entities.EnrichmentPending),
	}
}

// CountPendingEnrichment counts active clinics waiting for enrichment
func (a *ClinicAdapter) CountPendingEnrichment(ctx context.Context) (int, error) {
	query, args, err := a.db.From(clinicsTable).
		Select(goqu.COUNT("*")).
		Where(pendingEnrichment()).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build count query", err)
	}

	var count int
	if err := a.client.DB().QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.NewInternalError("failed to count pending clinics", err)
	}
	return count, nil
}

// ListPendingEnrichment returns the oldest pending clinics first
func (a *ClinicAdapter) ListPendingEnrichment(ctx context.Context, limit int) ([]*entities.Clinic, error) {
	defer a.observe(ctx, "select_pending_clinics", time.Now())

	ds := a.db.Select("id", "name", "facility_type", "address", "city", "state", "postcode", "enrichment_status").
		From(clinicsTable).
		Where(pendingEnrichment()).
		Order(goqu.I("created_at").Asc(), goqu.I("id").Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list pending clinics", err)
	}
	defer rows.Close()

	var clinics []*entities.Clinic
	for rows.Next() {
		c := &entities.Clinic{IsActive: true}
		var status string
		if err := rows.Scan(&c.ID, &c.Name, &c.FacilityType, &c.Address, &c.City, &c.State, &c.Postcode, &status); err != nil {
			return nil, apperrors.NewInternalError("failed to scan clinic", err)
		}
		c.EnrichmentStatus = entities.EnrichmentStatus(status)
		clinics = append(clinics, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate clinics", err)
	}
	return clinics, nil
}

// MarkEnriched stores the fields the lookup found and leaves the rest untouched
func (a *ClinicAdapter) MarkEnriched(ctx context.Context, id string, enrichment *entities.ClinicEnrichment, at time.Time) error {
	record := goqu.Record{
		"enrichment_status":       string(entities.EnrichmentEnriched),
		"enrichment_attempted_at": at,
		"enrichment_error":        nil,
		"updated_at":              at,
	}
	if enrichment != nil {
		setIfPresent(record, "latitude", enrichment.Latitude)
		setIfPresent(record, "longitude", enrichment.Longitude)
		setIfPresent(record, "phone", enrichment.Phone)
		setIfPresent(record, "website", enrichment.Website)
		setIfPresent(record, "google_place_id", enrichment.GooglePlaceID)
		setIfPresent(record, "google_rating", enrichment.GoogleRating)
		setIfPresent(record, "has_emergency", enrichment.HasEmergency)
		if len(enrichment.Services) > 0 {
			record["services"] = pq.Array(enrichment.Services)
		}
		if len(enrichment.Specialties) > 0 {
			record["specialties"] = pq.Array(enrichment.Specialties)
		}
		if enrichment.OperatingHours != nil {
			hours, err := json.Marshal(enrichment.OperatingHours)
			if err != nil {
				return apperrors.NewInternalError("failed to encode operating hours", err)
			}
			record["operating_hours"] = goqu.L("?::jsonb", string(hours))
		}
	}
	return a.update(ctx, id, record, "failed to store clinic enrichment")
}

// MarkEnrichmentFailed records a failed lookup
func (a *ClinicAdapter) MarkEnrichmentFailed(ctx context.Context, id string, reason string, at time.Time) error {
	return a.update(ctx, id, goqu.Record{
		"enrichment_status":       string(entities.EnrichmentFailed),
		"enrichment_attempted_at": at,
		"enrichment_error":        reason,
		"updated_at":              at,
	}, "failed to mark clinic enrichment failed")
}

func (a *ClinicAdapter) update(ctx context.Context, id string, record goqu.Record, failure string) error {
	defer a.observe(ctx, "update_clinic", time.Now())

	query, args, err := a.db.Update(clinicsTable).
		Set(record).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError(failure, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("clinic with id %s not found", id))
	}
	return nil
}

func (a *ClinicAdapter) observe(ctx context.Context, operation string, start time.Time) {
	observability.RecordDBMetric(ctx, a.metrics, operation, time.Since(start))
}

func setIfPresent[T any](record goqu.Record, column string, value *T) {
	if value != nil {
		record[column] = *value
	}
}
