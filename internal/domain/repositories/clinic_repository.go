package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/medisync/internal/domain/entities"
)

// ClinicRepository defines persistence for clinic facilities
type ClinicRepository interface {
	// UpsertSheetBatch writes the spreadsheet columns of each clinic, keyed by id.
	// Enrichment columns of existing rows are never touched.
	UpsertSheetBatch(ctx context.Context, clinics []*entities.Clinic) error

	// CountPendingEnrichment counts active clinics still waiting for enrichment
	CountPendingEnrichment(ctx context.Context) (int, error)

	// ListPendingEnrichment returns up to limit active clinics waiting for enrichment
	ListPendingEnrichment(ctx context.Context, limit int) ([]*entities.Clinic, error)

	// MarkEnriched stores the non-nil enrichment fields and sets status enriched
	MarkEnriched(ctx context.Context, id string, enrichment *entities.ClinicEnrichment, at time.Time) error

	// MarkEnrichmentFailed sets status failed with the error text
	MarkEnrichmentFailed(ctx context.Context, id string, reason string, at time.Time) error
}
