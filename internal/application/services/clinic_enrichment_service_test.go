package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medisync/internal/application/services"
	"github.com/zatekoja/medisync/internal/domain/entities"
	apperrors "github.com/zatekoja/medisync/pkg/errors"
)

func pendingClinic(id, name string) *entities.Clinic {
	return &entities.Clinic{
		ID:               id,
		Name:             name,
		Address:          strPtr("Jalan Ampang"),
		City:             strPtr("Kuala Lumpur"),
		State:            strPtr("WP Kuala Lumpur"),
		IsActive:         true,
		EnrichmentStatus: entities.EnrichmentPending,
	}
}

func newEnrichment(repo *memoryClinicRepo, enricher *fakeEnricher, locks *fakeLocks, batch int) *services.ClinicEnrichmentService {
	cfg := services.ClinicEnrichmentConfig{BatchSize: batch}
	if locks == nil {
		return services.NewClinicEnrichmentService(repo, enricher, nil, services.NoopSleeper{}, nil, cfg)
	}
	return services.NewClinicEnrichmentService(repo, enricher, locks, services.NoopSleeper{}, nil, cfg)
}

func TestClinicEnrichmentService_FetchPending(t *testing.T) {
	repo := newMemoryClinicRepo(pendingClinic("1", "Klinik A"), pendingClinic("2", "Klinik B"), pendingClinic("3", "Klinik C"))
	svc := newEnrichment(repo, &fakeEnricher{}, nil, 2)

	queries, err := svc.FetchPending(context.Background())
	require.NoError(t, err)

	require.Len(t, queries, 2)
	assert.Equal(t, entities.ClinicQuery{ID: "1", Name: "Klinik A", Address: "Jalan Ampang", City: "Kuala Lumpur", State: "WP Kuala Lumpur"}, queries[0])
	assert.Equal(t, "Klinik A, Jalan Ampang, Kuala Lumpur, WP Kuala Lumpur, Malaysia", queries[0].SearchText())
}

func TestClinicEnrichmentService_RunRecordsOutcomes(t *testing.T) {
	repo := newMemoryClinicRepo(
		pendingClinic("1", "Klinik Found"),
		pendingClinic("2", "Klinik Missing"),
		pendingClinic("3", "Klinik Broken"),
		pendingClinic("4", "Klinik Later"),
	)
	enricher := &fakeEnricher{
		results: map[string]*entities.ClinicEnrichment{
			"Klinik Found": {Latitude: floatPtr(3.15), Longitude: floatPtr(101.7), Phone: strPtr("03-2161 1234")},
		},
		errs: map[string]error{"Klinik Broken": errors.New("timeout waiting for results panel")},
	}
	svc := newEnrichment(repo, enricher, nil, 3)

	stats, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Attempts)
	assert.Equal(t, 1, stats.Enriched)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 1, stats.Pending)
	assert.False(t, stats.Blocked)

	found := repo.get("1")
	assert.Equal(t, entities.EnrichmentEnriched, found.EnrichmentStatus)
	assert.Equal(t, 3.15, *found.Latitude)
	require.NotNil(t, found.EnrichmentAttemptedAt)

	missing := repo.get("2")
	assert.Equal(t, entities.EnrichmentFailed, missing.EnrichmentStatus)
	assert.Equal(t, "clinic not found on map", *missing.EnrichmentError)

	broken := repo.get("3")
	assert.Equal(t, entities.EnrichmentFailed, broken.EnrichmentStatus)
	assert.Contains(t, *broken.EnrichmentError, "timeout")

	assert.Equal(t, entities.EnrichmentPending, repo.get("4").EnrichmentStatus)
}

func TestClinicEnrichmentService_EmptyResultIsNotFound(t *testing.T) {
	enricher := &fakeEnricher{results: map[string]*entities.ClinicEnrichment{"Klinik Empty": {}}}
	svc := newEnrichment(newMemoryClinicRepo(), enricher, nil, 10)

	outcomes := svc.EnrichBatch(context.Background(), []entities.ClinicQuery{{ID: "1", Name: "Klinik Empty"}})

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Succeeded())
	assert.Equal(t, "clinic not found on map", outcomes[0].Error)
}

func TestClinicEnrichmentService_BlockedStopsBatchAndStaysPending(t *testing.T) {
	repo := newMemoryClinicRepo(pendingClinic("1", "Klinik One"), pendingClinic("2", "Klinik Two"), pendingClinic("3", "Klinik Three"))
	enricher := &fakeEnricher{
		results: map[string]*entities.ClinicEnrichment{"Klinik One": {GooglePlaceID: strPtr("ChIJ123")}},
		errs:    map[string]error{"Klinik Two": apperrors.NewBlockedError("captcha page shown")},
	}
	svc := newEnrichment(repo, enricher, nil, 10)

	stats, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, stats.Blocked)
	assert.Equal(t, 1, stats.Enriched)
	assert.Len(t, enricher.queries, 2, "no lookups after the block")
	assert.Equal(t, entities.EnrichmentPending, repo.get("2").EnrichmentStatus)
	assert.Equal(t, entities.EnrichmentPending, repo.get("3").EnrichmentStatus)
	assert.Equal(t, 2, stats.Pending)
}

func TestClinicEnrichmentService_NothingPending(t *testing.T) {
	enricher := &fakeEnricher{}
	svc := newEnrichment(newMemoryClinicRepo(), enricher, nil, 10)

	stats, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, stats.Attempts)
	assert.Empty(t, enricher.queries)
}

func TestClinicEnrichmentService_LockHeldSkipsRun(t *testing.T) {
	locks := newFakeLocks()
	locks.held["lock:clinic-enrichment"] = true
	enricher := &fakeEnricher{}
	svc := newEnrichment(newMemoryClinicRepo(pendingClinic("1", "Klinik One")), enricher, locks, 10)

	stats, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, stats.Attempts)
	assert.Empty(t, enricher.queries)
}

func TestClinicEnrichmentService_ReleasesLock(t *testing.T) {
	locks := newFakeLocks()
	svc := newEnrichment(newMemoryClinicRepo(pendingClinic("1", "Klinik One")), &fakeEnricher{}, locks, 10)

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"lock:clinic-enrichment"}, locks.released)
}
