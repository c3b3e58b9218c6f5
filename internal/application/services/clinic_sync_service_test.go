package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medisync/internal/application/services"
	"github.com/zatekoja/medisync/internal/domain/entities"
	apperrors "github.com/zatekoja/medisync/pkg/errors"
)

var sheetModified = time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)

func clinicSheet() [][]string {
	return [][]string{
		{"SENARAI KLINIK PERUBATAN SWASTA"},
		{"BIL", "JENIS_FASILITI", "NAMA_PENUH_FASILITI", "ALAMAT", "POSKOD", "BANDAR", "NEGERI"},
		{"1", "KLINIK PERUBATAN", "Klinik Kesihatan Bandar", "Jalan 1, Kuala Lumpur", "50000", "Kuala Lumpur", "WP Kuala Lumpur"},
		{"2", "KLINIK PERUBATAN", "Klinik Dr Tan 24 Jam", " No 5, Jalan Ipoh ", "51200", "Kuala Lumpur", "WP Kuala Lumpur"},
		{"", "", "", "", "", "", ""},
		{"3", "KLINIK PERUBATAN", "", "No name here", "", "", ""},
		{"4", "KLINIK PERUBATAN", "klinik kesihatan bandar", "jalan 1, kuala lumpur"},
	}
}

func newClinicSync(sheets *fakeSheets, files *fakeFiles, cache *memoryCache, repo *memoryClinicRepo) *services.ClinicSyncService {
	return services.NewClinicSyncService(sheets, files, cache, repo, nil, services.ClinicSyncConfig{
		SpreadsheetID: "sheet-id",
		Worksheet:     "KLINIK PERUBATAN SWASTA",
		SkipRows:      2,
	})
}

func TestParseClinicRows(t *testing.T) {
	rows := services.ParseClinicRows(clinicSheet(), 2)

	require.Len(t, rows, 3)
	assert.Equal(t, "Klinik Kesihatan Bandar", rows[0].Name)
	assert.Equal(t, "Jalan 1, Kuala Lumpur", rows[0].Address)
	assert.Equal(t, "50000", rows[0].Postcode)
	assert.Equal(t, "No 5, Jalan Ipoh", rows[1].Address)
	assert.Empty(t, rows[2].City, "short rows leave missing cells empty")
}

func TestParseClinicRows_NoData(t *testing.T) {
	assert.Empty(t, services.ParseClinicRows(clinicSheet()[:2], 2))
	assert.Empty(t, services.ParseClinicRows(nil, 2))
}

func TestTransformClinic(t *testing.T) {
	now := time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)
	rows := services.ParseClinicRows(clinicSheet(), 2)

	first := services.TransformClinic(rows[0], now)
	assert.Equal(t, "bb373099-6174-15c4-5fd7-8cc0eccc3985", first.ID)
	assert.False(t, first.Is24Hours)
	assert.True(t, first.IsActive)
	assert.False(t, first.IsGovernment)
	assert.Equal(t, entities.EnrichmentPending, first.EnrichmentStatus)
	require.NotNil(t, first.City)
	assert.Equal(t, "Kuala Lumpur", *first.City)
	assert.Nil(t, first.Latitude)

	second := services.TransformClinic(rows[1], now)
	assert.True(t, second.Is24Hours)

	third := services.TransformClinic(rows[2], now)
	assert.Equal(t, first.ID, third.ID, "case differences map to the same clinic")
	assert.Nil(t, third.Postcode)
}

func TestClinicSyncService_CheckSheetModified(t *testing.T) {
	t.Run("nothing stored", func(t *testing.T) {
		svc := newClinicSync(&fakeSheets{}, &fakeFiles{modified: sheetModified}, newMemoryCache(), newMemoryClinicRepo())
		changed, modified := svc.CheckSheetModified(context.Background())
		assert.True(t, changed)
		assert.Equal(t, "2026-02-10T08:30:00Z", modified)
	})

	t.Run("same time stored", func(t *testing.T) {
		cache := newMemoryCache()
		cache.data[services.ClinicSheetModifiedKey] = []byte("2026-02-10T08:30:00Z")
		svc := newClinicSync(&fakeSheets{}, &fakeFiles{modified: sheetModified}, cache, newMemoryClinicRepo())
		changed, _ := svc.CheckSheetModified(context.Background())
		assert.False(t, changed)
	})

	t.Run("older time stored", func(t *testing.T) {
		cache := newMemoryCache()
		cache.data[services.ClinicSheetModifiedKey] = []byte("2026-01-01T00:00:00Z")
		svc := newClinicSync(&fakeSheets{}, &fakeFiles{modified: sheetModified}, cache, newMemoryClinicRepo())
		changed, _ := svc.CheckSheetModified(context.Background())
		assert.True(t, changed)
	})

	t.Run("garbage stored", func(t *testing.T) {
		cache := newMemoryCache()
		cache.data[services.ClinicSheetModifiedKey] = []byte("yesterday")
		svc := newClinicSync(&fakeSheets{}, &fakeFiles{modified: sheetModified}, cache, newMemoryClinicRepo())
		changed, _ := svc.CheckSheetModified(context.Background())
		assert.True(t, changed)
	})

	t.Run("metadata unavailable", func(t *testing.T) {
		svc := newClinicSync(&fakeSheets{}, &fakeFiles{err: errors.New("403 forbidden")}, newMemoryCache(), newMemoryClinicRepo())
		changed, modified := svc.CheckSheetModified(context.Background())
		assert.True(t, changed)
		assert.Empty(t, modified)
	})
}

func TestClinicSyncService_RunSyncsAndRecordsModifiedTime(t *testing.T) {
	cache := newMemoryCache()
	repo := newMemoryClinicRepo()
	svc := newClinicSync(&fakeSheets{values: clinicSheet()}, &fakeFiles{modified: sheetModified}, cache, repo)

	report, err := svc.Run(context.Background(), false)
	require.NoError(t, err)

	assert.True(t, report.Changed)
	assert.Equal(t, 3, report.Extracted)
	assert.Equal(t, entities.ClinicSyncStats{Processed: 2, Success: 2, Duplicates: 1}, report.Stats)
	assert.Len(t, repo.clinics, 2)

	stored, err := cache.Get(context.Background(), services.ClinicSheetModifiedKey)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-10T08:30:00Z", string(stored))
}

func TestClinicSyncService_RunSkipsUnchangedSheet(t *testing.T) {
	cache := newMemoryCache()
	cache.data[services.ClinicSheetModifiedKey] = []byte("2026-02-10T08:30:00Z")
	sheets := &fakeSheets{values: clinicSheet()}
	svc := newClinicSync(sheets, &fakeFiles{modified: sheetModified}, cache, newMemoryClinicRepo())

	report, err := svc.Run(context.Background(), false)
	require.NoError(t, err)

	assert.False(t, report.Changed)
	assert.Zero(t, sheets.reads)
}

func TestClinicSyncService_ForceIgnoresModifiedTime(t *testing.T) {
	cache := newMemoryCache()
	cache.data[services.ClinicSheetModifiedKey] = []byte("2026-02-10T08:30:00Z")
	sheets := &fakeSheets{values: clinicSheet()}
	svc := newClinicSync(sheets, &fakeFiles{modified: sheetModified}, cache, newMemoryClinicRepo())

	report, err := svc.Run(context.Background(), true)
	require.NoError(t, err)

	assert.True(t, report.Changed)
	assert.Equal(t, 1, sheets.reads)
}

func TestClinicSyncService_FailedUpsertKeepsOldModifiedTime(t *testing.T) {
	cache := newMemoryCache()
	repo := newMemoryClinicRepo()
	repo.upsertErr = errors.New("deadlock detected")
	svc := newClinicSync(&fakeSheets{values: clinicSheet()}, &fakeFiles{modified: sheetModified}, cache, repo)

	report, err := svc.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Stats.Errors)
	_, err = cache.Get(context.Background(), services.ClinicSheetModifiedKey)
	assert.Error(t, err)
}

func TestClinicSyncService_SheetReadFailure(t *testing.T) {
	svc := newClinicSync(&fakeSheets{err: errors.New("quota exceeded")}, &fakeFiles{modified: sheetModified}, newMemoryCache(), newMemoryClinicRepo())

	_, err := svc.Run(context.Background(), false)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
}

func TestClinicSyncService_UpsertKeepsEnrichment(t *testing.T) {
	existing := services.TransformClinic(services.ParseClinicRows(clinicSheet(), 2)[0], sheetModified)
	existing.EnrichmentStatus = entities.EnrichmentEnriched
	existing.Latitude = floatPtr(3.139)
	repo := newMemoryClinicRepo(existing)
	svc := newClinicSync(&fakeSheets{values: clinicSheet()}, &fakeFiles{modified: sheetModified}, newMemoryCache(), repo)

	_, err := svc.Run(context.Background(), true)
	require.NoError(t, err)

	stored := repo.get(existing.ID)
	assert.Equal(t, entities.EnrichmentEnriched, stored.EnrichmentStatus)
	assert.Equal(t, 3.139, *stored.Latitude)
}
