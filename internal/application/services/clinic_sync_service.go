package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/zatekoja/medisync/internal/domain/entities"
	"github.com/zatekoja/medisync/internal/domain/providers"
	"github.com/zatekoja/medisync/internal/domain/repositories"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/medisync/pkg/errors"
	"github.com/zatekoja/medisync/pkg/utils"
)

const (
	// ClinicSheetModifiedKey stores the sheet modifiedTime of the last successful sync.
	ClinicSheetModifiedKey = "sync:clinic_sheet:last_modified"
	clinicUpsertBatchSize  = 500
)

// Sheet header names mapped to row fields.
const (
	colNumber       = "BIL"
	colFacilityType = "JENIS_FASILITI"
	colName         = "NAMA_PENUH_FASILITI"
	colAddress      = "ALAMAT"
	colPostcode     = "POSKOD"
	colCity         = "BANDAR"
	colState        = "NEGERI"
)

// ClinicSyncConfig locates the source worksheet.
type ClinicSyncConfig struct {
	SpreadsheetID string
	Worksheet     string
	SkipRows      int
}

// ClinicSyncReport is the outcome of one sheet sync.
type ClinicSyncReport struct {
	Changed      bool                     `json:"changed"`
	ModifiedTime string                   `json:"modified_time,omitempty"`
	Extracted    int                      `json:"extracted"`
	Stats        entities.ClinicSyncStats `json:"stats"`
}

// ClinicSyncService copies the clinic spreadsheet into clinic_facilities when it changes.
type ClinicSyncService struct {
	sheets  providers.SheetReader
	files   providers.FileMetadataProvider
	cache   providers.CacheProvider
	repo    repositories.ClinicRepository
	metrics *observability.Metrics
	cfg     ClinicSyncConfig
	now     func() time.Time
}

// NewClinicSyncService creates the service. cache and metrics may be nil;
// without a cache every run counts as changed.
func NewClinicSyncService(
	sheets providers.SheetReader,
	files providers.FileMetadataProvider,
	cache providers.CacheProvider,
	repo repositories.ClinicRepository,
	metrics *observability.Metrics,
	cfg ClinicSyncConfig,
) *ClinicSyncService {
	if cfg.SkipRows < 1 {
		cfg.SkipRows = 2
	}
	return &ClinicSyncService{
		sheets:  sheets,
		files:   files,
		cache:   cache,
		repo:    repo,
		metrics: metrics,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CheckSheetModified reports whether the sheet changed since the stored modification time,
// along with the current modification time. Any uncertainty counts as changed.
func (s *ClinicSyncService) CheckSheetModified(ctx context.Context) (bool, string) {
	logger := observability.LoggerFromContext(ctx)

	if s.files == nil {
		return true, ""
	}
	current, err := s.files.ModifiedTime(ctx, s.cfg.SpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("could not read sheet modified time, assuming changed")
		return true, ""
	}
	currentText := current.UTC().Format(time.RFC3339Nano)

	if s.cache == nil {
		return true, currentText
	}
	stored, err := s.cache.Get(ctx, ClinicSheetModifiedKey)
	if err != nil {
		if !errors.Is(err, providers.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("could not read stored modified time")
		}
		return true, currentText
	}

	last, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(stored)))
	if err != nil {
		logger.Warn().Err(err).Str("stored", string(stored)).Msg("unparsable stored modified time")
		return true, currentText
	}

	changed := current.After(last)
	logger.Info().Bool("changed", changed).Str("last", last.Format(time.RFC3339)).Str("current", currentText).Msg("checked clinic sheet")
	return changed, currentText
}

// ExtractFromSheet reads and parses the worksheet.
func (s *ClinicSyncService) ExtractFromSheet(ctx context.Context) ([]entities.ClinicSheetRow, error) {
	values, err := s.sheets.ReadAll(ctx, s.cfg.SpreadsheetID, s.cfg.Worksheet)
	if err != nil {
		return nil, apperrors.NewExternalError("failed to read clinic sheet", err)
	}
	rows := ParseClinicRows(values, s.cfg.SkipRows)
	observability.LoggerFromContext(ctx).Info().Int("rows", len(rows)).Msg("extracted clinics from sheet")
	return rows, nil
}

// ParseClinicRows maps raw sheet values to rows. The header sits at skipRows-1 and
// data starts at skipRows. Blank rows and rows without a facility name are dropped.
func ParseClinicRows(values [][]string, skipRows int) []entities.ClinicSheetRow {
	if skipRows < 1 {
		skipRows = 1
	}
	if len(values) <= skipRows {
		return nil
	}

	columns := make(map[string]int)
	for i, header := range values[skipRows-1] {
		columns[strings.ToUpper(strings.TrimSpace(header))] = i
	}
	cell := func(row []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var rows []entities.ClinicSheetRow
	for _, row := range values[skipRows:] {
		if isBlankRow(row) {
			continue
		}
		parsed := entities.ClinicSheetRow{
			Number:       cell(row, colNumber),
			FacilityType: cell(row, colFacilityType),
			Name:         cell(row, colName),
			Address:      cell(row, colAddress),
			Postcode:     cell(row, colPostcode),
			City:         cell(row, colCity),
			State:        cell(row, colState),
		}
		if parsed.Name == "" {
			continue
		}
		rows = append(rows, parsed)
	}
	return rows
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// TransformClinic maps a sheet row to a clinic. Enrichment columns are left unset.
func TransformClinic(row entities.ClinicSheetRow, now time.Time) *entities.Clinic {
	upper := strings.ToUpper(row.Name)
	return &entities.Clinic{
		ID:               utils.GenerateDeterministicID(row.Name, row.Address),
		Name:             row.Name,
		FacilityType:     row.FacilityType,
		Address:          optionalString(row.Address),
		City:             optionalString(row.City),
		State:            optionalString(row.State),
		Postcode:         optionalString(row.Postcode),
		Is24Hours:        strings.Contains(upper, "24 JAM") || strings.Contains(upper, "24JAM"),
		IsGovernment:     false,
		IsActive:         true,
		EnrichmentStatus: entities.EnrichmentPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Transform maps every row.
func (s *ClinicSyncService) Transform(rows []entities.ClinicSheetRow) []*entities.Clinic {
	now := s.now()
	clinics := make([]*entities.Clinic, 0, len(rows))
	for _, row := range rows {
		clinics = append(clinics, TransformClinic(row, now))
	}
	return clinics
}

// Upsert deduplicates by id and writes in batches. A failed batch counts as errors.
func (s *ClinicSyncService) Upsert(ctx context.Context, clinics []*entities.Clinic) entities.ClinicSyncStats {
	logger := observability.LoggerFromContext(ctx)

	var stats entities.ClinicSyncStats
	seen := make(map[string]struct{}, len(clinics))
	unique := make([]*entities.Clinic, 0, len(clinics))
	for _, c := range clinics {
		if _, dup := seen[c.ID]; dup {
			stats.Duplicates++
			logger.Debug().Str("name", c.Name).Msg("skipping duplicate clinic")
			continue
		}
		seen[c.ID] = struct{}{}
		unique = append(unique, c)
	}
	stats.Processed = len(unique)

	for start := 0; start < len(unique); start += clinicUpsertBatchSize {
		end := min(start+clinicUpsertBatchSize, len(unique))
		batch := unique[start:end]
		if err := s.repo.UpsertSheetBatch(ctx, batch); err != nil {
			logger.Error().Err(err).Int("batch_start", start).Int("batch", len(batch)).Msg("clinic batch upsert failed")
			stats.Errors += len(batch)
			continue
		}
		stats.Success += len(batch)
	}

	observability.RecordClinicsSynced(ctx, s.metrics, "success", stats.Success)
	observability.RecordClinicsSynced(ctx, s.metrics, "error", stats.Errors)
	logger.Info().Int("processed", stats.Processed).Int("success", stats.Success).Int("errors", stats.Errors).Int("duplicates", stats.Duplicates).Msg("clinic upsert complete")
	return stats
}

// UpdateLastModified stores the sheet modification time that was just synced.
func (s *ClinicSyncService) UpdateLastModified(ctx context.Context, modified string) error {
	if s.cache == nil || modified == "" {
		return nil
	}
	if err := s.cache.Set(ctx, ClinicSheetModifiedKey, []byte(modified), 0); err != nil {
		return apperrors.NewInternalError("failed to store sheet modified time", err)
	}
	return nil
}

// Run performs check, extract, transform, upsert and bookkeeping. force skips the change check.
func (s *ClinicSyncService) Run(ctx context.Context, force bool) (*ClinicSyncReport, error) {
	ctx, span := observability.StartSpan(ctx, "ClinicSyncService.Run")
	defer span.End()
	logger := observability.LoggerFromContext(ctx)

	report := &ClinicSyncReport{}
	changed, modified := s.CheckSheetModified(ctx)
	report.Changed = changed || force
	report.ModifiedTime = modified
	if !report.Changed {
		logger.Info().Msg("clinic sheet unchanged, skipping sync")
		return report, nil
	}

	rows, err := s.ExtractFromSheet(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return report, err
	}
	report.Extracted = len(rows)

	report.Stats = s.Upsert(ctx, s.Transform(rows))
	if report.Stats.Errors == 0 {
		if err := s.UpdateLastModified(ctx, modified); err != nil {
			logger.Warn().Err(err).Msg("failed to record sheet modified time")
		}
	}

	LogClinicSyncSummary(ctx, report)
	return report, nil
}

// LogClinicSyncSummary emits the run totals to the OTel log pipeline.
func LogClinicSyncSummary(ctx context.Context, report *ClinicSyncReport) {
	if report == nil {
		return
	}
	observability.EmitRunSummary(ctx, "clinic_sync", map[string]int{
		"extracted":  report.Extracted,
		"processed":  report.Stats.Processed,
		"success":    report.Stats.Success,
		"errors":     report.Stats.Errors,
		"duplicates": report.Stats.Duplicates,
	})
}
