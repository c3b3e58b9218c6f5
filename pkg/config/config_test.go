package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8108", cfg.Typesense.URL)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.ExtractionModel)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.ClassifierModel)
	assert.Equal(t, 2, cfg.Sheets.SkipRows)
	assert.Equal(t, 50, cfg.Enrichment.BatchSize)
	assert.Equal(t, 8*time.Second, cfg.Enrichment.MinDelay)
	assert.Equal(t, 15*time.Second, cfg.Enrichment.MaxDelay)
	assert.True(t, cfg.Enrichment.Headless)
	assert.Equal(t, "scrape", cfg.Enrichment.Mode)
	assert.Equal(t, "medisync", cfg.Temporal.TaskQueue)
}

func TestLoad_ClinicSheetEnv(t *testing.T) {
	t.Setenv("CLINIC_SPREADSHEET_ID", "sheet-123")
	t.Setenv("CLINIC_WORKSHEET_NAME", "Klinik")
	t.Setenv("ENRICHMENT_BATCH_SIZE", "10")
	t.Setenv("SCRAPER_LOCK_TTL", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sheet-123", cfg.Sheets.SpreadsheetID)
	assert.Equal(t, "Klinik", cfg.Sheets.WorksheetName)
	assert.Equal(t, 10, cfg.Enrichment.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Scraper.LockTTL)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")
	t.Setenv("OTEL_ENABLED", "maybe")
	t.Setenv("OPENAI_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.False(t, cfg.OTEL.Enabled)
	assert.Equal(t, 90*time.Second, cfg.OpenAI.Timeout)
}

func TestLoad_RejectsInvertedEnrichmentDelays(t *testing.T) {
	t.Setenv("ENRICHMENT_MIN_DELAY", "20")
	t.Setenv("ENRICHMENT_MAX_DELAY", "5")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownEnrichmentMode(t *testing.T) {
	t.Setenv("ENRICHMENT_MODE", "carrier-pigeon")

	_, err := Load()
	assert.Error(t, err)
}

func TestDSNAndAddr(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "medisync", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=medisync sslmode=disable", db.DatabaseDSN())

	r := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.RedisAddr())
}
