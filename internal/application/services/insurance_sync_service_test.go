package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medisync/internal/application/services"
	"github.com/zatekoja/medisync/internal/domain/entities"
	apperrors "github.com/zatekoja/medisync/pkg/errors"
)

func heuristicBrowser() *fakeBrowser {
	browser := newFakeBrowser()
	browser.docs[pruBase+"/medical/"] = &fakeDoc{
		elements: map[string][]*fakeElement{"h3": {{text: "PRUValue Med"}, {text: "PRUMillion Med 2.0"}}},
	}
	return browser
}

func newInsuranceSync(browser *fakeBrowser, repo *memoryPlanRepo, delegate *services.ExtractionDelegate) *services.InsuranceSyncService {
	registry := entities.NewProviderRegistry(pruTestProvider())
	scraper := services.NewProviderScrapeService(browser, delegate, services.NoopSleeper{}, time.Second)
	reconciler := services.NewReconciliationService(repo, nil, nil, services.ReconciliationConfig{})
	return services.NewInsuranceSyncService(registry, scraper, reconciler, delegate, services.NoopSleeper{}, nil, 0, 0)
}

func TestInsuranceSyncService_ProviderKeys(t *testing.T) {
	svc := newInsuranceSync(newFakeBrowser(), newMemoryPlanRepo(), nil)

	assert.Equal(t, []string{entities.ProviderPrudential}, svc.ProviderKeys(services.InsuranceSyncOptions{Mode: services.ScrapeModeHeuristic}))
	assert.Equal(t, entities.LLMSyncOrder, svc.ProviderKeys(services.InsuranceSyncOptions{Mode: services.ScrapeModeLLM}))
	assert.Equal(t, []string{"AIA"}, svc.ProviderKeys(services.InsuranceSyncOptions{Providers: []string{"AIA"}}))
}

func TestInsuranceSyncService_LLMRunNeedsAPIKey(t *testing.T) {
	browser := heuristicBrowser()
	svc := newInsuranceSync(browser, newMemoryPlanRepo(), nil)

	_, err := svc.Run(context.Background(), services.InsuranceSyncOptions{Mode: services.ScrapeModeLLM})

	assert.ErrorIs(t, err, apperrors.ErrMissingAPIKey)
	assert.Empty(t, browser.pages, "no browsing before the key check")
}

func TestInsuranceSyncService_UnknownProvider(t *testing.T) {
	svc := newInsuranceSync(newFakeBrowser(), newMemoryPlanRepo(), nil)

	_, err := svc.ScrapeProvider(context.Background(), "Zurich", services.ScrapeModeHeuristic)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestInsuranceSyncService_RunReconciles(t *testing.T) {
	repo := newMemoryPlanRepo()
	svc := newInsuranceSync(heuristicBrowser(), repo, nil)

	report, err := svc.Run(context.Background(), services.InsuranceSyncOptions{
		Mode:      services.ScrapeModeHeuristic,
		Providers: []string{entities.ProviderPrudential, "Zurich"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 2, report.Stats.TotalScraped)
	assert.Equal(t, 2, report.Stats.New)
	assert.Len(t, repo.plans, 2)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestInsuranceSyncService_DryRunLeavesStoreAlone(t *testing.T) {
	repo := newMemoryPlanRepo()
	svc := newInsuranceSync(heuristicBrowser(), repo, nil)

	report, err := svc.Run(context.Background(), services.InsuranceSyncOptions{
		Mode:   services.ScrapeModeHeuristic,
		DryRun: true,
	})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Stats.TotalScraped)
	assert.Equal(t, 2, report.Stats.ProviderStats[entities.ProviderPrudential])
	assert.Zero(t, report.Stats.New)
	assert.Empty(t, repo.plans)
	assert.Zero(t, repo.inserts)
}

func TestDryRunStats_RecordsFailures(t *testing.T) {
	stats := services.DryRunStats([]entities.ProviderScrapeResult{
		{ProviderKey: entities.ProviderAIA, ProviderName: "AIA Malaysia", Failed: true, FailureReason: entities.ProviderFailureBlocked},
		{ProviderKey: entities.ProviderEtiqa, ProviderName: "Etiqa", Plans: make([]entities.InsurancePlan, 3)},
	})

	assert.Equal(t, 3, stats.TotalScraped)
	assert.Equal(t, entities.ProviderFailureBlocked, stats.ProviderFailures[entities.ProviderAIA])
	assert.Equal(t, 3, stats.ProviderStats[entities.ProviderEtiqa])
}
