package services_test

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medisync/internal/application/services"
	"github.com/zatekoja/medisync/internal/domain/entities"
	"github.com/zatekoja/medisync/internal/domain/providers"
)

const pruBase = "https://pru.example"

func pruTestProvider() entities.ProviderConfig {
	return entities.ProviderConfig{
		Key:                  entities.ProviderPrudential,
		Name:                 "Prudential Malaysia",
		BaseURL:              pruBase,
		ProductsURL:          pruBase + "/medical/",
		ContactPhone:         "1300-88-7288",
		Website:              pruBase,
		ListingNameSelectors: []string{"h3"},
		LinkPatterns:         []*regexp.Regexp{regexp.MustCompile(`^/medical/[a-z-]+/$`)},
		NameSelectors:        []string{"h1"},
		DescriptionSelectors: []string{".intro"},
		AgePatterns:          []*regexp.Regexp{regexp.MustCompile(`(?i)Entry\s+Age[:\s]+([^\n]+)`)},
		PDFSelectors:         []string{"a[href*='.pdf']"},
		ClassifyWithLLM:      true,
	}
}

func pruListingDoc() *fakeDoc {
	return &fakeDoc{html: `<html><body>
		<a href="/medical/pruvalue-med/">PRUValue Med</a>
		<a href="/medical/pruvalue-med-promo/">PRUValue Med promo</a>
		<a href="/medical/prucritical-care/">PRUCritical Care</a>
	</body></html>`}
}

func pruProductDoc(name string, pdf string) *fakeDoc {
	doc := &fakeDoc{
		html:  "<h1>" + name + "</h1><p>Room and board: RM 300</p>",
		body:  name + "\nEntry Age: 15 days - 70 years\n" + strings.Repeat("benefit details ", 40),
		texts: map[string]string{"h1": name, ".intro": "A medical plan that pays hospital bills directly."},
	}
	if pdf != "" {
		doc.elements = map[string][]*fakeElement{"a[href*='.pdf']": {{attrs: map[string]string{"href": pdf}}}}
	}
	return doc
}

func llmForProducts(extraction string) *fakeLLM {
	return &fakeLLM{respond: func(req providers.CompletionRequest) (string, error) {
		if req.ResponseFormat == providers.ResponseFormatText {
			return "MEDICAL", nil
		}
		return extraction, nil
	}}
}

func TestProviderScrapeService_LLMModeEndToEnd(t *testing.T) {
	browser := newFakeBrowser()
	browser.docs[pruBase+"/medical/"] = pruListingDoc()
	browser.docs[pruBase+"/medical/pruvalue-med/"] = pruProductDoc("PRUValue Med", "/docs/pruvalue-med-brochure.pdf")
	browser.docs[pruBase+"/medical/pruvalue-med-promo/"] = pruProductDoc("PRUValue Med", "")
	browser.docs[pruBase+"/medical/prucritical-care/"] = pruProductDoc("PRUCritical Care", "")
	browser.downloads[pruBase+"/docs/pruvalue-med-brochure.pdf"] = []byte("%PDF-1.7")

	llm := llmForProducts(`{"annual_limit": "RM 1,000,000", "min_age": "15 days", "maternity_covered": null}`)
	pdf := &fakePDFExtractor{text: "PRUValue Med brochure " + strings.Repeat("hospital benefits ", 20)}
	delegate := services.NewExtractionDelegate(llm, "", "", pdf)
	svc := services.NewProviderScrapeService(browser, delegate, services.NoopSleeper{}, 0)

	result, err := svc.ScrapeProvider(context.Background(), pruTestProvider(), services.ScrapeModeLLM)
	require.NoError(t, err)

	assert.False(t, result.Failed)
	assert.Equal(t, "Prudential Malaysia", result.ProviderName)
	require.Len(t, result.Plans, 1)
	assert.Equal(t, 1, result.Candidates)

	plan := result.Plans[0]
	assert.Equal(t, "11d0c518-353c-cee0-3591-8eef7f76982e", plan.ID)
	assert.Equal(t, "PRUValue Med", plan.PlanName)
	require.NotNil(t, plan.AnnualLimit)
	assert.Equal(t, 1_000_000.0, *plan.AnnualLimit)
	require.NotNil(t, plan.MinAge)
	assert.Equal(t, 15, *plan.MinAge)
	require.NotNil(t, plan.RoomBoardLimit)
	assert.Equal(t, 300.0, *plan.RoomBoardLimit, "page heuristics fill what the model left out")
	assert.Equal(t, 1, pdf.calls)

	var extractionPrompt string
	for _, req := range llm.requests {
		if req.ResponseFormat == providers.ResponseFormatJSON {
			extractionPrompt = req.UserPrompt
		}
	}
	assert.Contains(t, extractionPrompt, "- Eligible Age: 15 days - 70 years")
	assert.Contains(t, extractionPrompt, "- Provider: Prudential Malaysia")

	require.Len(t, browser.pages, 1)
	assert.True(t, browser.pages[0].closed)
}

func TestProviderScrapeService_ChallengePageMarksBlocked(t *testing.T) {
	browser := newFakeBrowser()
	browser.docs[pruBase+"/medical/"] = pruListingDoc()
	browser.docs[pruBase+"/medical/pruvalue-med/"] = pruProductDoc("PRUValue Med", "")
	browser.docs[pruBase+"/medical/pruvalue-med-promo/"] = &fakeDoc{body: "Our systems have detected unusual traffic from your computer network."}

	delegate := services.NewExtractionDelegate(llmForProducts(`{}`), "", "")
	svc := services.NewProviderScrapeService(browser, delegate, services.NoopSleeper{}, 0)

	result, err := svc.ScrapeProvider(context.Background(), pruTestProvider(), services.ScrapeModeLLM)
	require.NoError(t, err)

	assert.True(t, result.Failed)
	assert.Equal(t, entities.ProviderFailureBlocked, result.FailureReason)
	assert.Len(t, result.Plans, 1, "plans gathered before the challenge are kept")
}

func TestProviderScrapeService_UnreachableListing(t *testing.T) {
	svc := services.NewProviderScrapeService(newFakeBrowser(), nil, services.NoopSleeper{}, 0)

	result, err := svc.ScrapeProvider(context.Background(), pruTestProvider(), services.ScrapeModeHeuristic)
	require.NoError(t, err)

	assert.True(t, result.Failed)
	assert.Equal(t, entities.ProviderFailureUnreachable, result.FailureReason)
	assert.Empty(t, result.Plans)
}

func TestProviderScrapeService_UnauthorizedStopsRun(t *testing.T) {
	browser := newFakeBrowser()
	browser.docs[pruBase+"/medical/"] = pruListingDoc()
	browser.docs[pruBase+"/medical/pruvalue-med/"] = pruProductDoc("PRUValue Med", "")

	llm := &fakeLLM{respond: func(req providers.CompletionRequest) (string, error) {
		return "", providers.ErrLLMUnauthorized
	}}
	svc := services.NewProviderScrapeService(browser, services.NewExtractionDelegate(llm, "", ""), services.NoopSleeper{}, 0)

	_, err := svc.ScrapeProvider(context.Background(), pruTestProvider(), services.ScrapeModeLLM)

	assert.ErrorIs(t, err, providers.ErrLLMUnauthorized)
}

func TestProviderScrapeService_HeuristicMode(t *testing.T) {
	browser := newFakeBrowser()
	browser.docs[pruBase+"/medical/"] = &fakeDoc{
		html:     `<article><a href="/medical/prumy-child-plus/">PRUMy Child</a></article>`,
		elements: map[string][]*fakeElement{"h3": {{text: "PRUValue Med"}, {text: "Read more"}}},
	}
	browser.docs[pruBase+"/medical/prumy-child-plus/"] = &fakeDoc{
		html:  `<h1>PRUMy Child Plus</h1><p>Annual limit: RM 2,000,000</p>`,
		texts: map[string]string{"h1": "PRUMy Child Plus"},
	}
	svc := services.NewProviderScrapeService(browser, nil, services.NoopSleeper{}, 0)

	result, err := svc.ScrapeProvider(context.Background(), pruTestProvider(), services.ScrapeModeHeuristic)
	require.NoError(t, err)

	require.Len(t, result.Plans, 2)
	assert.Equal(t, "PRUValue Med", result.Plans[0].PlanName)
	assert.Nil(t, result.Plans[0].AnnualLimit)
	assert.Equal(t, "PRUMy Child Plus", result.Plans[1].PlanName)
	require.NotNil(t, result.Plans[1].AnnualLimit)
	assert.Equal(t, 2_000_000.0, *result.Plans[1].AnnualLimit)
}
