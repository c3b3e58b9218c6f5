package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zatekoja/medisync/internal/domain/entities"
	"github.com/zatekoja/medisync/internal/domain/providers"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/medisync/pkg/errors"
)

// ScrapeMode selects how plan details are obtained.
type ScrapeMode string

const (
	// ScrapeModeHeuristic harvests names from the listing page and reads details from the DOM only.
	ScrapeModeHeuristic ScrapeMode = "heuristic"
	// ScrapeModeLLM visits every product page and sends brochures or page text to the LLM.
	ScrapeModeLLM ScrapeMode = "llm"
)

const (
	heuristicLoadTimeout   = 30 * time.Second
	listingLoadTimeout     = 60 * time.Second
	productLoadTimeout     = 45 * time.Second
	challengeBodyMaxLength = 5000
)

// Phrases shown by anti-bot interstitials instead of the requested page.
var challengeMarkers = []string{
	"unusual traffic",
	"verify you are human",
	"are you a robot",
	"checking your browser before accessing",
	"attention required! | cloudflare",
	"request unsuccessful. incapsula",
	"access denied",
	"please enable cookies and reload",
}

// ProviderScrapeService is the single scrape engine shared by every provider.
// Provider differences live in entities.ProviderConfig.
type ProviderScrapeService struct {
	browser           providers.BrowserProvider
	delegate          *ExtractionDelegate
	sleeper           Sleeper
	navigationTimeout time.Duration
}

// NewProviderScrapeService creates the engine. delegate may be nil for heuristic runs.
func NewProviderScrapeService(browser providers.BrowserProvider, delegate *ExtractionDelegate, sleeper Sleeper, navigationTimeout time.Duration) *ProviderScrapeService {
	if sleeper == nil {
		sleeper = NewJitterSleeper()
	}
	if navigationTimeout <= 0 {
		navigationTimeout = listingLoadTimeout
	}
	return &ProviderScrapeService{
		browser:           browser,
		delegate:          delegate,
		sleeper:           sleeper,
		navigationTimeout: navigationTimeout,
	}
}

// ScrapeProvider runs one provider. Site problems end up in the result's failure reason;
// the returned error is reserved for conditions that must stop the whole run.
func (s *ProviderScrapeService) ScrapeProvider(ctx context.Context, provider entities.ProviderConfig, mode ScrapeMode) (entities.ProviderScrapeResult, error) {
	ctx, span := observability.StartSpan(ctx, "ProviderScrapeService.ScrapeProvider")
	defer span.End()

	logger := observability.LoggerFromContext(ctx).With().Str("provider", provider.Key).Str("mode", string(mode)).Logger()
	result := entities.ProviderScrapeResult{ProviderKey: provider.Key, ProviderName: provider.Name}

	page, err := s.browser.NewPage(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open browser page")
		markFailed(&result, apperrors.NewExternalError("failed to open browser page", err))
		return result, nil
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close browser page")
		}
	}()

	extractor := NewCandidateExtractor(provider, s.sleeper)

	var plans []entities.InsurancePlan
	var candidates int
	switch mode {
	case ScrapeModeLLM:
		plans, candidates, err = s.scrapeProducts(ctx, page, provider, extractor)
	default:
		plans, candidates, err = s.scrapeListing(ctx, page, provider, extractor)
	}

	result.Plans = plans
	result.Candidates = candidates
	if err != nil {
		if errors.Is(err, providers.ErrLLMUnauthorized) {
			observability.RecordError(span, err)
			return result, err
		}
		markFailed(&result, err)
		logger.Warn().Err(err).Str("reason", string(result.FailureReason)).Int("plans", len(plans)).Msg("provider scrape stopped")
		return result, nil
	}

	logger.Info().Int("candidates", candidates).Int("plans", len(plans)).Msg("provider scrape finished")
	return result, nil
}

// scrapeListing is the lightweight path: names from the listing page plus a few product headings.
func (s *ProviderScrapeService) scrapeListing(ctx context.Context, page providers.Page, provider entities.ProviderConfig, extractor *CandidateExtractor) ([]entities.InsurancePlan, int, error) {
	logger := observability.LoggerFromContext(ctx).With().Str("provider", provider.Key).Logger()

	if err := page.Load(provider.ProductsURL, providers.LoadOptions{WaitUntil: providers.WaitDOMContentLoaded, Timeout: heuristicLoadTimeout}); err != nil {
		return nil, 0, apperrors.NewExternalError("failed to load products page", err)
	}
	if err := s.sleeper.Sleep(ctx, 2*time.Second, 4*time.Second); err != nil {
		return nil, 0, err
	}
	if isChallengePage(page) {
		return nil, 0, apperrors.NewBlockedError("products page returned an anti-bot challenge")
	}

	html, _ := page.HTML()

	var plans []entities.InsurancePlan
	candidates := 0
	for _, name := range extractor.HarvestListingNames(page, html) {
		candidates++
		plan, err := AssemblePlan(AssemblyInput{Provider: provider, PlanName: name, SourceURL: provider.ProductsURL})
		if err != nil {
			logger.Debug().Err(err).Str("plan", name).Msg("listing name rejected")
			continue
		}
		plans = append(plans, *plan)
	}

	for _, link := range extractor.ListingProductLinks(html) {
		if err := s.sleeper.Sleep(ctx, 1*time.Second, 2*time.Second); err != nil {
			return plans, candidates, err
		}
		if err := page.Load(link, providers.LoadOptions{WaitUntil: providers.WaitDOMContentLoaded, Timeout: heuristicLoadTimeout}); err != nil {
			logger.Debug().Err(err).Str("url", link).Msg("failed to load product page")
			continue
		}
		if isChallengePage(page) {
			return plans, candidates, apperrors.NewBlockedError("product page returned an anti-bot challenge")
		}

		heading, ok := page.Text("h1")
		if !ok {
			continue
		}
		name := provider.CleanName(heading)
		if !IsValidPlanName(name) || !extractor.ClaimName(name) {
			continue
		}
		candidates++

		productHTML, _ := page.HTML()
		plan, err := AssemblePlan(AssemblyInput{
			Provider:  provider,
			PlanName:  name,
			SourceURL: link,
			DOM:       ExtractDOMFields(productHTML),
		})
		if err != nil {
			continue
		}
		plans = append(plans, *plan)
	}
	return plans, candidates, nil
}

// scrapeProducts is the full path: expand the listing, visit each product page,
// and combine LLM and DOM fields.
func (s *ProviderScrapeService) scrapeProducts(ctx context.Context, page providers.Page, provider entities.ProviderConfig, extractor *CandidateExtractor) ([]entities.InsurancePlan, int, error) {
	logger := observability.LoggerFromContext(ctx).With().Str("provider", provider.Key).Logger()

	if err := page.Load(provider.ProductsURL, providers.LoadOptions{WaitUntil: providers.WaitDOMContentLoaded, Timeout: s.navigationTimeout}); err != nil {
		return nil, 0, apperrors.NewExternalError("failed to load products page", err)
	}
	if err := s.sleeper.Sleep(ctx, 5*time.Second, 7*time.Second); err != nil {
		return nil, 0, err
	}
	if isChallengePage(page) {
		return nil, 0, apperrors.NewBlockedError("products page returned an anti-bot challenge")
	}

	extractor.AcceptCookies(ctx, page)
	if clicks := extractor.ClickLoadMore(ctx, page); clicks > 0 {
		logger.Info().Int("clicks", clicks).Msg("expanded product listing")
	}
	if err := s.sleeper.Sleep(ctx, 2*time.Second, 3*time.Second); err != nil {
		return nil, 0, err
	}

	html, _ := page.HTML()
	links := extractor.DiscoverLinks(html)
	logger.Info().Int("links", len(links)).Msg("discovered product links")

	var plans []entities.InsurancePlan
	candidates := 0
	for _, link := range links {
		if err := s.sleeper.Sleep(ctx, 2*time.Second, 4*time.Second); err != nil {
			return plans, candidates, err
		}
		if err := page.Load(link, providers.LoadOptions{WaitUntil: providers.WaitDOMContentLoaded, Timeout: productLoadTimeout}); err != nil {
			logger.Warn().Err(err).Str("url", link).Msg("failed to load product page")
			continue
		}
		if err := s.sleeper.Sleep(ctx, 2*time.Second, 3*time.Second); err != nil {
			return plans, candidates, err
		}
		if isChallengePage(page) {
			return plans, candidates, apperrors.NewBlockedError("product page returned an anti-bot challenge")
		}

		plan, err := s.extractProduct(ctx, page, provider, extractor, link)
		if err != nil {
			if errors.Is(err, providers.ErrLLMUnauthorized) {
				return plans, candidates, err
			}
			logger.Debug().Err(err).Str("url", link).Msg("product page skipped")
			continue
		}
		if plan == nil {
			continue
		}
		candidates++
		plans = append(plans, *plan)
	}
	return plans, candidates, nil
}

// extractProduct reads one product page. A nil plan with a nil error means the page was skipped.
func (s *ProviderScrapeService) extractProduct(ctx context.Context, page providers.Page, provider entities.ProviderConfig, extractor *CandidateExtractor, link string) (*entities.InsurancePlan, error) {
	logger := observability.LoggerFromContext(ctx).With().Str("provider", provider.Key).Str("url", link).Logger()

	name, ok := extractor.ReadPlanName(page, link)
	if !ok {
		return nil, apperrors.NewValidationError("no valid plan name on page")
	}
	if extractor.SeenName(name) {
		return nil, nil
	}

	candidate := PlanCandidate{
		ProviderKey: provider.Key,
		PlanName:    name,
		URL:         link,
		Description: extractor.ReadDescription(page),
		Benefits:    extractor.ReadBenefits(page),
	}

	if provider.ClassifyWithLLM {
		medical, err := s.delegate.IsMedicalPlan(ctx, name, candidate.ClassificationText())
		if err != nil {
			return nil, err
		}
		if !medical {
			logger.Info().Str("plan", name).Msg("skipping critical illness plan")
			return nil, nil
		}
	}
	extractor.ClaimName(name)

	candidate.BodyText, _ = page.BodyText()
	candidate.HTML, _ = page.HTML()
	candidate.EligibleAge = extractor.EligibleAge(candidate.BodyText)

	var brochure []byte
	if pdfURL, found := extractor.FindBrochureURL(page, candidate.HTML); found {
		candidate.PDFURL = pdfURL
		if data, ok := page.Download(pdfURL); ok {
			brochure = data
		} else {
			logger.Warn().Str("pdf", pdfURL).Msg("failed to download brochure")
		}
	}

	llmFields, err := s.delegate.Analyze(ctx, brochure, candidate.BodyText, PageContext{
		PlanName:     name,
		Description:  candidate.Description,
		EligibleAge:  candidate.EligibleAge,
		ProviderName: provider.Name,
	})
	if err != nil {
		return nil, err
	}

	return AssemblePlan(AssemblyInput{
		Provider:  provider,
		PlanName:  name,
		SourceURL: link,
		LLM:       llmFields,
		DOM:       ExtractDOMFields(candidate.HTML),
	})
}

func isChallengePage(page providers.Page) bool {
	text, ok := page.BodyText()
	if !ok || utf8.RuneCountInString(text) > challengeBodyMaxLength {
		return false
	}
	return containsAny(strings.ToLower(text), challengeMarkers)
}

func markFailed(result *entities.ProviderScrapeResult, err error) {
	result.Failed = true
	result.Error = err.Error()
	switch {
	case apperrors.IsType(err, apperrors.ErrorTypeBlocked):
		result.FailureReason = entities.ProviderFailureBlocked
	case apperrors.IsType(err, apperrors.ErrorTypeExternal):
		result.FailureReason = entities.ProviderFailureUnreachable
	default:
		result.FailureReason = entities.ProviderFailureUnknown
	}
}
