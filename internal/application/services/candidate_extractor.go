package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/zatekoja/medisync/internal/domain/entities"
	"github.com/zatekoja/medisync/internal/domain/providers"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	"github.com/zatekoja/medisync/pkg/utils"
)

const (
	defaultMaxLoadMoreClicks = 20
	loadMoreClickTimeout     = 5 * time.Second
	networkIdleTimeout       = 5 * time.Second
	genericListingLinkLimit  = 15
	minDescriptionLength     = 30
	minURLNameLength         = 4
	classificationTextLimit  = 1000
)

// Generic or navigational text that shows up in headings but never names a product.
var invalidPlanNamePatterns = []string{
	"health protection", "medical protection", "life protection",
	"click", "read more", "learn more", "find out", "explore",
	"contact us", "about us", "about ", "home", "menu", "login", "register",
	"cookie", "privacy", "terms", "copyright", "footer", "header",
	"navigation", "search", "loading", "error", "submit", "subscribe",
	"today", "logo", "provider", "service company", "welcome",
	"vitality", "customer support", "road ranger", "auto assist",
	"cares", " has ", " we ", "support", "assist", "children &",
	"wellness", "how ", "what ", "why ", "when ", "where ",
	"knowledge hub", "insurance type", "insurance needs", "sign up",
	"sign in", "log in", "get quote", "view more", "view all",
	"download", "brochure", "pdf", "contact", "email", "phone",
	"follow us", "social", "facebook", "twitter", "instagram",
	"linkedin", "youtube", "sdn bhd", "berhad", "holdings",
	"services", "programme", "program", "healthiest", "campaign",
	"news", "article", "blog", "event", "promotion", "offer",
}

// Known product-name prefixes. Short names must start with one of these.
var planNamePrefixes = []string{
	"pru", "aia ", "aia med", "allianz", "great ", "etiqa", "takaful", "medisafe",
	"supreme", "smart", "a-plus", "a-life", "critical", "hospital",
	"i-medik", "medical ez", "mediplus", "med insure", "med ",
	"onemedical", "one medical", "i-med", "ezy", "healthassured",
}

var genericListingLinkSelectors = []string{
	"a[href*='product']",
	"a[href*='health']",
	"a[href*='medical']",
	".product-card a",
	".product-item a",
	"article a",
}

// IsValidPlanName reports whether a heading looks like an insurance product name.
func IsValidPlanName(name string) bool {
	length := utf8.RuneCountInString(name)
	if name == "" || length < 4 || length > 80 {
		return false
	}

	lower := strings.ToLower(strings.TrimSpace(name))
	if hasInvalidPattern(lower) {
		return false
	}

	first, _ := utf8.DecodeRuneInString(name)
	if !unicode.IsLetter(first) {
		return false
	}

	letters := 0
	for _, r := range name {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < 3 {
		return false
	}

	if length < 12 {
		for _, prefix := range planNamePrefixes {
			if strings.HasPrefix(lower, prefix) {
				return true
			}
		}
		return false
	}
	return true
}

func hasInvalidPattern(lower string) bool {
	for _, pattern := range invalidPlanNamePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// PlanNameFromURL derives a title from the last path segment, e.g. /med-insure.html -> Med Insure.
func PlanNameFromURL(link string) string {
	path := link
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		path = u.Path
	}
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	path = strings.TrimSuffix(path, ".html")
	path = strings.ReplaceAll(path, "-", " ")
	return utils.TitleCase(path)
}

// planNameSet deduplicates names case-insensitively within one extractor run.
type planNameSet struct {
	seen map[string]struct{}
}

func newPlanNameSet() *planNameSet {
	return &planNameSet{seen: make(map[string]struct{})}
}

func (s *planNameSet) Has(name string) bool {
	_, ok := s.seen[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Add records name and reports whether it was new.
func (s *planNameSet) Add(name string) bool {
	key := strings.ToLower(strings.TrimSpace(name))
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// PlanCandidate is a product page that produced a valid plan name.
type PlanCandidate struct {
	ProviderKey string
	PlanName    string
	URL         string
	Description string
	Benefits    string
	EligibleAge string
	PDFURL      string
	BodyText    string
	HTML        string
}

// ClassificationText is the description and benefits snippet sent to the plan classifier.
func (c PlanCandidate) ClassificationText() string {
	text := strings.TrimSpace(c.Description + " " + c.Benefits)
	if utf8.RuneCountInString(text) > classificationTextLimit {
		text = string([]rune(text)[:classificationTextLimit])
	}
	return text
}

// CandidateExtractor discovers and reads product pages for one provider run.
// Name dedup is scoped to the extractor instance.
type CandidateExtractor struct {
	cfg     entities.ProviderConfig
	sleeper Sleeper
	names   *planNameSet
}

// NewCandidateExtractor creates an extractor for a single provider scrape.
func NewCandidateExtractor(cfg entities.ProviderConfig, sleeper Sleeper) *CandidateExtractor {
	if sleeper == nil {
		sleeper = NoopSleeper{}
	}
	return &CandidateExtractor{cfg: cfg, sleeper: sleeper, names: newPlanNameSet()}
}

// AcceptCookies clicks a cookie banner button when one is present.
func (e *CandidateExtractor) AcceptCookies(ctx context.Context, page providers.Page) {
	btn, ok := page.FindOne("button:has-text('Accept')")
	if !ok {
		return
	}
	if err := btn.Click(loadMoreClickTimeout); err == nil {
		_ = e.sleeper.Sleep(ctx, 1*time.Second, 2*time.Second)
	}
}

// ClickLoadMore clicks the provider's "show more" control until it disappears,
// stops being visible, fails, or the click ceiling is reached.
func (e *CandidateExtractor) ClickLoadMore(ctx context.Context, page providers.Page) int {
	if e.cfg.LoadMoreSelector == "" {
		return 0
	}
	return ClickLoadMoreUntilGone(ctx, page, e.cfg.LoadMoreSelector, e.cfg.MaxLoadMoreClicks, e.sleeper)
}

// ClickLoadMoreUntilGone is the bounded pagination loop. It always terminates after maxClicks.
func ClickLoadMoreUntilGone(ctx context.Context, page providers.Page, selector string, maxClicks int, sleeper Sleeper) int {
	logger := observability.LoggerFromContext(ctx)
	if maxClicks <= 0 {
		maxClicks = defaultMaxLoadMoreClicks
	}

	clicks := 0
	for clicks < maxClicks {
		if err := sleeper.Sleep(ctx, 1*time.Second, 2*time.Second); err != nil {
			break
		}

		btn, ok := page.FindOne(selector)
		if !ok {
			btn, ok = page.FindOne(fmt.Sprintf("button:has-text('%s')", selector))
		}
		if !ok {
			logger.Debug().Str("selector", selector).Int("clicks", clicks).Msg("load more control not found")
			break
		}
		if !btn.Visible() {
			logger.Debug().Str("selector", selector).Int("clicks", clicks).Msg("load more control hidden")
			break
		}

		btn.ScrollIntoView()
		_ = sleeper.Sleep(ctx, 500*time.Millisecond, 1*time.Second)

		if err := btn.Click(loadMoreClickTimeout); err != nil {
			logger.Warn().Err(err).Str("selector", selector).Msg("load more click failed")
			break
		}
		clicks++

		_ = sleeper.Sleep(ctx, 2*time.Second, 4*time.Second)
		page.WaitForNetworkIdle(networkIdleTimeout)
	}
	return clicks
}

// DiscoverLinks returns product page URLs from the listing markup, filtered and capped.
func (e *CandidateExtractor) DiscoverLinks(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var links []string
	seen := make(map[string]struct{})
	add := func(href string) {
		href = strings.TrimSpace(href)
		if !e.acceptLink(href) {
			return
		}
		abs := e.cfg.AbsoluteURL(href)
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	}

	if len(e.cfg.LinkPatterns) > 0 {
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			href = strings.TrimSpace(href)
			for _, re := range e.cfg.LinkPatterns {
				if re.MatchString(href) {
					add(href)
					return
				}
			}
		})
	}

	for _, selector := range e.cfg.LinkSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if href, ok := s.Attr("href"); ok {
				add(href)
			}
		})
	}

	if e.cfg.LinkLimit > 0 && len(links) > e.cfg.LinkLimit {
		links = links[:e.cfg.LinkLimit]
	}
	return links
}

func (e *CandidateExtractor) acceptLink(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:"} {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	for _, skip := range e.cfg.SkipSubstrings {
		if strings.Contains(lower, strings.ToLower(skip)) {
			return false
		}
	}
	for _, section := range e.cfg.ExcludeSections {
		if strings.Contains(lower, strings.ToLower(section)) {
			return false
		}
	}
	trimmed := strings.TrimRight(lower, "/")
	for _, suffix := range e.cfg.SkipSuffixes {
		if strings.HasSuffix(trimmed, strings.ToLower(suffix)) {
			return false
		}
	}
	for _, required := range e.cfg.RequireSubstrings {
		if !strings.Contains(lower, strings.ToLower(required)) {
			return false
		}
	}
	if e.cfg.SkipQueryLinks && strings.Contains(href, "?") {
		if e.cfg.AllowQueryWith == "" || !strings.Contains(href, e.cfg.AllowQueryWith) {
			return false
		}
	}
	return true
}

// HarvestListingNames collects plan names straight from the listing page headings
// and the provider's name patterns. Names already seen in this run are skipped.
func (e *CandidateExtractor) HarvestListingNames(page providers.Page, html string) []string {
	var names []string
	consider := func(raw string) {
		name := strings.TrimSpace(raw)
		if !IsValidPlanName(name) || e.cfg.RejectsListingName(name) {
			return
		}
		if e.names.Add(name) {
			names = append(names, name)
		}
	}

	for _, selector := range e.cfg.ListingNameSelectors {
		for _, el := range page.FindAll(selector) {
			if text, ok := el.Text(); ok {
				consider(text)
			}
		}
	}

	for _, re := range e.cfg.ListingNamePatterns {
		for _, match := range re.FindAllString(html, -1) {
			consider(match)
		}
	}
	return names
}

// ListingProductLinks finds generic product links on a listing page for the heuristic sync.
func (e *CandidateExtractor) ListingProductLinks(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var links []string
	seen := make(map[string]struct{})
	for _, selector := range genericListingLinkSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			href = strings.TrimSpace(href)
			if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
				return
			}
			abs := e.cfg.AbsoluteURL(href)
			if _, dup := seen[abs]; dup {
				return
			}
			seen[abs] = struct{}{}
			links = append(links, abs)
		})
	}

	if len(links) > genericListingLinkLimit {
		links = links[:genericListingLinkLimit]
	}
	limit := e.cfg.ListingLinkLimit
	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}
	return links
}

// ReadPlanName tries the provider's name selectors, then the URL when allowed.
// URL names skip the length and prefix rules for headings but not the denylist.
func (e *CandidateExtractor) ReadPlanName(page providers.Page, link string) (string, bool) {
	for _, selector := range e.cfg.NameSelectors {
		text, ok := page.Text(selector)
		if !ok {
			continue
		}
		name := e.cfg.CleanName(text)
		if IsValidPlanName(name) {
			return name, true
		}
	}

	if e.cfg.NameFromURL {
		name := PlanNameFromURL(link)
		if utf8.RuneCountInString(name) >= minURLNameLength && !hasInvalidPattern(strings.ToLower(name)) {
			return name, true
		}
	}
	return "", false
}

// SeenName reports whether name was already taken in this run.
func (e *CandidateExtractor) SeenName(name string) bool {
	return e.names.Has(name)
}

// ClaimName marks name as taken and reports whether it was new.
func (e *CandidateExtractor) ClaimName(name string) bool {
	return e.names.Add(name)
}

// ReadDescription returns the first description longer than the minimum, or the first non-empty one.
func (e *CandidateExtractor) ReadDescription(page providers.Page) string {
	fallback := ""
	for _, selector := range e.cfg.DescriptionSelectors {
		text, ok := page.Text(selector)
		if !ok || text == "" {
			continue
		}
		if utf8.RuneCountInString(text) > minDescriptionLength {
			return text
		}
		if fallback == "" {
			fallback = text
		}
	}
	return fallback
}

// ReadBenefits returns the first non-empty benefits block.
func (e *CandidateExtractor) ReadBenefits(page providers.Page) string {
	for _, selector := range e.cfg.BenefitSelectors {
		if text, ok := page.Text(selector); ok && text != "" {
			return text
		}
	}
	return ""
}

// EligibleAge applies the provider's age patterns to the rendered body text.
func (e *CandidateExtractor) EligibleAge(bodyText string) string {
	for _, re := range e.cfg.AgePatterns {
		if m := re.FindStringSubmatch(bodyText); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// FindBrochureURL looks for a brochure link, first via selectors, then in the raw markup.
func (e *CandidateExtractor) FindBrochureURL(page providers.Page, html string) (string, bool) {
	for _, selector := range e.cfg.PDFSelectors {
		el, ok := page.FindOne(selector)
		if !ok {
			continue
		}
		href, ok := el.Attribute("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			continue
		}
		if e.cfg.PDFRequireExtension && !strings.Contains(strings.ToLower(href), ".pdf") {
			continue
		}
		return e.cfg.AbsoluteURL(href), true
	}

	for _, re := range e.cfg.PDFPatterns {
		for _, m := range re.FindAllStringSubmatch(html, -1) {
			if len(m) < 2 || strings.Contains(strings.ToLower(m[1]), "pidm") {
				continue
			}
			return e.cfg.AbsoluteURL(m[1]), true
		}
	}
	return "", false
}
