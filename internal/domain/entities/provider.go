package entities

import (
	"regexp"
	"strings"
)

// ProviderConfig describes how one insurer's site is scraped. Values are data; the
// scrape engine is shared by every provider.
type ProviderConfig struct {
	Key          string
	Name         string
	BaseURL      string
	ProductsURL  string
	ContactPhone string
	Website      string

	// Listing page harvest used by the heuristic sync.
	ListingNameSelectors []string
	ListingNamePatterns  []*regexp.Regexp
	ListingNameDeny      []string
	ListingLinkLimit     int

	// Product link discovery used by the LLM sync.
	LoadMoreSelector  string
	MaxLoadMoreClicks int
	LinkPatterns      []*regexp.Regexp
	LinkSelectors     []string
	RequireSubstrings []string
	SkipSubstrings    []string
	SkipSuffixes      []string
	ExcludeSections   []string
	SkipQueryLinks    bool
	AllowQueryWith    string
	LinkLimit         int

	// Product page reads.
	NameSelectors        []string
	NameFromURL          bool
	SplitNameOnPipe      bool
	DescriptionSelectors []string
	BenefitSelectors     []string
	AgePatterns          []*regexp.Regexp
	PDFSelectors         []string
	PDFRequireExtension  bool
	PDFPatterns          []*regexp.Regexp
	ClassifyWithLLM      bool
}

// RejectsListingName applies the provider's denylist to a listing page name.
func (p ProviderConfig) RejectsListingName(name string) bool {
	for _, deny := range p.ListingNameDeny {
		if strings.Contains(name, deny) {
			return true
		}
	}
	// Great Eastern's own brand text shows up in short headings.
	if p.Key == ProviderGreatEastern && strings.Contains(name, "Great Eastern") && len(name) < 20 {
		return true
	}
	return false
}

// CleanName applies provider-specific title cleanup.
func (p ProviderConfig) CleanName(name string) string {
	name = strings.TrimSpace(name)
	if p.SplitNameOnPipe && strings.Contains(name, "|") {
		name = strings.TrimSpace(strings.SplitN(name, "|", 2)[0])
	}
	return name
}

// AbsoluteURL resolves a site-relative href against the provider base URL.
func (p ProviderConfig) AbsoluteURL(href string) string {
	switch {
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return p.BaseURL + href
	default:
		return p.BaseURL + "/" + href
	}
}

// Provider keys.
const (
	ProviderAIA          = "AIA"
	ProviderPrudential   = "Prudential"
	ProviderAllianz      = "Allianz"
	ProviderGreatEastern = "GreatEastern"
	ProviderEtiqa        = "Etiqa"
)

// ProviderRegistry is a read-only set of provider configs.
type ProviderRegistry struct {
	byKey map[string]ProviderConfig
	order []string
}

// NewProviderRegistry builds a registry; order is the heuristic sync order.
func NewProviderRegistry(configs ...ProviderConfig) *ProviderRegistry {
	r := &ProviderRegistry{byKey: make(map[string]ProviderConfig, len(configs))}
	for _, c := range configs {
		if _, dup := r.byKey[c.Key]; !dup {
			r.order = append(r.order, c.Key)
		}
		r.byKey[c.Key] = c
	}
	return r
}

// Get returns a copy of the provider config.
func (r *ProviderRegistry) Get(key string) (ProviderConfig, bool) {
	c, ok := r.byKey[key]
	return c, ok
}

// Keys returns provider keys in registration order.
func (r *ProviderRegistry) Keys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// DisplayName returns the provider's display name, or the key itself when unknown.
func (r *ProviderRegistry) DisplayName(key string) string {
	if c, ok := r.byKey[key]; ok {
		return c.Name
	}
	return key
}

// LLMSyncOrder is the provider order used by the weekly LLM run.
var LLMSyncOrder = []string{ProviderAIA, ProviderAllianz, ProviderGreatEastern, ProviderEtiqa, ProviderPrudential}

var (
	defaultListingSelectors = []string{
		".product-card h2", ".product-card h3", ".product-card .title",
		".product-item h2", ".product-item h3",
		"article h2", "article h3",
		"[class*='product'] h2", "[class*='product'] h3",
		".card h3", ".card h2", ".card-title",
	}
	defaultNameSelectors = []string{
		"h1.cmp-title__text",
		".product-title h1",
		".hero-title h1",
		"h1",
		".product-name",
		"[class*='product-title']",
	}
	defaultPDFSelectors = []string{
		"a[href*='.pdf']",
		"a:has-text('Brochure')",
		"a:has-text('Download')",
	}
	broadAgePattern = regexp.MustCompile(`(?i)(?:entry|eligible|age)[:\s]+(\d+[^.]+)`)
)

// DefaultProviders returns the five Malaysian insurers scraped by the pipelines.
func DefaultProviders() *ProviderRegistry {
	aia := ProviderConfig{
		Key:          ProviderAIA,
		Name:         "AIA Malaysia",
		BaseURL:      "https://www.aia.com.my",
		ProductsURL:  "https://www.aia.com.my/en/our-products/health-protection/medical-protection.html",
		ContactPhone: "1300-88-1318",
		Website:      "https://www.aia.com.my",

		ListingNameSelectors: []string{
			".product-card h2", ".product-card h3", ".product-card .title",
			".product-item h2", ".product-item h3", ".product-item .title",
			"article h2", "article h3",
			"a[href*='health'] span", "a[href*='medical'] span",
			"[class*='product'] h2", "[class*='product'] h3",
			"h2.title", "h3.title",
			".grid-item h3", ".list-item h3",
		},
		ListingNamePatterns: []*regexp.Regexp{
			regexp.MustCompile(`A-(?:Plus|Life)\s+[A-Za-z]+(?:\s+[A-Za-z]+)?`),
			regexp.MustCompile(`AIA\s+(?:Medical|Health|Critical|Voluntary)[A-Za-z\s]*`),
		},
		ListingLinkLimit: 5,

		LoadMoreSelector:  "div.cmp-productfilterlist__more",
		MaxLoadMoreClicks: 15,
		LinkPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^/en/our-products/health-protection/[^"]+\.html$`),
			regexp.MustCompile(`^/en/our-products/life-protection/[^"]+\.html$`),
			regexp.MustCompile(`^/en/our-products/medical-protection/[^"]+\.html$`),
			regexp.MustCompile(`^/en/our-products/critical-illness-protection/[^"]+\.html$`),
		},
		SkipSubstrings: []string{
			"overview.html", "life-protection.html", "medical-protection.html",
			"critical-illness-protection.html", "lady-protection.html",
			"savings-and-investment.html", "retirement-protection.html",
			"health-protection.html", "employee-benefits.html",
		},
		SkipQueryLinks: true,
		LinkLimit:      20,

		NameSelectors: defaultNameSelectors,
		NameFromURL:   true,
		DescriptionSelectors: []string{
			".product-description p",
			".hero-description",
			"article p:first-of-type",
			".product-intro p",
			"main p:first-of-type",
		},
		AgePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Eligible\s+Age[:\s]+([^\n]+)`),
			regexp.MustCompile(`(?i)Entry\s+Age[:\s]+([^\n]+)`),
			regexp.MustCompile(`(?i)(\d+\s*(?:days?|months?|years?)\s*[-]\s*\d+\s*(?:days?|months?|years?)\s*old)`),
		},
		PDFSelectors: []string{
			"a[href*='.pdf']",
			"a[href*='brochure']",
			"a[href*='product-brochure']",
			"a:has-text('Product brochure')",
			"a:has-text('Download brochure')",
			"a:has-text('PDF')",
		},
		PDFPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)href="(/content/dam/my[^"]*product-brochure[^"]*\.pdf)"`),
			regexp.MustCompile(`(?i)href="(/content/dam/my[^"]*brochure[^"]*\.pdf)"`),
			regexp.MustCompile(`(?i)href="(/content/dam/my-wise/[^"]*\.pdf)"`),
		},
	}

	prudential := ProviderConfig{
		Key:          ProviderPrudential,
		Name:         "Prudential Malaysia",
		BaseURL:      "https://www.prudential.com.my",
		ProductsURL:  "https://www.prudential.com.my/en/products-health-insurance/medical-plans/",
		ContactPhone: "1300-88-7288",
		Website:      "https://www.prudential.com.my",

		ListingNameSelectors: defaultListingSelectors,
		ListingNamePatterns: []*regexp.Regexp{
			regexp.MustCompile(`PRU[A-Z][a-zA-Z]+(?:\s+[A-Z][a-z]+)?(?:\s+[A-Z][a-z]+)?`),
			regexp.MustCompile(`Prudential\s+(?:BSN\s+)?[A-Z][a-zA-Z\s]+`),
		},
		ListingNameDeny:  []string{"Prudential plc", "Prudential BSN Takaful"},
		ListingLinkLimit: 5,

		LinkSelectors: []string{
			"[class*='card'] a[href*='/products-riders/']",
			"a[href*='prumillion-med']",
			"a[href*='pruvalue-med']",
			"[class*='card'] a",
		},
		RequireSubstrings: []string{"/products-riders/", "med"},
		SkipSubstrings: []string{
			"/critical-illness", "/life-insurance", "/wealth-insurance",
			"/savings-investment", "newsroom", "announcements",
			"epay.", "partnersweb.", "claims-and-support",
		},
		LinkLimit: 10,

		NameSelectors:        []string{"h1"},
		DescriptionSelectors: []string{".product-description", "article p"},
		AgePatterns:          []*regexp.Regexp{broadAgePattern},
		PDFSelectors: []string{
			"a[href*='.pdf']",
			"a:has-text('Brochure')",
			"a:has-text('Product Summary')",
			"a:has-text('Download')",
		},
		PDFRequireExtension: true,
	}

	allianz := ProviderConfig{
		Key:          ProviderAllianz,
		Name:         "Allianz Malaysia",
		BaseURL:      "https://www.allianz.com.my",
		ProductsURL:  "https://www.allianz.com.my/personal/life-health-and-savings/medical-and-hospitalisation.html",
		ContactPhone: "1300-22-5542",
		Website:      "https://www.allianz.com.my",

		ListingNameSelectors: append(append([]string{}, defaultListingSelectors...), "[data-product] h3", "[data-product] h2"),
		ListingNamePatterns: []*regexp.Regexp{
			regexp.MustCompile(`Allianz\s+(?:Care|Health|Medi|Criti)[A-Za-z]*(?:\s+[A-Za-z]+)?`),
			regexp.MustCompile(`MediSafe\s*(?:Infinite|Plus|Basic)?`),
			regexp.MustCompile(`Hospital\s*(?:&|and)?\s*Surgical(?:\s+[A-Za-z]+)?`),
		},
		ListingNameDeny:  []string{"Allianz Malaysia", "Allianz Customer"},
		ListingLinkLimit: 5,

		LinkPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^/personal/life-health-and-savings/medical-and-hospitalisation/[^"]+\.html$`),
		},
		LinkSelectors:     []string{".product-card a", ".product-tile a", "[class*='product'] a", ".card-body a"},
		RequireSubstrings: []string{"/medical-and-hospitalisation/"},
		SkipSubstrings: []string{
			"medical-and-hospitalisation.html", "life-health-and-savings.html",
			"overview.html", "contact-us.html", "faq.html", "claims",
		},
		ExcludeSections: []string{
			"/life-protection/", "/personal-accident/", "/savings-investments",
			"/critical-illness/", "/help-and-services/", "/a-z-reads/",
		},
		SkipQueryLinks: true,
		LinkLimit:      20,

		NameSelectors:        []string{"h1"},
		DescriptionSelectors: []string{".product-description p", "article p"},
		AgePatterns:          []*regexp.Regexp{regexp.MustCompile(`(?i)(?:entry|eligible)\s+age[:\s]+([^\n]+)`)},
		PDFSelectors: []string{
			"a[href*='.pdf']",
			"a:has-text('Brochure')",
			"a:has-text('Download')",
			"a:has-text('Product Disclosure')",
		},
		PDFRequireExtension: true,
	}

	greatEastern := ProviderConfig{
		Key:          ProviderGreatEastern,
		Name:         "Great Eastern Life",
		BaseURL:      "https://www.greateasternlife.com",
		ProductsURL:  "https://www.greateasternlife.com/my/en/personal-insurance/our-products.html?category=corp-site%3Amy%2Fproduct-category%2Flife-and-health%2Fhealth-insurance&online=&gift=&keyword=",
		ContactPhone: "1300-13-8338",
		Website:      "https://www.greateasternlife.com/my",

		ListingNameSelectors: defaultListingSelectors,
		ListingNamePatterns: []*regexp.Regexp{
			regexp.MustCompile(`GREAT\s+(?:HealthCare|MediCash|Critical|Total|Life)[A-Za-z]*(?:\s+[A-Za-z]+)?`),
			regexp.MustCompile(`Supreme\s+Health(?:\s+[A-Za-z]+)?`),
			regexp.MustCompile(`SmartMedic(?:\s+[A-Za-z]+)?`),
			regexp.MustCompile(`Great\s+(?:Care|Shield|Protect)[A-Za-z]*`),
		},
		ListingLinkLimit: 5,

		LoadMoreSelector:  "#load-more",
		MaxLoadMoreClicks: 20,
		LinkPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^https://www\.greateasternlife\.com/my/en/personal-insurance/our-products/health-insurance/[^"]+$`),
			regexp.MustCompile(`^/my/en/personal-insurance/our-products/health-insurance/[^"]+$`),
		},
		LinkSelectors: []string{
			"a[href*='great-health-direct']",
			"a[href*='great-medivalue']",
			"a[href*='great-medic-lite']",
			"a[href*='smart-health-protector']",
			"a[href*='smart-baby-shield']",
			"a[href*='smartmedic-shield']",
			"a[href*='/health-insurance/great-']",
			"a[href*='/health-insurance/smart-']",
			"a[href*='/health-insurance/'][href$='.html']",
		},
		RequireSubstrings: []string{"/health-insurance/"},
		SkipSubstrings:    []string{"our-products.html", "overview.html", "contact", "health-insurance.html"},
		SkipQueryLinks:    true,
		AllowQueryWith:    "category=",
		LinkLimit:         25,

		NameSelectors:        []string{"h1"},
		SplitNameOnPipe:      true,
		DescriptionSelectors: []string{".product-description", "article p"},
		BenefitSelectors:     []string{"[class*='benefit']", "[class*='feature']"},
		AgePatterns:          []*regexp.Regexp{broadAgePattern},
		PDFSelectors:         defaultPDFSelectors,
		PDFRequireExtension:  true,
		ClassifyWithLLM:      true,
	}

	etiqa := ProviderConfig{
		Key:          ProviderEtiqa,
		Name:         "Etiqa Insurance",
		BaseURL:      "https://www.etiqa.com.my",
		ProductsURL:  "https://www.etiqa.com.my/health",
		ContactPhone: "1300-13-8888",
		Website:      "https://www.etiqa.com.my",

		ListingNameSelectors: defaultListingSelectors,
		ListingNamePatterns: []*regexp.Regexp{
			regexp.MustCompile(`Medical\s+EZ(?:\s+[A-Za-z]+)?`),
			regexp.MustCompile(`Takaful\s+Medi[A-Za-z]+(?:\s+[A-Za-z]+)?`),
			regexp.MustCompile(`Etiqa\s+(?:Health|Family|Critical|Medi)[A-Za-z]*(?:\s+[A-Za-z]+)?`),
			regexp.MustCompile(`i-Medik(?:\s+[A-Za-z]+)?`),
		},
		ListingNameDeny:  []string{"Etiqa Insurance", "Etiqa today"},
		ListingLinkLimit: 5,

		LinkPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^/health/[^"]+$`),
			regexp.MustCompile(`^/v2/health/[^"]+$`),
			regexp.MustCompile(`^/medical[^"]*$`),
			regexp.MustCompile(`^https://www\.etiqa\.com\.my/[^"]*health[^"]*$`),
		},
		LinkSelectors:  []string{".product-card a", ".plan-card a", "[class*='product'] a", "[class*='plan'] a"},
		SkipSubstrings: []string{"contact", "faq", "claim"},
		SkipSuffixes:   []string{"/health"},
		LinkLimit:      20,

		NameSelectors:        []string{"h1"},
		DescriptionSelectors: []string{".product-description", ".hero-description"},
		BenefitSelectors:     []string{"[class*='benefit']", "[class*='feature']"},
		AgePatterns:          []*regexp.Regexp{broadAgePattern},
		PDFSelectors:         defaultPDFSelectors,
		PDFRequireExtension:  true,
		ClassifyWithLLM:      true,
	}

	return NewProviderRegistry(aia, prudential, allianz, greatEastern, etiqa)
}
