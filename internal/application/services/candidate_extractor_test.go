package services_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medisync/internal/application/services"
	"github.com/zatekoja/medisync/internal/domain/entities"
)

func TestIsValidPlanName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"allow-listed short prefix", "PRUValue Med", true},
		{"long product name", "A-Plus Health Booster", true},
		{"short with prefix", "A-Life Med", true},
		{"short without prefix", "Our Plans", false},
		{"empty", "", false},
		{"too short", "AIA", false},
		{"too long", "Smart Medical Protection Plan With A Very Long Name That Goes On And On Beyond Limits", false},
		{"navigation text", "Read more about us", false},
		{"company suffix", "Allianz Malaysia Berhad", false},
		{"starts with digit", "2 Shield Plans", false},
		{"denylisted generic heading", "Medical Protection", false},
		{"cookie banner", "Cookie Preferences Centre", false},
		{"too few letters", "A1 23-45 67", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, services.IsValidPlanName(tt.input))
		})
	}
}

func TestPlanNameFromURL(t *testing.T) {
	assert.Equal(t, "A Plus Med Beyond", services.PlanNameFromURL("https://www.aia.com.my/en/our-products/medical-protection/a-plus-med-beyond.html"))
	assert.Equal(t, "Medisafe", services.PlanNameFromURL("https://example.com/products/medisafe/"))
	assert.Equal(t, "Smart Care", services.PlanNameFromURL("https://example.com/p/smart-care.html?src=nav"))
}

func linkTestProvider() entities.ProviderConfig {
	return entities.ProviderConfig{
		Key:               "Test",
		Name:              "Test Insurance",
		BaseURL:           "https://insurer.example",
		LinkPatterns:      []*regexp.Regexp{regexp.MustCompile(`^/products/[a-z-]+\.html$`)},
		LinkSelectors:     []string{".product-card a"},
		SkipSubstrings:    []string{"faq", "claims"},
		SkipQueryLinks:    true,
		RequireSubstrings: []string{"/products/"},
		LinkLimit:         3,
	}
}

func TestCandidateExtractor_DiscoverLinks(t *testing.T) {
	html := `<html><body>
		<a href="/products/smart-med.html">Smart Med</a>
		<a href="/products/faq.html">FAQ</a>
		<a href="/products/smart-med.html">Duplicate</a>
		<a href="/about.html">About</a>
		<div class="product-card"><a href="https://insurer.example/products/card-plan">Card</a></div>
		<div class="product-card"><a href="/products/query-plan?x=1">Query</a></div>
		<div class="product-card"><a href="javascript:void(0)">JS</a></div>
		<a href="/products/claims-guide.html">Claims</a>
	</body></html>`

	ex := services.NewCandidateExtractor(linkTestProvider(), services.NoopSleeper{})
	links := ex.DiscoverLinks(html)

	assert.Equal(t, []string{
		"https://insurer.example/products/smart-med.html",
		"https://insurer.example/products/card-plan",
	}, links)
}

func TestCandidateExtractor_DiscoverLinksRespectsLimit(t *testing.T) {
	html := `<a href="/products/a-plan.html"></a><a href="/products/b-plan.html"></a>
		<a href="/products/c-plan.html"></a><a href="/products/d-plan.html"></a>`

	ex := services.NewCandidateExtractor(linkTestProvider(), services.NoopSleeper{})
	assert.Len(t, ex.DiscoverLinks(html), 3)
}

func TestClickLoadMoreUntilGone_StopsWhenHidden(t *testing.T) {
	button := &fakeElement{visible: true}
	button.onClick = func(el *fakeElement) {
		if el.clicks == 3 {
			el.visible = false
		}
	}
	page := &fakePage{browser: newFakeBrowser(), current: &fakeDoc{
		elements: map[string][]*fakeElement{"#load-more": {button}},
	}}

	clicks := services.ClickLoadMoreUntilGone(context.Background(), page, "#load-more", 20, services.NoopSleeper{})

	assert.Equal(t, 3, clicks)
}

func TestClickLoadMoreUntilGone_TerminatesAtCeiling(t *testing.T) {
	button := &fakeElement{visible: true}
	page := &fakePage{browser: newFakeBrowser(), current: &fakeDoc{
		elements: map[string][]*fakeElement{"#load-more": {button}},
	}}

	clicks := services.ClickLoadMoreUntilGone(context.Background(), page, "#load-more", 5, services.NoopSleeper{})

	assert.Equal(t, 5, clicks)
	assert.Equal(t, 5, button.clicks)
}

func TestClickLoadMoreUntilGone_FallsBackToButtonText(t *testing.T) {
	button := &fakeElement{visible: true}
	button.onClick = func(el *fakeElement) { el.visible = false }
	page := &fakePage{browser: newFakeBrowser(), current: &fakeDoc{
		elements: map[string][]*fakeElement{"button:has-text('Show more')": {button}},
	}}

	clicks := services.ClickLoadMoreUntilGone(context.Background(), page, "Show more", 5, services.NoopSleeper{})

	assert.Equal(t, 1, clicks)
}

func TestClickLoadMoreUntilGone_StopsOnClickError(t *testing.T) {
	button := &fakeElement{visible: true, clickErr: errors.New("element detached")}
	page := &fakePage{browser: newFakeBrowser(), current: &fakeDoc{
		elements: map[string][]*fakeElement{"#load-more": {button}},
	}}

	assert.Equal(t, 0, services.ClickLoadMoreUntilGone(context.Background(), page, "#load-more", 5, services.NoopSleeper{}))
}

func TestClickLoadMoreUntilGone_AbsentControl(t *testing.T) {
	page := &fakePage{browser: newFakeBrowser(), current: &fakeDoc{}}
	assert.Equal(t, 0, services.ClickLoadMoreUntilGone(context.Background(), page, "#load-more", 5, services.NoopSleeper{}))
}

func TestCandidateExtractor_ReadPlanName(t *testing.T) {
	cfg := linkTestProvider()
	cfg.NameSelectors = []string{"h1.title", "h1"}
	cfg.SplitNameOnPipe = true

	t.Run("first valid selector wins", func(t *testing.T) {
		page := &fakePage{current: &fakeDoc{texts: map[string]string{
			"h1.title": "Click here",
			"h1":       "Smart Protect Essential | Great Eastern",
		}}}
		ex := services.NewCandidateExtractor(cfg, nil)
		name, ok := ex.ReadPlanName(page, "https://insurer.example/products/x.html")
		require.True(t, ok)
		assert.Equal(t, "Smart Protect Essential", name)
	})

	t.Run("url fallback when allowed", func(t *testing.T) {
		withURL := cfg
		withURL.NameFromURL = true
		page := &fakePage{current: &fakeDoc{}}
		ex := services.NewCandidateExtractor(withURL, nil)
		name, ok := ex.ReadPlanName(page, "https://insurer.example/products/med-beyond.html")
		require.True(t, ok)
		assert.Equal(t, "Med Beyond", name)
	})

	t.Run("url fallback rejects navigational pages", func(t *testing.T) {
		withURL := cfg
		withURL.NameFromURL = true
		page := &fakePage{current: &fakeDoc{}}
		ex := services.NewCandidateExtractor(withURL, nil)
		for _, link := range []string{
			"https://insurer.example/contact-us.html",
			"https://insurer.example/products/download-brochure/",
			"https://insurer.example/medical/read-more.html",
		} {
			_, ok := ex.ReadPlanName(page, link)
			assert.False(t, ok, link)
		}
	})

	t.Run("no name", func(t *testing.T) {
		page := &fakePage{current: &fakeDoc{}}
		ex := services.NewCandidateExtractor(cfg, nil)
		_, ok := ex.ReadPlanName(page, "https://insurer.example/products/x.html")
		assert.False(t, ok)
	})
}

func TestCandidateExtractor_NameDedupIsCaseInsensitive(t *testing.T) {
	ex := services.NewCandidateExtractor(linkTestProvider(), nil)

	assert.True(t, ex.ClaimName("PRUValue Med"))
	assert.True(t, ex.SeenName("pruvalue med "))
	assert.False(t, ex.ClaimName("PRUVALUE MED"))
}

func TestCandidateExtractor_HarvestListingNames(t *testing.T) {
	cfg := linkTestProvider()
	cfg.ListingNameSelectors = []string{"h3"}
	cfg.ListingNamePatterns = []*regexp.Regexp{regexp.MustCompile(`PRU[A-Za-z]+ [A-Za-z]+`)}
	cfg.ListingNameDeny = []string{"Rider"}

	page := &fakePage{current: &fakeDoc{elements: map[string][]*fakeElement{
		"h3": {{text: "PRUValue Med"}, {text: "Read more"}, {text: "PRUMillion Med Rider"}},
	}}}
	html := `<p>PRUValue Med</p><p>PRUMy Child</p>`

	ex := services.NewCandidateExtractor(cfg, nil)
	names := ex.HarvestListingNames(page, html)

	assert.Equal(t, []string{"PRUValue Med", "PRUMy Child"}, names)
}

func TestCandidateExtractor_ReadDescriptionAndAge(t *testing.T) {
	cfg := linkTestProvider()
	cfg.DescriptionSelectors = []string{".short", ".long"}
	cfg.AgePatterns = []*regexp.Regexp{regexp.MustCompile(`(?i)Entry\s+Age[:\s]+([^\n]+)`)}

	page := &fakePage{current: &fakeDoc{texts: map[string]string{
		".short": "Brief",
		".long":  "A comprehensive medical plan covering hospital bills in full.",
	}}}
	ex := services.NewCandidateExtractor(cfg, nil)

	assert.Equal(t, "A comprehensive medical plan covering hospital bills in full.", ex.ReadDescription(page))
	assert.Equal(t, "15 days - 70 years", ex.EligibleAge("Overview\nEntry Age: 15 days - 70 years\nMore"))
	assert.Empty(t, ex.EligibleAge("nothing here"))
}

func TestCandidateExtractor_FindBrochureURL(t *testing.T) {
	cfg := linkTestProvider()
	cfg.PDFSelectors = []string{"a[href*='brochure']", "a[href*='.pdf']"}
	cfg.PDFRequireExtension = true
	cfg.PDFPatterns = []*regexp.Regexp{regexp.MustCompile(`(/content/dam/[^"']*brochure[^"']*\.pdf)`)}

	t.Run("selector link must be a pdf", func(t *testing.T) {
		page := &fakePage{current: &fakeDoc{elements: map[string][]*fakeElement{
			"a[href*='brochure']": {{attrs: map[string]string{"href": "/brochure-page.html"}}},
			"a[href*='.pdf']":     {{attrs: map[string]string{"href": "/docs/plan.pdf"}}},
		}}}
		ex := services.NewCandidateExtractor(cfg, nil)
		url, ok := ex.FindBrochureURL(page, "")
		require.True(t, ok)
		assert.Equal(t, "https://insurer.example/docs/plan.pdf", url)
	})

	t.Run("markup fallback skips pidm", func(t *testing.T) {
		page := &fakePage{current: &fakeDoc{}}
		html := `<a href="/content/dam/pidm-brochure.pdf"></a><a href="/content/dam/med-brochure.pdf"></a>`
		ex := services.NewCandidateExtractor(cfg, nil)
		url, ok := ex.FindBrochureURL(page, html)
		require.True(t, ok)
		assert.Equal(t, "https://insurer.example/content/dam/med-brochure.pdf", url)
	})

	t.Run("none", func(t *testing.T) {
		ex := services.NewCandidateExtractor(cfg, nil)
		_, ok := ex.FindBrochureURL(&fakePage{current: &fakeDoc{}}, "<p>no links</p>")
		assert.False(t, ok)
	})
}

func TestPlanCandidate_ClassificationText(t *testing.T) {
	long := make([]byte, 1500)
	for i := range long {
		long[i] = 'a'
	}
	c := services.PlanCandidate{Description: string(long), Benefits: "benefits"}
	assert.Len(t, c.ClassificationText(), 1000)
}
