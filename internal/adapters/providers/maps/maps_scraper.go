package maps

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/zatekoja/medisync/internal/domain/entities"
	"github.com/zatekoja/medisync/internal/domain/providers"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/medisync/pkg/errors"
)

const (
	DefaultMapsURL  = "https://www.google.com/maps"
	searchBox       = "input#searchboxinput"
	firstResult     = `div[role="article"]`
	maxServices     = 10
	maxSpecialties  = 5
	clickTimeout    = 3 * time.Second
	navigateTimeout = 30 * time.Second
)

// Sleeper pauses between browser actions.
type Sleeper interface {
	Sleep(ctx context.Context, min, max time.Duration) error
}

var (
	coordPatterns = []*regexp.Regexp{
		regexp.MustCompile(`@(-?\d+\.?\d*),(-?\d+\.?\d*)`),
		regexp.MustCompile(`!3d(-?\d+\.?\d*)!4d(-?\d+\.?\d*)`),
	}
	placeIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`!1s(0x[a-f0-9]+:[a-f0-9]+)`),
		regexp.MustCompile(`(ChIJ[a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`place_id[=:]([a-zA-Z0-9_-]+)`),
	}
	ratingNumber   = regexp.MustCompile(`(\d+[.,]?\d*)`)
	phoneChars     = regexp.MustCompile(`[^\d+\-\s()]+`)
	phoneInLabel   = regexp.MustCompile(`[\d\s+\-()]{8,}`)
	phoneOnly      = regexp.MustCompile(`^[\d\s+\-()]{8,}$`)
	hasDigits      = regexp.MustCompile(`\d{2,}`)
	ratingSelector = []string{"span.F7nice span", "div.F7nice span", "span.ceNzKf", "span.ZkP5Je"}
)

// Scraper implements ClinicEnricher by driving the public maps site.
type Scraper struct {
	browser providers.BrowserProvider
	sleeper Sleeper
	mapsURL string
}

var _ providers.ClinicEnricher = (*Scraper)(nil)

// NewScraper creates a maps scraper. mapsURL defaults to DefaultMapsURL.
func NewScraper(browser providers.BrowserProvider, sleeper Sleeper, mapsURL string) *Scraper {
	if mapsURL == "" {
		mapsURL = DefaultMapsURL
	}
	return &Scraper{browser: browser, sleeper: sleeper, mapsURL: mapsURL}
}

// Enrich searches for the clinic and reads the place panel.
// A challenge page returns a blocked error; an empty panel returns nil, nil.
func (s *Scraper) Enrich(ctx context.Context, q entities.ClinicQuery) (*entities.ClinicEnrichment, error) {
	logger := observability.LoggerFromContext(ctx)

	page, err := s.browser.NewPage(ctx)
	if err != nil {
		return nil, apperrors.NewExternalError("failed to open browser page", err)
	}
	defer page.Close()

	if err := page.Load(s.mapsURL, providers.LoadOptions{WaitUntil: providers.WaitDOMContentLoaded, Timeout: navigateTimeout}); err != nil {
		return nil, apperrors.NewExternalError("failed to open maps", err)
	}
	if err := s.pause(ctx, 1500*time.Millisecond, 2500*time.Millisecond); err != nil {
		return nil, err
	}

	if !page.WaitForSelector(searchBox, 10*time.Second) {
		if html, _ := page.HTML(); IsChallenge(html) {
			return nil, apperrors.NewBlockedError("maps served a captcha page")
		}
		return nil, apperrors.NewExternalError("maps search box not found", nil)
	}
	if err := page.Fill(searchBox, q.SearchText()); err != nil {
		return nil, apperrors.NewExternalError("failed to type search query", err)
	}
	if err := s.pause(ctx, 300*time.Millisecond, 700*time.Millisecond); err != nil {
		return nil, err
	}
	if err := page.Press("Enter"); err != nil {
		return nil, apperrors.NewExternalError("failed to submit search", err)
	}
	if err := s.pause(ctx, 3*time.Second, 5*time.Second); err != nil {
		return nil, err
	}

	html, _ := page.HTML()
	if IsChallenge(html) {
		logger.Warn().Str("clinic", q.Name).Msg("captcha detected on maps")
		return nil, apperrors.NewBlockedError("maps served a captcha page")
	}

	if first, ok := page.FindOne(firstResult); ok {
		if err := first.Click(clickTimeout); err == nil {
			_ = s.pause(ctx, 2*time.Second, 3*time.Second)
		}
	}
	if err := s.pause(ctx, 2*time.Second, 3*time.Second); err != nil {
		return nil, err
	}

	enrichment := s.readPanel(ctx, page)
	if !enrichment.HasData() {
		return nil, nil
	}
	logger.Info().
		Str("clinic", q.Name).
		Bool("coordinates", enrichment.Latitude != nil).
		Bool("phone", enrichment.Phone != nil).
		Bool("hours", enrichment.OperatingHours != nil).
		Int("services", len(enrichment.Services)).
		Msg("scraped clinic from maps")
	return enrichment, nil
}

func (s *Scraper) readPanel(ctx context.Context, page providers.Page) *entities.ClinicEnrichment {
	e := &entities.ClinicEnrichment{}
	current := page.URL()

	if lat, lng, ok := ParseCoordinates(current); ok {
		e.Latitude, e.Longitude = &lat, &lng
	}
	if id, ok := ParsePlaceID(current); ok {
		e.GooglePlaceID = &id
	}
	for _, sel := range ratingSelector {
		if text, ok := page.Text(sel); ok {
			if rating, ok := ParseRating(text); ok {
				e.GoogleRating = &rating
				break
			}
		}
	}
	if phone, ok := extractPhone(page); ok {
		e.Phone = &phone
	}
	if hours := s.extractHours(ctx, page); len(hours) > 0 {
		e.OperatingHours = &entities.OperatingHours{WeekdayText: hours}
	}
	e.Services, e.Specialties = s.extractServices(ctx, page)
	if website, ok := extractWebsite(page); ok {
		e.Website = &website
	}

	if !e.HasData() {
		return e
	}
	if html, _ := page.HTML(); MentionsEmergency(html) {
		yes := true
		e.HasEmergency = &yes
	}
	return e
}

func (s *Scraper) pause(ctx context.Context, min, max time.Duration) error {
	if s.sleeper == nil {
		return ctx.Err()
	}
	return s.sleeper.Sleep(ctx, min, max)
}

// IsChallenge reports an anti-bot interstitial.
func IsChallenge(html string) bool {
	lower := strings.ToLower(html)
	return strings.Contains(lower, "unusual traffic") || strings.Contains(lower, "captcha")
}

// MentionsEmergency reports whether the listing advertises round the clock or emergency care.
func MentionsEmergency(html string) bool {
	lower := strings.ToLower(html)
	return strings.Contains(lower, "24 hour") || strings.Contains(lower, "24-hour") || strings.Contains(lower, "emergency")
}

// ParseCoordinates reads @lat,lng or !3dlat!4dlng from a maps URL.
func ParseCoordinates(url string) (float64, float64, bool) {
	for _, re := range coordPatterns {
		m := re.FindStringSubmatch(url)
		if m == nil {
			continue
		}
		lat, errLat := strconv.ParseFloat(m[1], 64)
		lng, errLng := strconv.ParseFloat(m[2], 64)
		if errLat != nil || errLng != nil {
			continue
		}
		if lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180 {
			return lat, lng, true
		}
	}
	return 0, 0, false
}

// ParsePlaceID reads a place identifier from a maps URL.
func ParsePlaceID(url string) (string, bool) {
	for _, re := range placeIDPatterns {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// ParseRating reads the first number, accepting a decimal comma.
func ParseRating(text string) (float64, bool) {
	m := ratingNumber.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// CleanPhone keeps digits, plus, dash, spaces and parentheses.
func CleanPhone(raw string) (string, bool) {
	raw = strings.ReplaceAll(raw, "phone:tel:", "")
	raw = strings.ReplaceAll(raw, "Phone:", "")
	cleaned := strings.TrimSpace(phoneChars.ReplaceAllString(strings.TrimSpace(raw), ""))
	return cleaned, cleaned != ""
}

func extractPhone(page providers.Page) (string, bool) {
	if el, ok := page.FindOne(`button[data-item-id^="phone:tel"]`); ok {
		if attr, ok := el.Attribute("data-item-id"); ok {
			if phone, ok := CleanPhone(attr); ok {
				return phone, true
			}
		}
	}
	if el, ok := page.FindOne(`button[aria-label*="phone" i]`); ok {
		if label, ok := el.Attribute("aria-label"); ok {
			if m := phoneInLabel.FindString(label); m != "" {
				if phone, ok := CleanPhone(m); ok {
					return phone, true
				}
			}
		}
	}
	for _, el := range page.FindAll(`button[data-tooltip*="phone" i]`) {
		if text, ok := el.Text(); ok && hasDigits.MatchString(text) {
			if phone, ok := CleanPhone(text); ok {
				return phone, true
			}
		}
	}
	for _, el := range page.FindAll(`div[role="region"] button, div.rogA2c`) {
		if text, ok := el.Text(); ok && phoneOnly.MatchString(strings.TrimSpace(text)) {
			if phone, ok := CleanPhone(text); ok {
				return phone, true
			}
		}
	}
	return "", false
}

func (s *Scraper) extractHours(ctx context.Context, page providers.Page) []string {
	for _, sel := range []string{`button[data-item-id="oh"]`, `button[aria-label*="hours" i]`} {
		if el, ok := page.FindOne(sel); ok {
			if err := el.Click(clickTimeout); err == nil {
				_ = s.pause(ctx, 500*time.Millisecond, time.Second)
				break
			}
		}
	}

	for _, sel := range []string{"table.eK4R0e tr", "table.WgFkxc tr", "div.OqCZI", "div.t39EBf", "tr.y0skZc"} {
		var rows []string
		for _, el := range page.FindAll(sel) {
			text, ok := el.Text()
			if !ok {
				continue
			}
			cleaned := strings.TrimSpace(strings.NewReplacer("\t", " ", "\n", " ").Replace(text))
			if len(cleaned) > 3 {
				rows = append(rows, cleaned)
			}
		}
		if len(rows) > 0 {
			return rows
		}
	}

	if el, ok := page.FindOne(`[aria-label*="hour" i]`); ok {
		if label, ok := el.Attribute("aria-label"); ok && len(label) > 10 {
			return []string{label}
		}
	}
	return nil
}

func (s *Scraper) extractServices(ctx context.Context, page providers.Page) ([]string, []string) {
	var specialties []string
	for _, sel := range []string{`button[jsaction*="category"]`, "span.DkEaL", "div.LBgpqf button", "span.mgr77e"} {
		if text, ok := page.Text(sel); ok && len(text) < 100 {
			specialties = append(specialties, text)
			break
		}
	}

	for _, sel := range []string{`button[aria-label*="About"]`, `button[data-tab-id="overview"]`} {
		if el, ok := page.FindOne(sel); ok {
			if err := el.Click(clickTimeout); err == nil {
				_ = s.pause(ctx, 500*time.Millisecond, time.Second)
				break
			}
		}
	}

	var services []string
	seen := map[string]bool{}
	for _, sel := range []string{"div[data-attrid] span", "div.iP2t7d span", "div.LBgpqf div", "li.hfpxzc"} {
		for _, el := range page.FindAll(sel) {
			text, ok := el.Text()
			if !ok || len(text) <= 3 || len(text) >= 100 || seen[text] {
				continue
			}
			seen[text] = true
			services = append(services, text)
		}
		if len(services) > 0 {
			break
		}
	}

	if len(services) > maxServices {
		services = services[:maxServices]
	}
	if len(specialties) > maxSpecialties {
		specialties = specialties[:maxSpecialties]
	}
	return services, specialties
}

func extractWebsite(page providers.Page) (string, bool) {
	for _, sel := range []string{`a[data-item-id^="authority"]`, `a[aria-label*="website" i]`, `a[data-tooltip*="website" i]`} {
		if el, ok := page.FindOne(sel); ok {
			if href, ok := el.Attribute("href"); ok && strings.TrimSpace(href) != "" {
				return strings.TrimSpace(href), true
			}
		}
	}
	return "", false
}
