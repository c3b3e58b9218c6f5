package geolocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/zatekoja/medisync/internal/domain/entities"
	"github.com/zatekoja/medisync/internal/domain/providers"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/medisync/pkg/errors"
)

const (
	googlePlacesBaseURL  = "https://maps.googleapis.com/maps/api/place"
	defaultPlaceCacheTTL = 60 * 60 * 24 * 30
	defaultHTTPTimeout   = 8 * time.Second
	defaultRequestGap    = 150 * time.Millisecond
	detailFields         = "place_id,geometry,formatted_phone_number,international_phone_number,website,opening_hours,rating,user_ratings_total,types"
)

// GooglePlacesEnricher implements ClinicEnricher with the Places text search and details APIs.
type GooglePlacesEnricher struct {
	apiKey     string
	httpClient *http.Client
	cache      providers.CacheProvider
	baseURL    string
	cacheTTL   int
	limiter    *rate.Limiter
}

var _ providers.ClinicEnricher = (*GooglePlacesEnricher)(nil)

// NewGooglePlacesEnricher creates a new Places enricher. cache may be nil.
func NewGooglePlacesEnricher(apiKey string, cache providers.CacheProvider, cacheTTL time.Duration) *GooglePlacesEnricher {
	return NewGooglePlacesEnricherWithOptions(apiKey, cache, cacheTTL, googlePlacesBaseURL, nil)
}

// NewGooglePlacesEnricherWithOptions allows overriding base URL and HTTP client (used for tests).
func NewGooglePlacesEnricherWithOptions(apiKey string, cache providers.CacheProvider, cacheTTL time.Duration, baseURL string, httpClient *http.Client) *GooglePlacesEnricher {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = googlePlacesBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	ttl := int(cacheTTL.Seconds())
	if ttl <= 0 {
		ttl = defaultPlaceCacheTTL
	}
	return &GooglePlacesEnricher{
		apiKey:     apiKey,
		httpClient: httpClient,
		cache:      cache,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		cacheTTL:   ttl,
		limiter:    rate.NewLimiter(rate.Every(defaultRequestGap), 1),
	}
}

// Enrich finds the clinic by text search and reads its details.
// A clinic with no search result yields nil, nil.
func (g *GooglePlacesEnricher) Enrich(ctx context.Context, query entities.ClinicQuery) (*entities.ClinicEnrichment, error) {
	if g.apiKey == "" {
		return nil, apperrors.NewValidationError("google places api key is required")
	}
	text := query.SearchText()
	logger := observability.LoggerFromContext(ctx)

	cacheKey := "clinic:v1:places:" + hashKey(strings.ToLower(text))
	if g.cache != nil {
		if cached, err := g.cache.Get(ctx, cacheKey); err == nil && len(cached) > 0 {
			var enrichment entities.ClinicEnrichment
			if err := json.Unmarshal(cached, &enrichment); err == nil && enrichment.HasData() {
				logger.Debug().Str("clinic", query.Name).Msg("places cache hit")
				return &enrichment, nil
			}
		}
	}

	search, err := g.textSearch(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(search.Results) == 0 {
		return nil, nil
	}
	top := search.Results[0]

	enrichment := &entities.ClinicEnrichment{
		GooglePlaceID: optional(top.PlaceID),
	}
	setCoordinates(enrichment, top.Geometry.Location)

	if top.PlaceID != "" {
		details, err := g.details(ctx, top.PlaceID)
		if err != nil {
			logger.Warn().Err(err).Str("place_id", top.PlaceID).Msg("place details failed, keeping search result")
		} else {
			applyDetails(enrichment, details)
		}
	}

	if g.cache != nil {
		if payload, err := json.Marshal(enrichment); err == nil {
			_ = g.cache.Set(ctx, cacheKey, payload, g.cacheTTL)
		}
	}
	return enrichment, nil
}

func (g *GooglePlacesEnricher) textSearch(ctx context.Context, query string) (*placesTextSearchResponse, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("region", "my")

	var payload placesTextSearchResponse
	if err := g.get(ctx, "/textsearch/json", params, &payload); err != nil {
		return nil, err
	}
	switch payload.Status {
	case "OK", "ZERO_RESULTS":
		return &payload, nil
	default:
		return nil, statusError("places text search", payload.Status, payload.ErrorMessage)
	}
}

func (g *GooglePlacesEnricher) details(ctx context.Context, placeID string) (*placeDetails, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", detailFields)

	var payload placeDetailsResponse
	if err := g.get(ctx, "/details/json", params, &payload); err != nil {
		return nil, err
	}
	if payload.Status != "OK" {
		return nil, statusError("place details", payload.Status, payload.ErrorMessage)
	}
	return &payload.Result, nil
}

func (g *GooglePlacesEnricher) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	params.Set("key", g.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", g.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build places request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return apperrors.NewExternalError("places request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.NewExternalError(fmt.Sprintf("places request returned status %d", resp.StatusCode), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode places response: %w", err)
	}
	return nil
}

// statusError maps quota exhaustion to a blocked error so that the batch stops.
func statusError(call, status, message string) error {
	text := fmt.Sprintf("%s failed: %s", call, status)
	if message != "" {
		text += " - " + message
	}
	if status == "OVER_QUERY_LIMIT" {
		return apperrors.NewBlockedError(text)
	}
	return apperrors.NewExternalError(text, nil)
}

func setCoordinates(e *entities.ClinicEnrichment, loc placesLocation) {
	if loc.Lat == 0 && loc.Lng == 0 {
		return
	}
	lat, lng := loc.Lat, loc.Lng
	e.Latitude = &lat
	e.Longitude = &lng
}

func applyDetails(e *entities.ClinicEnrichment, d *placeDetails) {
	if e.Latitude == nil {
		setCoordinates(e, d.Geometry.Location)
	}
	if phone := firstNonEmpty(d.FormattedPhoneNumber, d.InternationalPhoneNumber); phone != "" {
		e.Phone = &phone
	}
	e.Website = optional(d.Website)
	if d.OpeningHours != nil && len(d.OpeningHours.WeekdayText) > 0 {
		e.OperatingHours = &entities.OperatingHours{WeekdayText: d.OpeningHours.WeekdayText}
	}
	if d.Rating > 0 {
		rating := d.Rating
		e.GoogleRating = &rating
	}
	if d.UserRatingsTotal > 0 {
		count := d.UserRatingsTotal
		e.ReviewCount = &count
	}
	for _, t := range d.Types {
		if t == "point_of_interest" || t == "establishment" {
			continue
		}
		e.Specialties = append(e.Specialties, strings.ReplaceAll(t, "_", " "))
	}
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func hashKey(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

type placesTextSearchResponse struct {
	Status       string                   `json:"status"`
	ErrorMessage string                   `json:"error_message,omitempty"`
	Results      []placesTextSearchResult `json:"results"`
}

type placesTextSearchResult struct {
	FormattedAddress string         `json:"formatted_address"`
	PlaceID          string         `json:"place_id"`
	Name             string         `json:"name"`
	Geometry         placesGeometry `json:"geometry"`
}

type placeDetailsResponse struct {
	Status       string       `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
	Result       placeDetails `json:"result"`
}

type placeDetails struct {
	PlaceID                  string         `json:"place_id"`
	Geometry                 placesGeometry `json:"geometry"`
	FormattedPhoneNumber     string         `json:"formatted_phone_number"`
	InternationalPhoneNumber string         `json:"international_phone_number"`
	Website                  string         `json:"website"`
	OpeningHours             *struct {
		WeekdayText []string `json:"weekday_text"`
	} `json:"opening_hours"`
	Rating           float64  `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	Types            []string `json:"types"`
}

type placesGeometry struct {
	Location placesLocation `json:"location"`
}

type placesLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
