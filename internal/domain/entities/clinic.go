package entities

import (
	"strings"
	"time"
)

// EnrichmentStatus tracks whether a clinic has been looked up on the map service.
type EnrichmentStatus string

const (
	EnrichmentPending  EnrichmentStatus = "pending"
	EnrichmentFailed   EnrichmentStatus = "failed"
	EnrichmentEnriched EnrichmentStatus = "enriched"
)

// Clinic is a row of the clinic_facilities table.
type Clinic struct {
	ID                    string           `json:"id" db:"id"`
	Name                  string           `json:"name" db:"name"`
	FacilityType          string           `json:"facility_type" db:"facility_type"`
	Address               *string          `json:"address" db:"address"`
	City                  *string          `json:"city" db:"city"`
	State                 *string          `json:"state" db:"state"`
	Postcode              *string          `json:"postcode" db:"postcode"`
	Email                 *string          `json:"email" db:"email"`
	Phone                 *string          `json:"phone" db:"phone"`
	Website               *string          `json:"website" db:"website"`
	Latitude              *float64         `json:"latitude" db:"latitude"`
	Longitude             *float64         `json:"longitude" db:"longitude"`
	OperatingHours        *OperatingHours  `json:"operating_hours" db:"operating_hours"`
	Services              []string         `json:"services" db:"services"`
	Specialties           []string         `json:"specialties" db:"specialties"`
	Is24Hours             bool             `json:"is_24_hours" db:"is_24_hours"`
	HasEmergency          *bool            `json:"has_emergency" db:"has_emergency"`
	IsGovernment          bool             `json:"is_government" db:"is_government"`
	IsActive              bool             `json:"is_active" db:"is_active"`
	GooglePlaceID         *string          `json:"google_place_id" db:"google_place_id"`
	GoogleRating          *float64         `json:"google_rating" db:"google_rating"`
	EnrichmentStatus      EnrichmentStatus `json:"enrichment_status" db:"enrichment_status"`
	EnrichmentAttemptedAt *time.Time       `json:"enrichment_attempted_at" db:"enrichment_attempted_at"`
	EnrichmentError       *string          `json:"enrichment_error" db:"enrichment_error"`
	CreatedAt             time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at" db:"updated_at"`
}

// OperatingHours holds the weekday lines shown on a map listing.
type OperatingHours struct {
	WeekdayText []string `json:"weekday_text"`
}

// ClinicSheetRow is one parsed spreadsheet row before transformation.
type ClinicSheetRow struct {
	Number       string `json:"bil"`
	FacilityType string `json:"facility_type"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	Postcode     string `json:"postcode"`
	City         string `json:"city"`
	State        string `json:"state"`
}

// ClinicQuery is the lookup input for an enricher.
type ClinicQuery struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
}

// SearchText joins the non-empty parts into a map search string.
func (q ClinicQuery) SearchText() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{q.Name, q.Address, q.City, q.State} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, "Malaysia")
	return strings.Join(parts, ", ")
}

// ClinicEnrichment carries whatever the map service could tell about a clinic.
type ClinicEnrichment struct {
	Latitude       *float64        `json:"latitude,omitempty"`
	Longitude      *float64        `json:"longitude,omitempty"`
	Phone          *string         `json:"phone,omitempty"`
	Website        *string         `json:"website,omitempty"`
	OperatingHours *OperatingHours `json:"operating_hours,omitempty"`
	GooglePlaceID  *string         `json:"google_place_id,omitempty"`
	GoogleRating   *float64        `json:"google_rating,omitempty"`
	ReviewCount    *int            `json:"review_count,omitempty"`
	Services       []string        `json:"services,omitempty"`
	Specialties    []string        `json:"specialties,omitempty"`
	HasEmergency   *bool           `json:"has_emergency,omitempty"`
}

// HasData reports whether any field was found.
func (e *ClinicEnrichment) HasData() bool {
	if e == nil {
		return false
	}
	return e.Latitude != nil || e.Longitude != nil || e.Phone != nil || e.Website != nil ||
		e.OperatingHours != nil || e.GooglePlaceID != nil || e.GoogleRating != nil ||
		len(e.Services) > 0 || len(e.Specialties) > 0 || e.HasEmergency != nil
}

// ClinicSyncStats summarizes a sheet upsert.
type ClinicSyncStats struct {
	Processed  int `json:"processed"`
	Success    int `json:"success"`
	Errors     int `json:"errors"`
	Duplicates int `json:"duplicates"`
}

// EnrichmentStats summarizes an enrichment batch.
type EnrichmentStats struct {
	Pending  int  `json:"pending"`
	Attempts int  `json:"attempts"`
	Enriched int  `json:"enriched"`
	Failed   int  `json:"failed"`
	Errors   int  `json:"errors"`
	Blocked  bool `json:"blocked"`
}
