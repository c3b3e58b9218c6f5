package entities

import (
	"time"
)

// Plan type and coverage defaults applied when no source supplies a value.
const (
	PlanTypeMedical         = "Medical"
	PlanTypeLife            = "Life"
	PlanTypeCriticalIllness = "Critical Illness"
	PlanTypeAccident        = "Accident"

	CoverageIndividual = "Individual"
	CoverageFamily     = "Family"
	CoverageGroup      = "Group"
)

// PlanFields is a partial plan record. A nil field means the source did not state it,
// which is distinct from an explicit false or zero.
type PlanFields struct {
	PlanName            *string  `json:"plan_name,omitempty"`
	PlanType            *string  `json:"plan_type,omitempty"`
	CoverageType        *string  `json:"coverage_type,omitempty"`
	AnnualLimit         *float64 `json:"annual_limit,omitempty"`
	LifetimeLimit       *float64 `json:"lifetime_limit,omitempty"`
	RoomBoardLimit      *float64 `json:"room_board_limit,omitempty"`
	OutpatientCovered   *bool    `json:"outpatient_covered,omitempty"`
	MaternityCovered    *bool    `json:"maternity_covered,omitempty"`
	DentalCovered       *bool    `json:"dental_covered,omitempty"`
	OpticalCovered      *bool    `json:"optical_covered,omitempty"`
	MentalHealthCovered *bool    `json:"mental_health_covered,omitempty"`
	CoveredConditions   []string `json:"covered_conditions,omitempty"`
	ExcludedConditions  []string `json:"excluded_conditions,omitempty"`
	PanelHospitals      []string `json:"panel_hospitals,omitempty"`
	MonthlyPremiumMin   *float64 `json:"monthly_premium_min,omitempty"`
	MonthlyPremiumMax   *float64 `json:"monthly_premium_max,omitempty"`
	Deductible          *float64 `json:"deductible,omitempty"`
	CoPaymentPercentage *float64 `json:"co_payment_percentage,omitempty"`
	MinAge              *int     `json:"min_age,omitempty"`
	MaxAge              *int     `json:"max_age,omitempty"`
	ClaimProcess        *string  `json:"claim_process,omitempty"`
	Website             *string  `json:"website,omitempty"`
}

// IsEmpty reports whether no field was populated.
func (f PlanFields) IsEmpty() bool {
	return f.PlanName == nil && f.PlanType == nil && f.CoverageType == nil &&
		f.AnnualLimit == nil && f.LifetimeLimit == nil && f.RoomBoardLimit == nil &&
		f.OutpatientCovered == nil && f.MaternityCovered == nil && f.DentalCovered == nil &&
		f.OpticalCovered == nil && f.MentalHealthCovered == nil &&
		f.CoveredConditions == nil && f.ExcludedConditions == nil && f.PanelHospitals == nil &&
		f.MonthlyPremiumMin == nil && f.MonthlyPremiumMax == nil && f.Deductible == nil &&
		f.CoPaymentPercentage == nil && f.MinAge == nil && f.MaxAge == nil &&
		f.ClaimProcess == nil && f.Website == nil
}

// InsurancePlan is the stored, normalized plan record.
type InsurancePlan struct {
	ID                  string    `json:"id" db:"id"`
	ProviderName        string    `json:"provider_name" db:"provider_name"`
	PlanName            string    `json:"plan_name" db:"plan_name"`
	PlanType            *string   `json:"plan_type" db:"plan_type"`
	CoverageType        *string   `json:"coverage_type" db:"coverage_type"`
	AnnualLimit         *float64  `json:"annual_limit" db:"annual_limit"`
	LifetimeLimit       *float64  `json:"lifetime_limit" db:"lifetime_limit"`
	RoomBoardLimit      *float64  `json:"room_board_limit" db:"room_board_limit"`
	OutpatientCovered   *bool     `json:"outpatient_covered" db:"outpatient_covered"`
	MaternityCovered    *bool     `json:"maternity_covered" db:"maternity_covered"`
	DentalCovered       *bool     `json:"dental_covered" db:"dental_covered"`
	OpticalCovered      *bool     `json:"optical_covered" db:"optical_covered"`
	MentalHealthCovered *bool     `json:"mental_health_covered" db:"mental_health_covered"`
	CoveredConditions   []string  `json:"covered_conditions" db:"covered_conditions"`
	ExcludedConditions  []string  `json:"excluded_conditions" db:"excluded_conditions"`
	PanelHospitals      []string  `json:"panel_hospitals" db:"panel_hospitals"`
	MonthlyPremiumMin   *float64  `json:"monthly_premium_min" db:"monthly_premium_min"`
	MonthlyPremiumMax   *float64  `json:"monthly_premium_max" db:"monthly_premium_max"`
	Deductible          *float64  `json:"deductible" db:"deductible"`
	CoPaymentPercentage *float64  `json:"co_payment_percentage" db:"co_payment_percentage"`
	MinAge              *int      `json:"min_age" db:"min_age"`
	MaxAge              *int      `json:"max_age" db:"max_age"`
	ClaimProcess        *string   `json:"claim_process" db:"claim_process"`
	ContactPhone        *string   `json:"contact_phone" db:"contact_phone"`
	Website             *string   `json:"website" db:"website"`
	IsActive            bool      `json:"is_active" db:"is_active"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// ProviderFailureReason classifies why a provider contributed no plans.
type ProviderFailureReason string

const (
	ProviderFailureBlocked     ProviderFailureReason = "blocked"
	ProviderFailureUnreachable ProviderFailureReason = "unreachable"
	ProviderFailureLocked      ProviderFailureReason = "locked"
	ProviderFailureUnknown     ProviderFailureReason = "unknown"
)

// ProviderScrapeResult is what one provider scrape hands to reconciliation.
type ProviderScrapeResult struct {
	ProviderKey   string                `json:"provider_key"`
	ProviderName  string                `json:"provider_name"`
	Plans         []InsurancePlan       `json:"plans"`
	Candidates    int                   `json:"candidates"`
	Failed        bool                  `json:"failed"`
	FailureReason ProviderFailureReason `json:"failure_reason,omitempty"`
	Error         string                `json:"error,omitempty"`
}

// SyncStats summarizes one reconciliation run.
type SyncStats struct {
	TotalScraped      int                              `json:"total_scraped"`
	New               int                              `json:"new"`
	Updated           int                              `json:"updated"`
	Unchanged         int                              `json:"unchanged"`
	SkippedDuplicates int                              `json:"skipped_duplicates"`
	Deactivated       int                              `json:"deactivated"`
	Errors            int                              `json:"errors"`
	ProviderStats     map[string]int                   `json:"provider_stats"`
	ProviderFailures  map[string]ProviderFailureReason `json:"provider_failures"`
}

// NewSyncStats returns stats with initialized maps.
func NewSyncStats() *SyncStats {
	return &SyncStats{
		ProviderStats:    make(map[string]int),
		ProviderFailures: make(map[string]ProviderFailureReason),
	}
}

// Merge folds another stats value into s.
func (s *SyncStats) Merge(other *SyncStats) {
	if other == nil {
		return
	}
	s.TotalScraped += other.TotalScraped
	s.New += other.New
	s.Updated += other.Updated
	s.Unchanged += other.Unchanged
	s.SkippedDuplicates += other.SkippedDuplicates
	s.Deactivated += other.Deactivated
	s.Errors += other.Errors
	for k, v := range other.ProviderStats {
		s.ProviderStats[k] += v
	}
	for k, v := range other.ProviderFailures {
		s.ProviderFailures[k] = v
	}
}
