package services

import (
	"strings"
	"unicode/utf8"

	"github.com/zatekoja/medisync/internal/domain/entities"
	apperrors "github.com/zatekoja/medisync/pkg/errors"
	"github.com/zatekoja/medisync/pkg/utils"
)

// AssemblyInput carries every source for one plan page.
type AssemblyInput struct {
	Provider  entities.ProviderConfig
	PlanName  string
	SourceURL string
	LLM       entities.PlanFields
	DOM       entities.PlanFields
}

// AssemblePlan merges the sources field by field: LLM, then page heuristics,
// then provider metadata, then the plan and coverage type defaults.
// The plan name always comes from the page so the record id stays stable between runs.
func AssemblePlan(in AssemblyInput) (*entities.InsurancePlan, error) {
	name := utils.CollapseWhitespace(in.PlanName)
	if utf8.RuneCountInString(name) < minURLNameLength {
		return nil, apperrors.NewValidationError("plan name could not be established")
	}
	if strings.TrimSpace(in.Provider.Name) == "" {
		return nil, apperrors.NewValidationError("provider name is required")
	}

	llm, dom := in.LLM, in.DOM

	plan := &entities.InsurancePlan{
		ID:                  utils.GenerateDeterministicID(in.Provider.Name, name),
		ProviderName:        in.Provider.Name,
		PlanName:            name,
		PlanType:            firstNonNil(llm.PlanType, dom.PlanType, stringPtr(entities.PlanTypeMedical)),
		CoverageType:        firstNonNil(llm.CoverageType, dom.CoverageType, stringPtr(entities.CoverageIndividual)),
		AnnualLimit:         nonNegative(firstNonNil(llm.AnnualLimit, dom.AnnualLimit)),
		LifetimeLimit:       nonNegative(firstNonNil(llm.LifetimeLimit, dom.LifetimeLimit)),
		RoomBoardLimit:      nonNegative(firstNonNil(llm.RoomBoardLimit, dom.RoomBoardLimit)),
		OutpatientCovered:   firstNonNil(llm.OutpatientCovered, dom.OutpatientCovered),
		MaternityCovered:    firstNonNil(llm.MaternityCovered, dom.MaternityCovered),
		DentalCovered:       firstNonNil(llm.DentalCovered, dom.DentalCovered),
		OpticalCovered:      firstNonNil(llm.OpticalCovered, dom.OpticalCovered),
		MentalHealthCovered: firstNonNil(llm.MentalHealthCovered, dom.MentalHealthCovered),
		CoveredConditions:   firstList(llm.CoveredConditions, dom.CoveredConditions),
		ExcludedConditions:  firstList(llm.ExcludedConditions, dom.ExcludedConditions),
		PanelHospitals:      firstList(llm.PanelHospitals, dom.PanelHospitals),
		MonthlyPremiumMin:   nonNegative(firstNonNil(llm.MonthlyPremiumMin, dom.MonthlyPremiumMin)),
		MonthlyPremiumMax:   nonNegative(firstNonNil(llm.MonthlyPremiumMax, dom.MonthlyPremiumMax)),
		Deductible:          nonNegative(firstNonNil(llm.Deductible, dom.Deductible)),
		CoPaymentPercentage: percentage(firstNonNil(llm.CoPaymentPercentage, dom.CoPaymentPercentage)),
		MinAge:              llm.MinAge,
		MaxAge:              llm.MaxAge,
		ClaimProcess:        firstNonNil(llm.ClaimProcess, dom.ClaimProcess),
		ContactPhone:        optionalString(in.Provider.ContactPhone),
		Website:             firstNonNil(llm.Website, dom.Website, optionalString(in.SourceURL), optionalString(in.Provider.Website)),
		IsActive:            true,
	}

	if plan.MinAge != nil && plan.MaxAge != nil && *plan.MinAge > *plan.MaxAge {
		plan.MinAge, plan.MaxAge = plan.MaxAge, plan.MinAge
	}
	if plan.MonthlyPremiumMin != nil && plan.MonthlyPremiumMax != nil && *plan.MonthlyPremiumMin > *plan.MonthlyPremiumMax {
		plan.MonthlyPremiumMin, plan.MonthlyPremiumMax = plan.MonthlyPremiumMax, plan.MonthlyPremiumMin
	}
	return plan, nil
}

func firstNonNil[T any](values ...*T) *T {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstList(lists ...[]string) []string {
	for _, l := range lists {
		if l != nil {
			return l
		}
	}
	return nil
}

func nonNegative(v *float64) *float64 {
	if v == nil || *v < 0 {
		return nil
	}
	return v
}

func percentage(v *float64) *float64 {
	if v == nil || *v < 0 || *v > 100 {
		return nil
	}
	return v
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
