package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/zatekoja/medisync/internal/domain/entities"
	"github.com/zatekoja/medisync/internal/domain/providers"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	"github.com/zatekoja/medisync/pkg/utils"
)

const (
	minDocumentLength     = 100
	minPageTextLength     = 500
	maxDocumentLength     = 50000
	truncationMarker      = "\n\n[... content truncated ...]"
	extractionTemperature = 0.1
	extractionMaxTokens   = 4000
	classifierMaxTokens   = 20

	defaultExtractionModel = "gpt-4o"
	defaultClassifierModel = "gpt-4o-mini"
)

var (
	criticalIllnessNameMarkers = []string{"critical care", "critical relief", "critical illness"}
	medicalNameMarkers         = []string{"medical", "medicard", "medivalue", "health direct"}
)

// ExtractionDelegate turns brochure or page text into a partial plan record through an LLM.
// Every failure except rejected credentials degrades to an empty record.
type ExtractionDelegate struct {
	llm             providers.LLMProvider
	pdfExtractors   []providers.PDFTextExtractor
	extractionModel string
	classifierModel string
}

// NewExtractionDelegate wires the LLM and an ordered chain of PDF text extractors.
func NewExtractionDelegate(llm providers.LLMProvider, extractionModel, classifierModel string, pdfExtractors ...providers.PDFTextExtractor) *ExtractionDelegate {
	if extractionModel == "" {
		extractionModel = defaultExtractionModel
	}
	if classifierModel == "" {
		classifierModel = defaultClassifierModel
	}
	return &ExtractionDelegate{
		llm:             llm,
		pdfExtractors:   pdfExtractors,
		extractionModel: extractionModel,
		classifierModel: classifierModel,
	}
}

// Enabled reports whether an LLM is configured.
func (d *ExtractionDelegate) Enabled() bool {
	return d != nil && d.llm != nil
}

// Analyze prefers brochure text and falls back to page text above the minimum length.
// The only error returned is providers.ErrLLMUnauthorized.
func (d *ExtractionDelegate) Analyze(ctx context.Context, pdf []byte, pageText string, pc PageContext) (entities.PlanFields, error) {
	logger := observability.LoggerFromContext(ctx)
	if !d.Enabled() {
		return entities.PlanFields{}, nil
	}

	if len(pdf) > 0 {
		if text := d.ExtractPDFText(ctx, pdf); text != "" {
			return d.ExtractFromText(ctx, text, pc)
		}
		logger.Warn().Str("plan", pc.PlanName).Msg("brochure yielded no text, using page content")
	}

	if utf8.RuneCountInString(pageText) > minPageTextLength {
		return d.ExtractFromText(ctx, pageText, pc)
	}
	return entities.PlanFields{}, nil
}

// ExtractPDFText tries each extractor in order until one yields text.
func (d *ExtractionDelegate) ExtractPDFText(ctx context.Context, pdf []byte) string {
	logger := observability.LoggerFromContext(ctx)
	for i, extractor := range d.pdfExtractors {
		text, err := extractor.ExtractText(ctx, pdf)
		if err != nil {
			logger.Warn().Err(err).Int("extractor", i).Msg("pdf text extraction failed")
			continue
		}
		if strings.TrimSpace(text) != "" {
			return text
		}
	}
	return ""
}

// ExtractFromText sends one document to the extraction model and normalizes the answer.
func (d *ExtractionDelegate) ExtractFromText(ctx context.Context, document string, pc PageContext) (entities.PlanFields, error) {
	logger := observability.LoggerFromContext(ctx)

	if !d.Enabled() {
		return entities.PlanFields{}, nil
	}
	if utf8.RuneCountInString(strings.TrimSpace(document)) < minDocumentLength {
		logger.Warn().Str("plan", pc.PlanName).Msg("document content too short or empty")
		return entities.PlanFields{}, nil
	}

	if utf8.RuneCountInString(document) > maxDocumentLength {
		document = string([]rune(document)[:maxDocumentLength]) + truncationMarker
	}

	reply, err := d.llm.Complete(ctx, providers.CompletionRequest{
		Model:          d.extractionModel,
		SystemPrompt:   extractionSystemPrompt,
		UserPrompt:     buildExtractionPrompt(document, pc),
		Temperature:    extractionTemperature,
		MaxTokens:      extractionMaxTokens,
		ResponseFormat: providers.ResponseFormatJSON,
	})
	if err != nil {
		if errors.Is(err, providers.ErrLLMUnauthorized) {
			return entities.PlanFields{}, err
		}
		logger.Error().Err(err).Str("plan", pc.PlanName).Msg("llm analysis failed")
		return entities.PlanFields{}, nil
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(reply), &raw); err != nil {
		logger.Error().Err(err).Str("plan", pc.PlanName).Msg("failed to parse llm response as json")
		return entities.PlanFields{}, nil
	}

	fields := NormalizeExtraction(raw)
	logger.Info().Str("plan", pc.PlanName).Int("chars", utf8.RuneCountInString(document)).Msg("llm extraction complete")
	return fields, nil
}

// NormalizeExtraction maps the model's loosely-typed JSON onto a partial record.
func NormalizeExtraction(raw map[string]any) entities.PlanFields {
	if raw == nil {
		return entities.PlanFields{}
	}
	return entities.PlanFields{
		PlanName:            utils.ParseString(raw["plan_name"]),
		PlanType:            utils.ParseString(raw["plan_type"]),
		CoverageType:        utils.ParseString(raw["coverage_type"]),
		AnnualLimit:         utils.ParseMoney(raw["annual_limit"]),
		LifetimeLimit:       utils.ParseMoney(raw["lifetime_limit"]),
		RoomBoardLimit:      utils.ParseMoney(raw["room_board_limit"]),
		OutpatientCovered:   utils.ParseBool(raw["outpatient_covered"]),
		MaternityCovered:    utils.ParseBool(raw["maternity_covered"]),
		DentalCovered:       utils.ParseBool(raw["dental_covered"]),
		OpticalCovered:      utils.ParseBool(raw["optical_covered"]),
		MentalHealthCovered: utils.ParseBool(raw["mental_health_covered"]),
		CoveredConditions:   utils.ParseList(raw["covered_conditions"]),
		ExcludedConditions:  utils.ParseList(raw["excluded_conditions"]),
		PanelHospitals:      utils.ParseList(raw["panel_hospitals"]),
		MonthlyPremiumMin:   utils.ParseMoney(raw["monthly_premium_min"]),
		MonthlyPremiumMax:   utils.ParseMoney(raw["monthly_premium_max"]),
		Deductible:          utils.ParseMoney(raw["deductible"]),
		CoPaymentPercentage: utils.ParsePercentage(raw["co_payment_percentage"]),
		MinAge:              utils.ParseInt(raw["min_age"]),
		MaxAge:              utils.ParseInt(raw["max_age"]),
		ClaimProcess:        utils.ParseString(raw["claim_process"]),
		Website:             utils.ParseString(raw["website"]),
	}
}

// IsMedicalPlan separates hospitalization plans from critical-illness lump-sum plans.
// Any failure counts as medical.
func (d *ExtractionDelegate) IsMedicalPlan(ctx context.Context, planName, description string) (bool, error) {
	logger := observability.LoggerFromContext(ctx)

	lower := strings.ToLower(planName)
	if containsAny(lower, criticalIllnessNameMarkers) {
		return false, nil
	}
	if containsAny(lower, medicalNameMarkers) {
		return true, nil
	}
	if !d.Enabled() {
		return true, nil
	}

	reply, err := d.llm.Complete(ctx, providers.CompletionRequest{
		Model:          d.classifierModel,
		SystemPrompt:   classifierSystemPrompt,
		UserPrompt:     buildClassifierPrompt(planName, description),
		Temperature:    0,
		MaxTokens:      classifierMaxTokens,
		ResponseFormat: providers.ResponseFormatText,
	})
	if err != nil {
		if errors.Is(err, providers.ErrLLMUnauthorized) {
			return true, err
		}
		logger.Warn().Err(err).Str("plan", planName).Msg("plan classification failed, assuming medical")
		return true, nil
	}

	answer := strings.ToUpper(strings.TrimSpace(reply))
	medical := strings.Contains(answer, "MEDICAL") && !strings.Contains(answer, "CRITICAL")
	logger.Info().Str("plan", planName).Str("answer", answer).Bool("medical", medical).Msg("plan classified")
	return medical, nil
}
