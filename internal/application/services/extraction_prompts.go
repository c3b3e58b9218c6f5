package services

import (
	"fmt"
	"strings"
)

const extractionSystemPrompt = "You are an expert insurance analyst. Extract structured data from insurance documents. Always respond with valid JSON only."

const classifierSystemPrompt = "You are an insurance plan classifier. Reply with only MEDICAL or CRITICAL_ILLNESS."

const extractionPromptTemplate = `You are an expert insurance analyst. Analyze the following insurance product brochure/document and extract structured information.

IMPORTANT INSTRUCTIONS:
1. Extract ONLY information that is explicitly stated in the document
2. If information is not found, use null for numbers/strings or false for booleans
3. For monetary values, extract the number without currency symbols (e.g., 1000000 not "RM 1,000,000")
4. For coverage limits, look for terms like "annual limit", "yearly limit", "lifetime limit", "overall limit"
5. For room & board, look for "daily room" or "room and board" limits
6. Ages should be integers only
7. Lists should contain specific items mentioned in the document

Return a valid JSON object with the following structure:
{
    "plan_name": "string - official plan name",
    "plan_type": "string - Medical|Life|Critical Illness|Accident",
    "coverage_type": "string - Individual|Family|Group",
    "annual_limit": number or null,
    "lifetime_limit": number or null,
    "room_board_limit": number or null,
    "outpatient_covered": boolean,
    "maternity_covered": boolean,
    "dental_covered": boolean,
    "optical_covered": boolean,
    "mental_health_covered": boolean,
    "covered_conditions": ["list", "of", "covered", "conditions"],
    "excluded_conditions": ["list", "of", "exclusions"],
    "monthly_premium_min": number or null,
    "monthly_premium_max": number or null,
    "deductible": number or null,
    "co_payment_percentage": number (0-100) or null,
    "min_age": integer or null,
    "max_age": integer or null,
    "claim_process": "string description or null"
}

DOCUMENT CONTENT:
---
%s
---

PAGE CONTEXT (from website):
- Plan Name: %s
- Description: %s
- Eligible Age: %s
- Provider: %s

Extract and return ONLY the JSON object, no additional text or explanation.`

const classifierPromptTemplate = `Classify this insurance plan as either "MEDICAL" or "CRITICAL_ILLNESS":

MEDICAL Insurance (hospitalization coverage):
- Pays HOSPITAL BILLS directly
- Medical card / cashless hospital admission
- Room & board / daily hospital benefits
- Surgical, ICU, outpatient coverage
- Plan names usually contain: MediCard, MediValue, MediShield, Medical, Health Protector, Health Direct, Hospital, Baby Shield

CRITICAL_ILLNESS Insurance (lump sum payout):
- Pays LUMP SUM CASH on diagnosis (NOT hospital bills)
- Triggered by diagnosis of: cancer, heart attack, stroke, kidney failure, critical diseases
- Plan names usually contain: Critical Care, Critical Relief, Critical Illness, Early Payout, Multi Cancer

Plan Name: %s
Description: %s

CLASSIFICATION RULE:
- If plan name contains "Critical Care" or "Critical Relief" or "Critical Illness" -> CRITICAL_ILLNESS
- If plan name contains "Medical" or "MediCard" or "MediValue" or "Health Direct" -> MEDICAL
- If uncertain, check if plan pays hospital bills (MEDICAL) or lump sum on diagnosis (CRITICAL_ILLNESS)

Reply with ONLY one word: MEDICAL or CRITICAL_ILLNESS`

// PageContext is what the product page itself says about the plan.
type PageContext struct {
	PlanName     string
	Description  string
	EligibleAge  string
	ProviderName string
}

func buildExtractionPrompt(document string, pc PageContext) string {
	return fmt.Sprintf(extractionPromptTemplate,
		document,
		orDefault(pc.PlanName, "Unknown"),
		orDefault(pc.Description, "Not available"),
		orDefault(pc.EligibleAge, "Not specified"),
		orDefault(pc.ProviderName, "Unknown"),
	)
}

func buildClassifierPrompt(planName, description string) string {
	return fmt.Sprintf(classifierPromptTemplate, planName, description)
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
