package services

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/zatekoja/medisync/internal/domain/entities"
	"github.com/zatekoja/medisync/pkg/utils"
)

var (
	annualLimitPatterns = []*regexp.Regexp{
		regexp.MustCompile(`annual\s+limit[:\s]+(?:rm\s*)?([0-9,.]+(?:\s*million)?)`),
		regexp.MustCompile(`yearly\s+limit[:\s]+(?:rm\s*)?([0-9,.]+(?:\s*million)?)`),
		regexp.MustCompile(`per\s+year[:\s]+(?:rm\s*)?([0-9,.]+(?:\s*million)?)`),
	}
	lifetimeLimitPatterns = []*regexp.Regexp{
		regexp.MustCompile(`lifetime\s+limit[:\s]+(?:rm\s*)?([0-9,.]+(?:\s*million)?)`),
		regexp.MustCompile(`overall\s+limit[:\s]+(?:rm\s*)?([0-9,.]+(?:\s*million)?)`),
	}
	roomBoardPatterns = []*regexp.Regexp{
		regexp.MustCompile(`room\s*(?:&|and)?\s*board[:\s]+(?:rm\s*)?([0-9,.]+)`),
		regexp.MustCompile(`daily\s+room[:\s]+(?:rm\s*)?([0-9,.]+)`),
	}
)

var (
	outpatientKeywords   = []string{"outpatient", "out-patient", "clinic visit"}
	maternityKeywords    = []string{"maternity", "pregnancy", "childbirth"}
	dentalKeywords       = []string{"dental", "teeth", "orthodontic"}
	opticalKeywords      = []string{"optical", "eye", "vision", "spectacles"}
	mentalHealthKeywords = []string{"mental health", "psychiatric", "psychology"}
)

// ExtractDOMFields runs the keyword and limit heuristics over a product page.
func ExtractDOMFields(html string) entities.PlanFields {
	text := strings.ToLower(PageText(html))
	fields := ExtractCoverage(text)
	limits := ExtractLimits(text)
	fields.AnnualLimit = limits.AnnualLimit
	fields.LifetimeLimit = limits.LifetimeLimit
	fields.RoomBoardLimit = limits.RoomBoardLimit
	return fields
}

// PageText returns the visible text of a document with one space between text nodes.
func PageText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, template").Remove()

	var b strings.Builder
	collectText(doc.Selection, &b)
	return utils.CollapseWhitespace(b.String())
}

func collectText(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		if goquery.NodeName(child) == "#text" {
			if t := strings.TrimSpace(child.Text()); t != "" {
				b.WriteString(t)
				b.WriteByte(' ')
			}
			return
		}
		collectText(child, b)
	})
}

// ExtractCoverage marks benefit categories the text mentions. Unmentioned categories stay nil.
func ExtractCoverage(text string) entities.PlanFields {
	lower := strings.ToLower(text)
	var fields entities.PlanFields

	if containsAny(lower, outpatientKeywords) {
		// A page that says "outpatient" anywhere counts as covering it.
		covered := !strings.Contains(lower, "not covered") || strings.Contains(lower, "outpatient")
		fields.OutpatientCovered = &covered
	}
	if containsAny(lower, maternityKeywords) {
		fields.MaternityCovered = boolPtr(true)
	}
	if containsAny(lower, dentalKeywords) {
		fields.DentalCovered = boolPtr(true)
	}
	if containsAny(lower, opticalKeywords) {
		fields.OpticalCovered = boolPtr(true)
	}
	if containsAny(lower, mentalHealthKeywords) {
		fields.MentalHealthCovered = boolPtr(true)
	}
	return fields
}

// ExtractLimits pulls annual, lifetime and room and board amounts out of the text.
func ExtractLimits(text string) entities.PlanFields {
	lower := strings.ToLower(text)
	return entities.PlanFields{
		AnnualLimit:    firstMoney(lower, annualLimitPatterns),
		LifetimeLimit:  firstMoney(lower, lifetimeLimitPatterns),
		RoomBoardLimit: firstMoney(lower, roomBoardPatterns),
	}
}

func firstMoney(text string, patterns []*regexp.Regexp) *float64 {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			return utils.ParseMoney(m[1])
		}
	}
	return nil
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func boolPtr(b bool) *bool { return &b }

func stringPtr(s string) *string { return &s }
