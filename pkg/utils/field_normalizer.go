package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Raw values arrive either from decoded LLM JSON (float64, string, bool, []any, nil)
// or from DOM regex captures (string). Every parser returns nil when nothing usable
// is present and never panics.

var (
	moneyNoiseRe    = regexp.MustCompile(`(?i)[RM$,\s]`)
	nonNumericRe    = regexp.MustCompile(`[^0-9.]`)
	firstDecimalRe  = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
	firstIntegerRe  = regexp.MustCompile(`(\d+)`)
	truthyBoolWords = map[string]struct{}{"true": {}, "yes": {}, "1": {}}
)

// ParseMoney converts "RM 1,000,000", "2.5 million" or a bare number into a float.
func ParseMoney(value any) *float64 {
	if f, ok := numericValue(value); ok {
		return &f
	}

	s, ok := value.(string)
	if !ok {
		return nil
	}

	cleaned := moneyNoiseRe.ReplaceAllString(s, "")
	if strings.Contains(strings.ToLower(s), "million") {
		digits := nonNumericRe.ReplaceAllString(cleaned, "")
		if f, ok := parseFiniteFloat(digits); ok {
			f *= 1_000_000
			return &f
		}
	}

	if f, ok := parseFiniteFloat(cleaned); ok {
		return &f
	}
	return nil
}

// ParsePercentage extracts the first decimal number from a string like "20% co-pay".
func ParsePercentage(value any) *float64 {
	if f, ok := numericValue(value); ok {
		return &f
	}

	s, ok := value.(string)
	if !ok {
		return nil
	}

	match := firstDecimalRe.FindString(s)
	if match == "" {
		return nil
	}
	if f, ok := parseFiniteFloat(match); ok {
		return &f
	}
	return nil
}

// ParseInt returns ints unchanged, truncates floats and takes the first digit run of a string.
func ParseInt(value any) *int {
	switch v := value.(type) {
	case int:
		return &v
	case int32:
		i := int(v)
		return &i
	case int64:
		i := int(v)
		return &i
	case float32:
		return truncate(float64(v))
	case float64:
		return truncate(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			n := int(i)
			return &n
		}
		if f, err := v.Float64(); err == nil {
			return truncate(f)
		}
		return nil
	case string:
		match := firstIntegerRe.FindString(v)
		if match == "" {
			return nil
		}
		i, err := strconv.Atoi(match)
		if err != nil {
			return nil
		}
		return &i
	}
	return nil
}

// ParseBool keeps nil as unknown. Strings are true only for true/yes/1.
func ParseBool(value any) *bool {
	if value == nil {
		return nil
	}

	var b bool
	switch v := value.(type) {
	case bool:
		b = v
	case string:
		_, b = truthyBoolWords[strings.ToLower(strings.TrimSpace(v))]
	case float64:
		b = v != 0
	case int:
		b = v != 0
	default:
		b = !isFalsy(v)
	}
	return &b
}

// ParseList accepts only sequences. Items are stringified and empty ones dropped.
func ParseList(value any) []string {
	var items []any
	switch v := value.(type) {
	case []any:
		items = v
	case []string:
		items = make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
	default:
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if isFalsy(item) {
			continue
		}
		if s, ok := item.(string); ok {
			out = append(out, s)
			continue
		}
		if f, ok := item.(float64); ok && f == math.Trunc(f) {
			out = append(out, strconv.FormatInt(int64(f), 10))
			continue
		}
		out = append(out, fmt.Sprint(item))
	}
	return out
}

// ParseString trims a string value; anything else or blank is nil.
func ParseString(value any) *string {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func numericValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func parseFiniteFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func truncate(f float64) *int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	i := int(f)
	return &i
}

func isFalsy(item any) bool {
	switch v := item.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case float64:
		return v == 0
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}
