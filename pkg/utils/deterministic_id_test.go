package utils

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var uuidShapeRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestGenerateDeterministicID_KnownValues(t *testing.T) {
	assert.Equal(t, "11d0c518-353c-cee0-3591-8eef7f76982e", GenerateDeterministicID("Prudential Malaysia", "PRUValue Med"))
	assert.Equal(t, "bb373099-6174-15c4-5fd7-8cc0eccc3985", GenerateDeterministicID("Klinik Kesihatan Bandar", "Jalan 1, Kuala Lumpur"))
}

func TestGenerateDeterministicID_NormalizesCaseAndWhitespace(t *testing.T) {
	base := GenerateDeterministicID("AIA Malaysia", "A-Plus Health")

	assert.Equal(t, base, GenerateDeterministicID("  aia malaysia ", "A-PLUS HEALTH\t"))
	assert.Equal(t, base, GenerateDeterministicID("AIA MALAYSIA", "a-plus health"))
	assert.Regexp(t, uuidShapeRe, base)
	assert.Len(t, base, 36)
}

func TestGenerateDeterministicID_DistinctInputs(t *testing.T) {
	seen := make(map[string]string)
	providers := []string{"AIA Malaysia", "Prudential Malaysia", "Allianz Malaysia", "Great Eastern Life", "Etiqa Insurance"}
	for _, p := range providers {
		for i := 0; i < 50; i++ {
			name := fmt.Sprintf("Plan %d", i)
			id := GenerateDeterministicID(p, name)
			prev, dup := seen[id]
			assert.False(t, dup, "collision between %s and %s|%s", prev, p, name)
			seen[id] = p + "|" + name
		}
	}
}

func TestGenerateDeterministicID_SeparatorMatters(t *testing.T) {
	assert.NotEqual(t, GenerateDeterministicID("ab", "c"), GenerateDeterministicID("a", "bc"))
}

func TestTitleCaseAndCollapse(t *testing.T) {
	assert.Equal(t, "Smart Medic Shield", TitleCase("smart medic shield"))
	assert.Equal(t, "a b c", CollapseWhitespace("  a \n b\t\tc "))
}
