package reason

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/groundline/groundline/pkg/config"
	"github.com/groundline/groundline/pkg/models"
)

func testGuardrail() *Guardrail {
	return NewGuardrail(config.GuardrailConfig{
		InDomainThreshold: 0.05,
		FuzzyRatio:        0.75,
		SignatureTerms:    100,
	})
}

func cookingProfile() *models.PromptProfile {
	return &models.PromptProfile{
		Domain:         "cooking",
		SubDomains:     []string{"baking"},
		DomainKeywords: []string{"cooking", "recipe", "ingredient", "cook", "kitchen", "meal"},
	}
}

func TestCheck_DomainNameOnlyQueryGetsBonusFloor(t *testing.T) {
	check := testGuardrail().Check("cooking", cookingProfile().DomainKeywords, cookingProfile())
	assert.True(t, check.InDomain)
	assert.GreaterOrEqual(t, check.Score, 0.2)
}

func TestCheck_OffTopicQueryRejected(t *testing.T) {
	check := testGuardrail().Check(
		"How do I configure a BGP router?",
		cookingProfile().DomainKeywords,
		cookingProfile(),
	)
	assert.False(t, check.InDomain)
	assert.Less(t, check.Score, 0.05)
}

func TestCheck_KeywordHitRaisesScore(t *testing.T) {
	check := testGuardrail().Check(
		"What ingredients are in Caesar Salad?",
		cookingProfile().DomainKeywords,
		cookingProfile(),
	)
	assert.True(t, check.InDomain)
	// "ingredients" keyword bonus plus fuzzy signature matches.
	assert.GreaterOrEqual(t, check.Score, 0.2)
}

func TestCheck_NilProfileUsesSignatureOnly(t *testing.T) {
	check := testGuardrail().Check("recipe for soup", []string{"recipe", "soup", "broth"}, nil)
	assert.True(t, check.InDomain)
}

func TestCheck_ScoreCappedAtOne(t *testing.T) {
	p := cookingProfile()
	check := testGuardrail().Check("cooking recipe ingredient cook kitchen meal baking", p.DomainKeywords, p)
	assert.LessOrEqual(t, check.Score, 1.0)
}

func TestLCSRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"recipe", "recipe", 1.0},
		{"recipes", "recipe", 2 * 6.0 / 13},
		{"abc", "xyz", 0},
		{"", "", 1},
		{"a", "", 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, lcsRatio(tt.a, tt.b), 1e-9, "%s vs %s", tt.a, tt.b)
	}
}
