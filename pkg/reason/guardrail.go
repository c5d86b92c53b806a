// Package reason implements the per-query pipeline: domain guardrail,
// hybrid retrieval, reranking, synthesis, attribution, faithfulness
// scoring, and confidence calculation.
package reason

import (
	"strings"

	"github.com/groundline/groundline/pkg/config"
	"github.com/groundline/groundline/pkg/models"
)

// Guardrail decides whether a query is on-topic for an agent. The
// threshold is intentionally low to favor recall; borderline queries
// still get answered and carry low confidence downstream.
type Guardrail struct {
	cfg config.GuardrailConfig
}

// NewGuardrail creates a Guardrail from configuration.
func NewGuardrail(cfg config.GuardrailConfig) *Guardrail {
	return &Guardrail{cfg: cfg}
}

// Check scores a query against the agent's domain signature and
// prompt profile. All matching operates on lowercased tokens.
func (g *Guardrail) Check(query string, signature []string, profile *models.PromptProfile) models.DomainCheck {
	queryLower := strings.ToLower(query)
	queryWords := strings.Fields(queryLower)

	var bonus float64
	if profile != nil {
		if profile.Domain != "" && strings.Contains(queryLower, strings.ToLower(profile.Domain)) {
			bonus += 3
		}
		for _, sub := range profile.SubDomains {
			if sub != "" && strings.Contains(queryLower, strings.ToLower(sub)) {
				bonus += 2
			}
		}
		for _, kw := range profile.DomainKeywords {
			if kw != "" && strings.Contains(queryLower, strings.ToLower(kw)) {
				bonus += 1.5
			}
		}
	}

	sigTerms := signature
	if len(sigTerms) > g.cfg.SignatureTerms {
		sigTerms = sigTerms[:g.cfg.SignatureTerms]
	}
	lowered := make([]string, len(sigTerms))
	for i, t := range sigTerms {
		lowered[i] = strings.ToLower(t)
	}

	var matches float64
	for _, word := range queryWords {
		if len(word) < 3 {
			continue
		}
		for _, term := range lowered {
			if lcsRatio(word, term) >= g.cfg.FuzzyRatio {
				matches++
				break
			}
			if strings.Contains(term, word) || strings.Contains(word, term) {
				matches += 0.5
				break
			}
		}
	}

	maxPossible := float64(max(1, min(len(queryWords), 10)))
	base := matches / maxPossible
	bonusComponent := min(0.5, bonus*0.1)
	score := min(1.0, base+bonusComponent)
	if bonus >= 1 {
		score = max(score, 0.2)
	}

	return models.DomainCheck{
		InDomain: score >= g.cfg.InDomainThreshold,
		Score:    score,
	}
}

// lcsRatio is the longest-common-subsequence similarity
// 2*LCS(a,b) / (len(a)+len(b)), in [0,1].
func lcsRatio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(rb)]
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}
