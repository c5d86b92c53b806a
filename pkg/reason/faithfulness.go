package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/groundline/groundline/pkg/config"
	"github.com/groundline/groundline/pkg/llm"
	"github.com/groundline/groundline/pkg/models"
)

// maxClaimAnswerChars truncates the answer sent for claim extraction.
const maxClaimAnswerChars = 2000

// FaithfulnessScorer measures how much of an answer the retrieved
// context actually supports.
type FaithfulnessScorer struct {
	client llm.Client
	cfg    config.FaithfulnessConfig
	logger *slog.Logger
}

// NewFaithfulnessScorer creates a scorer. The client may not be nil.
func NewFaithfulnessScorer(client llm.Client, cfg config.FaithfulnessConfig) *FaithfulnessScorer {
	if client == nil {
		panic("reason.NewFaithfulnessScorer: client is nil")
	}
	return &FaithfulnessScorer{
		client: client,
		cfg:    cfg,
		logger: slog.With("component", "faithfulness"),
	}
}

// Score extracts atomic claims from the answer and verifies each one
// against the context. Verification failures count as supported
// (optimistic) when configured, so provider outages do not zero the
// score.
func (f *FaithfulnessScorer) Score(ctx context.Context, answer, context_ string) models.FaithfulnessResult {
	claims := f.extractClaims(ctx, answer)
	if len(claims) == 0 {
		return models.FaithfulnessResult{Score: 1.0}
	}

	verifyContext := context_
	if len(verifyContext) > f.cfg.ContextChars {
		verifyContext = verifyContext[:f.cfg.ContextChars]
	}

	supported := 0
	var unsupported []string
	for _, claim := range claims {
		ok, err := f.verifyClaim(ctx, claim, verifyContext)
		if err != nil {
			f.logger.Warn("Claim verification failed", "error", err)
			if f.cfg.OptimisticOnError {
				supported++
				continue
			}
		}
		if ok {
			supported++
		} else if err == nil {
			unsupported = append(unsupported, claim)
		}
	}
	if len(unsupported) > f.cfg.MaxReported {
		unsupported = unsupported[:f.cfg.MaxReported]
	}

	score := round3(float64(supported) / float64(len(claims)))
	return models.FaithfulnessResult{
		Score:             score,
		TotalClaims:       len(claims),
		SupportedClaims:   supported,
		UnsupportedClaims: unsupported,
	}
}

func (f *FaithfulnessScorer) extractClaims(ctx context.Context, answer string) []string {
	truncated := answer
	if len(truncated) > maxClaimAnswerChars {
		truncated = truncated[:maxClaimAnswerChars]
	}

	resp, err := f.client.Complete(ctx, llm.Request{
		Kind:   llm.KindFast,
		System: "You extract atomic factual claims from text. Return only a JSON array of short claim strings, nothing else.",
		User: fmt.Sprintf(`Extract the individual factual claims from this answer as a JSON array of strings:

"""
%s
"""`, truncated),
		Temperature: 0,
	})
	if err != nil {
		f.logger.Warn("Claim extraction LLM call failed, falling back to sentence split", "error", err)
		return fallbackClaims(answer, f.cfg.MaxClaims)
	}

	var claims []string
	if err := json.Unmarshal([]byte(extractJSONArray(resp)), &claims); err != nil {
		f.logger.Warn("Claim extraction returned unparseable JSON, falling back to sentence split", "error", err)
		return fallbackClaims(answer, f.cfg.MaxClaims)
	}
	if len(claims) > f.cfg.MaxClaims {
		claims = claims[:f.cfg.MaxClaims]
	}
	return claims
}

func (f *FaithfulnessScorer) verifyClaim(ctx context.Context, claim, context_ string) (bool, error) {
	resp, err := f.client.Complete(ctx, llm.Request{
		Kind:   llm.KindFast,
		System: "You verify claims against provided context. Answer with YES or NO only.",
		User: fmt.Sprintf(`CONTEXT:
%s

CLAIM: %s

Is this claim supported by the context above? Answer YES or NO.`, context_, claim),
		Temperature: 0,
	})
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToUpper(resp), "YES"), nil
}

// QuickScore estimates faithfulness with no LLM calls: the fraction
// of distinct significant answer words found in the context, scaled
// by 1.5 and clamped to [0,1].
func (f *FaithfulnessScorer) QuickScore(answer, context_ string) float64 {
	contextLower := strings.ToLower(context_)
	seen := make(map[string]bool)
	total, found := 0, 0
	for _, word := range strings.Fields(strings.ToLower(answer)) {
		word = strings.Trim(word, ".,!?;:\"'()[]")
		if len(word) <= 4 || seen[word] {
			continue
		}
		seen[word] = true
		total++
		if strings.Contains(contextLower, word) {
			found++
		}
	}
	if total == 0 {
		return 1.0
	}
	return math.Min(1.0, float64(found)/float64(total)*1.5)
}

// fallbackClaims treats substantive sentences as claims when the LLM
// cannot be used.
func fallbackClaims(answer string, maxClaims int) []string {
	var claims []string
	for _, s := range SplitSentences(answer) {
		if len(s) > 20 {
			claims = append(claims, s)
		}
		if len(claims) >= maxClaims {
			break
		}
	}
	return claims
}

// extractJSONArray isolates the first [...] span so chatty responses
// around the array still parse.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
