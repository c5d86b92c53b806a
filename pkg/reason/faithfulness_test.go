package reason

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundline/groundline/pkg/config"
)

func faithfulnessConfig() config.FaithfulnessConfig {
	return config.Default().Faithfulness
}

func TestScore_AllClaimsSupported(t *testing.T) {
	client := &scriptedLLM{handlers: []scriptedHandler{
		{match: "Extract the individual factual claims", response: `["Romaine is the base", "Parmesan is grated on top"]`},
		{match: "CLAIM:", response: "YES"},
	}}
	scorer := NewFaithfulnessScorer(client, faithfulnessConfig())

	result := scorer.Score(context.Background(), "Romaine is the base. Parmesan is grated on top.", "romaine lettuce base, grated parmesan")

	assert.Equal(t, 1.0, result.Score)
	assert.Equal(t, 2, result.TotalClaims)
	assert.Equal(t, 2, result.SupportedClaims)
	assert.Empty(t, result.UnsupportedClaims)
}

func TestScore_PartialSupport(t *testing.T) {
	client := &scriptedLLM{handlers: []scriptedHandler{
		{match: "Extract the individual factual claims", response: `["claim one", "claim two", "claim three"]`},
		{match: "CLAIM: claim two", response: "NO"},
		{match: "CLAIM:", response: "YES"},
	}}
	scorer := NewFaithfulnessScorer(client, faithfulnessConfig())

	result := scorer.Score(context.Background(), "Some answer text.", "some context")

	assert.InDelta(t, 0.667, result.Score, 1e-9)
	assert.Equal(t, 3, result.TotalClaims)
	assert.Equal(t, 2, result.SupportedClaims)
	assert.Equal(t, []string{"claim two"}, result.UnsupportedClaims)
}

func TestScore_VerificationErrorIsOptimistic(t *testing.T) {
	client := &scriptedLLM{handlers: []scriptedHandler{
		{match: "Extract the individual factual claims", response: `["claim one", "claim two"]`},
		{match: "CLAIM: claim one", err: errors.New("provider timeout")},
		{match: "CLAIM:", response: "NO"},
	}}
	scorer := NewFaithfulnessScorer(client, faithfulnessConfig())

	result := scorer.Score(context.Background(), "Some answer text.", "some context")

	// Errored claim counts as supported; it is not reported as
	// unsupported either.
	assert.Equal(t, 0.5, result.Score)
	assert.Equal(t, 1, result.SupportedClaims)
	assert.Equal(t, []string{"claim two"}, result.UnsupportedClaims)
}

func TestScore_ExtractionFailureFallsBackToSentences(t *testing.T) {
	client := &scriptedLLM{handlers: []scriptedHandler{
		{match: "Extract the individual factual claims", err: errors.New("provider down")},
		{match: "CLAIM:", response: "YES"},
	}}
	scorer := NewFaithfulnessScorer(client, faithfulnessConfig())

	answer := "This is a long enough claim sentence. Short one. Another sufficiently long claim sentence here."
	result := scorer.Score(context.Background(), answer, "context")

	// Only sentences longer than 20 characters become claims.
	assert.Equal(t, 2, result.TotalClaims)
	assert.Equal(t, 1.0, result.Score)
}

func TestScore_NoClaimsScoresPerfect(t *testing.T) {
	client := &scriptedLLM{handlers: []scriptedHandler{
		{match: "Extract the individual factual claims", response: `[]`},
	}}
	scorer := NewFaithfulnessScorer(client, faithfulnessConfig())

	result := scorer.Score(context.Background(), "Ok.", "context")
	assert.Equal(t, 1.0, result.Score)
	assert.Zero(t, result.TotalClaims)
}

func TestScore_UnsupportedListCapped(t *testing.T) {
	client := &scriptedLLM{handlers: []scriptedHandler{
		{match: "Extract the individual factual claims",
			response: `["c1", "c2", "c3", "c4", "c5", "c6", "c7"]`},
		{match: "CLAIM:", response: "NO"},
	}}
	cfg := faithfulnessConfig()
	cfg.MaxReported = 5
	scorer := NewFaithfulnessScorer(client, cfg)

	result := scorer.Score(context.Background(), "answer", "context")
	assert.Zero(t, result.Score)
	assert.Len(t, result.UnsupportedClaims, 5)
}

func TestExtractClaims_ChattyResponseStillParses(t *testing.T) {
	client := &scriptedLLM{handlers: []scriptedHandler{
		{match: "Extract the individual factual claims",
			response: "Here are the claims:\n[\"only claim\"]\nDone."},
		{match: "CLAIM:", response: "YES"},
	}}
	scorer := NewFaithfulnessScorer(client, faithfulnessConfig())

	result := scorer.Score(context.Background(), "answer", "context")
	require.Equal(t, 1, result.TotalClaims)
	assert.Equal(t, 1.0, result.Score)
}

func TestQuickScore(t *testing.T) {
	scorer := NewFaithfulnessScorer(&scriptedLLM{}, faithfulnessConfig())

	tests := []struct {
		name    string
		answer  string
		context string
		want    float64
	}{
		{"all significant words present", "romaine lettuce parmesan", "fresh romaine lettuce with parmesan shavings", 1.0},
		{"half present scaled", "romaine dessert", "romaine only here", 0.75},
		{"nothing present", "quantum entanglement", "cooking context", 0},
		{"no significant words", "a to the of it", "anything", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scorer.QuickScore(tt.answer, tt.context), 1e-9)
		})
	}
}
