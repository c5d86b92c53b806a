package reason

import (
	"math"

	"github.com/groundline/groundline/pkg/config"
)

// ConfidenceCalculator combines retrieval, rerank, and faithfulness
// signals into one calibrated confidence value. All constants are
// configuration.
type ConfidenceCalculator struct {
	cfg config.ConfidenceConfig
}

// NewConfidenceCalculator creates a calculator from configuration.
func NewConfidenceCalculator(cfg config.ConfidenceConfig) *ConfidenceCalculator {
	return &ConfidenceCalculator{cfg: cfg}
}

// NormalizeSimilarity maps a top RRF score to [0,1] using the
// configured scale.
func (c *ConfidenceCalculator) NormalizeSimilarity(topRRF float64) float64 {
	return clamp(topRRF*c.cfg.SimilarityScale, 0, 1)
}

// NormalizeRerank maps a raw cross-encoder logit onto [0,1] across the
// configured logit range. A degraded reranker must be fed as norm 0.5
// by the caller.
func (c *ConfidenceCalculator) NormalizeRerank(topRerank float64) float64 {
	return clamp((topRerank-c.cfg.RerankMin)/(c.cfg.RerankMax-c.cfg.RerankMin), 0, 1)
}

// OutOfDomain is the canned confidence for queries the guardrail
// rejects.
func (c *ConfidenceCalculator) OutOfDomain() float64 {
	return c.cfg.OutOfDomain
}

// NoResults is the canned confidence for in-domain queries that
// retrieve nothing.
func (c *ConfidenceCalculator) NoResults() float64 {
	return c.cfg.NoResults
}

// Compute produces the final confidence from normalized components.
func (c *ConfidenceCalculator) Compute(normSim, normRerank, faithfulness float64) float64 {
	raw := normSim*c.cfg.SimilarityWeight +
		normRerank*c.cfg.RerankWeight +
		faithfulness*c.cfg.FaithWeight +
		c.cfg.Base

	if normSim > 0.7 && faithfulness > 0.8 {
		raw = math.Max(raw, c.cfg.HighFloor)
	} else if normSim < 0.3 {
		raw = math.Min(raw, c.cfg.LowCap)
	}

	return round2(clamp(raw, c.cfg.ClampMin, c.cfg.ClampMax))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
