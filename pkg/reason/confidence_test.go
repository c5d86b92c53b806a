package reason

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/groundline/groundline/pkg/config"
)

func testCalculator() *ConfidenceCalculator {
	return NewConfidenceCalculator(config.Default().Confidence)
}

func TestNormalizeSimilarity(t *testing.T) {
	c := testCalculator()
	assert.InDelta(t, 0.0, c.NormalizeSimilarity(0), 1e-9)
	// Top hit in both fused lists: 1/61 + 1/62.
	assert.InDelta(t, (1.0/61+1.0/62)*30, c.NormalizeSimilarity(1.0/61+1.0/62), 1e-9)
	assert.Equal(t, 1.0, c.NormalizeSimilarity(0.05))
}

func TestNormalizeRerank(t *testing.T) {
	c := testCalculator()
	assert.Equal(t, 0.5, c.NormalizeRerank(0))
	assert.Equal(t, 1.0, c.NormalizeRerank(10))
	assert.Equal(t, 0.0, c.NormalizeRerank(-10))
	assert.Equal(t, 1.0, c.NormalizeRerank(25))
}

func TestCalibrationComesFromConfig(t *testing.T) {
	cfg := config.Default().Confidence
	cfg.SimilarityScale = 50
	cfg.RerankMin = 0
	cfg.RerankMax = 1
	cfg.OutOfDomain = 0.07
	cfg.NoResults = 0.33
	c := NewConfidenceCalculator(cfg)

	assert.InDelta(t, 0.5, c.NormalizeSimilarity(0.01), 1e-9)
	assert.InDelta(t, 0.5, c.NormalizeRerank(0.5), 1e-9)
	assert.Equal(t, 0.07, c.OutOfDomain())
	assert.Equal(t, 0.33, c.NoResults())
}

func TestCompute(t *testing.T) {
	c := testCalculator()

	tests := []struct {
		name                      string
		sim, rerank, faithfulness float64
		want                      float64
	}{
		// 0.35*0.9 + 0.30*0.8 + 0.25*0.95 + 0.10 = 0.8925, above the
		// high floor already.
		{"strong signals", 0.9, 0.8, 0.95, 0.89},
		// 0.35*0.75 + 0.30*0.1 + 0.25*0.85 + 0.10 = 0.605, floored to
		// 0.75 because sim > 0.7 and faithfulness > 0.8.
		{"high floor applies", 0.75, 0.1, 0.85, 0.75},
		// 0.35*0.2 + 0.30*0.9 + 0.25*1.0 + 0.10 = 0.69, capped at 0.45
		// because sim < 0.3.
		{"low similarity capped", 0.2, 0.9, 1.0, 0.45},
		// All zero: raw 0.10, clamped up to 0.15.
		{"clamp minimum", 0, 0, 0, 0.15},
		// All one: raw 1.0, clamped down to 0.95.
		{"clamp maximum", 1, 1, 1, 0.95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, c.Compute(tt.sim, tt.rerank, tt.faithfulness), 1e-9)
		})
	}
}
