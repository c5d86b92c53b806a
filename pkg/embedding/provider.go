// Package embedding turns text into dense vectors via an
// OpenAI-compatible embeddings endpoint.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/groundline/groundline/pkg/config"
)

// Provider produces fixed-dimension embeddings for text.
type Provider interface {
	// Embed returns one vector per input, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model identifies the embedding model; agents are stamped with it
	// and queries against a mismatched stamp are refused.
	Model() string
	// Dimension is the vector width the model produces.
	Dimension() int
}

// OpenAIProvider calls an OpenAI-compatible /embeddings endpoint
// (TEI, Ollama, or a hosted provider).
type OpenAIProvider struct {
	api       *openai.Client
	model     string
	dimension int
	batchSize int
	cfg       config.EmbeddingConfig
	logger    *slog.Logger
}

// NewOpenAIProvider builds the embedding client from configuration.
// The API key env var may be unset for local endpoints.
func NewOpenAIProvider(cfg config.EmbeddingConfig) *OpenAIProvider {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		key = "unused"
	}
	apiCfg := openai.DefaultConfig(key)
	apiCfg.BaseURL = cfg.BaseURL

	return &OpenAIProvider{
		api:       openai.NewClientWithConfig(apiCfg),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		cfg:       cfg,
		logger:    slog.With("component", "embedding"),
	}
}

func (p *OpenAIProvider) Model() string  { return p.model }
func (p *OpenAIProvider) Dimension() int { return p.dimension }

// Embed returns one vector per input, batching requests to the
// configured batch size.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		batch := texts[start:end]

		resp, err := p.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(p.model),
			Input: batch,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d failed: %w", start, end, err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embedding batch %d-%d: got %d vectors for %d inputs", start, end, len(resp.Data), len(batch))
		}
		for i, d := range resp.Data {
			if len(d.Embedding) != p.dimension {
				return nil, fmt.Errorf("embedding %d: dimension %d, want %d", start+i, len(d.Embedding), p.dimension)
			}
			out = append(out, d.Embedding)
		}
	}
	return out, nil
}
