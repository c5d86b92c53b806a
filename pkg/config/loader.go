package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Start from built-in defaults
//  2. Load groundline.yaml from configDir (optional)
//  3. Expand environment variables ({{.VAR}} template syntax)
//  4. Merge user values over defaults
//  5. Validate the result
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg := Default()

	path := filepath.Join(configDir, "groundline.yaml")
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Info("No groundline.yaml found, using built-in defaults", "path", path)
	case err != nil:
		return nil, NewLoadError("groundline.yaml", err)
	default:
		user := &Config{}
		if err := yaml.Unmarshal(ExpandEnv(data), user); err != nil {
			return nil, NewLoadError("groundline.yaml", fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
		// Non-zero user values override defaults.
		if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
			return nil, NewLoadError("groundline.yaml", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"workers", cfg.Queue.WorkerCount,
		"embedding_model", cfg.Embedding.Model,
		"reranker_enabled", cfg.Reranker.URL != "")

	return cfg, nil
}

func (c *Config) validate() error {
	checks := []struct {
		ok    bool
		field string
		msg   string
	}{
		{c.Queue.WorkerCount > 0, "queue.worker_count", "must be positive"},
		{c.Queue.MaxConcurrentJobs > 0, "queue.max_concurrent_jobs", "must be positive"},
		{c.Embedding.Dimension > 0, "embedding.dimension", "must be positive"},
		{c.Embedding.BatchSize > 0, "embedding.batch_size", "must be positive"},
		{c.Chunker.TargetTokens > 0, "chunker.target_tokens", "must be positive"},
		{c.Retrieval.CandidateLimit > 0, "retrieval.candidate_limit", "must be positive"},
		{c.Retrieval.RRFK > 0, "retrieval.rrf_k", "must be positive"},
		{c.Retrieval.TopK > 0, "retrieval.top_k", "must be positive"},
		{c.Guardrail.FuzzyRatio > 0 && c.Guardrail.FuzzyRatio <= 1, "guardrail.fuzzy_ratio", "must be in (0,1]"},
		{c.Confidence.ClampMin < c.Confidence.ClampMax, "confidence.clamp_min", "must be below clamp_max"},
		{c.Confidence.SimilarityScale > 0, "confidence.similarity_scale", "must be positive"},
		{c.Confidence.RerankMin < c.Confidence.RerankMax, "confidence.rerank_min", "must be below rerank_max"},
		{weightsSane(c.Confidence), "confidence", "weights and base must be non-negative"},
	}
	for _, ch := range checks {
		if !ch.ok {
			return fmt.Errorf("%w: %s %s", ErrInvalidValue, ch.field, ch.msg)
		}
	}
	return nil
}

func weightsSane(c ConfidenceConfig) bool {
	return c.SimilarityWeight >= 0 && c.RerankWeight >= 0 && c.FaithWeight >= 0 && c.Base >= 0
}
