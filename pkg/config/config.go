package config

import "time"

// Config is the fully resolved runtime configuration. Built from
// defaults merged with an optional groundline.yaml; every calibration
// constant of the retrieval and scoring pipeline lives here so
// deployments can tune them without a rebuild.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Queue        *QueueConfig       `yaml:"queue"`
	LLM          LLMConfig          `yaml:"llm"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Reranker     RerankerConfig     `yaml:"reranker"`
	Chunker      ChunkerConfig      `yaml:"chunker"`
	Sufficiency  SufficiencyConfig  `yaml:"sufficiency"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Guardrail    GuardrailConfig    `yaml:"guardrail"`
	Faithfulness FaithfulnessConfig `yaml:"faithfulness"`
	Confidence   ConfidenceConfig   `yaml:"confidence"`
	Artifacts    ArtifactsConfig    `yaml:"artifacts"`
}

// ServerConfig holds HTTP surface settings.
type ServerConfig struct {
	// AllowedWSOrigins are extra origin patterns accepted for the
	// progress websocket, in addition to the request host.
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
	// DefaultTenant is the tenant assumed when the X-Tenant-ID header
	// is absent.
	DefaultTenant string `yaml:"default_tenant"`
	// MaxUploadBytes caps the multipart body on agent creation.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// LLMConfig configures the OpenAI-compatible chat provider.
type LLMConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	// Model kinds: chat is the workhorse, advanced handles synthesis,
	// fast handles claim verification, vision and whisper back the
	// multimodal chat adapter.
	ChatModel     string        `yaml:"chat_model"`
	AdvancedModel string        `yaml:"advanced_model"`
	FastModel     string        `yaml:"fast_model"`
	VisionModel   string        `yaml:"vision_model"`
	WhisperModel  string        `yaml:"whisper_model"`
	Timeout       time.Duration `yaml:"timeout"`
}

// EmbeddingConfig configures the OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RerankerConfig configures the cross-encoder HTTP service.
// An empty URL or any request failure puts retrieval in degraded mode.
type RerankerConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ChunkerConfig controls unstructured text chunking.
type ChunkerConfig struct {
	TargetTokens int `yaml:"target_tokens"`
}

// SufficiencyConfig holds the knowledge sufficiency thresholds.
// A source set passes when it reaches MinEntries entries OR MinChars
// characters, with no parse failures and no empty sources.
type SufficiencyConfig struct {
	MinEntries int `yaml:"min_entries"`
	MinChars   int `yaml:"min_chars"`
}

// RetrievalConfig controls hybrid search and fusion.
type RetrievalConfig struct {
	// CandidateLimit is the per-list (dense, sparse) fetch size,
	// conventionally 2×TopK.
	CandidateLimit int `yaml:"candidate_limit"`
	// RRFK is the reciprocal-rank-fusion constant: score += 1/(k+rank).
	RRFK int `yaml:"rrf_k"`
	// TopK is how many fused chunks hybrid search returns.
	TopK int `yaml:"top_k"`
	// RerankK is how many reranked chunks reach the synthesizer.
	RerankK int `yaml:"rerank_k"`
}

// GuardrailConfig controls the domain relevance gate.
type GuardrailConfig struct {
	// InDomainThreshold is the minimum relevance score to answer.
	InDomainThreshold float64 `yaml:"in_domain_threshold"`
	// FuzzyRatio is the minimum LCS similarity for a fuzzy term match.
	FuzzyRatio float64 `yaml:"fuzzy_ratio"`
	// SignatureTerms caps how many signature terms are fuzzy-checked.
	SignatureTerms int `yaml:"signature_terms"`
}

// FaithfulnessConfig controls answer verification.
type FaithfulnessConfig struct {
	MaxClaims    int  `yaml:"max_claims"`
	ContextChars int  `yaml:"context_chars"`
	MaxReported  int  `yaml:"max_reported"`
	// OptimisticOnError counts a claim as supported when its
	// verification call fails, so provider flakiness does not zero
	// the score.
	OptimisticOnError bool `yaml:"optimistic_on_error"`
}

// ConfidenceConfig holds the confidence formula weights and clamps.
type ConfidenceConfig struct {
	SimilarityWeight float64 `yaml:"similarity_weight"`
	RerankWeight     float64 `yaml:"rerank_weight"`
	FaithWeight      float64 `yaml:"faith_weight"`
	Base             float64 `yaml:"base"`
	HighFloor        float64 `yaml:"high_floor"`
	LowCap           float64 `yaml:"low_cap"`
	ClampMin         float64 `yaml:"clamp_min"`
	ClampMax         float64 `yaml:"clamp_max"`
	OutOfDomain      float64 `yaml:"out_of_domain"`
	NoResults        float64 `yaml:"no_results"`
	// SimilarityScale maps a top RRF score (typically 0..0.03) onto
	// [0,1] by multiplication.
	SimilarityScale float64 `yaml:"similarity_scale"`
	// RerankMin and RerankMax bound the raw cross-encoder logit range
	// that normalizes onto [0,1].
	RerankMin float64 `yaml:"rerank_min"`
	RerankMax float64 `yaml:"rerank_max"`
}

// ArtifactsConfig locates per-agent artifact directories on disk and
// controls the orphan sweep.
type ArtifactsConfig struct {
	Dir string `yaml:"dir"`
	// SweepInterval is how often orphaned directories are swept.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// OrphanAge is the minimum directory age before it can be swept,
	// so an upload racing its agent insert is never removed.
	OrphanAge time.Duration `yaml:"orphan_age"`
}

// Default returns the built-in configuration. Every value here matches
// the calibrated production constants; YAML overrides merge on top.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			DefaultTenant:  "default",
			MaxUploadBytes: 50 << 20,
		},
		Queue: DefaultQueueConfig(),
		LLM: LLMConfig{
			BaseURL:       "https://api.groq.com/openai/v1",
			APIKeyEnv:     "GROQ_API_KEY",
			ChatModel:     "llama-3.1-8b-instant",
			AdvancedModel: "llama-3.3-70b-versatile",
			FastModel:     "llama-3.1-8b-instant",
			VisionModel:   "llama-3.2-11b-vision-preview",
			WhisperModel:  "whisper-large-v3",
			Timeout:       60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			BaseURL:   "http://localhost:8081/v1",
			APIKeyEnv: "EMBEDDING_API_KEY",
			Model:     "BAAI/bge-small-en-v1.5",
			Dimension: 384,
			BatchSize: 64,
			Timeout:   30 * time.Second,
		},
		Reranker: RerankerConfig{
			URL:     "",
			Timeout: 10 * time.Second,
		},
		Chunker: ChunkerConfig{
			TargetTokens: 400,
		},
		Sufficiency: SufficiencyConfig{
			MinEntries: 20,
			MinChars:   2000,
		},
		Retrieval: RetrievalConfig{
			CandidateLimit: 40,
			RRFK:           60,
			TopK:           20,
			RerankK:        5,
		},
		Guardrail: GuardrailConfig{
			InDomainThreshold: 0.05,
			FuzzyRatio:        0.75,
			SignatureTerms:    100,
		},
		Faithfulness: FaithfulnessConfig{
			MaxClaims:         10,
			ContextChars:      4000,
			MaxReported:       5,
			OptimisticOnError: true,
		},
		Confidence: ConfidenceConfig{
			SimilarityWeight: 0.35,
			RerankWeight:     0.30,
			FaithWeight:      0.25,
			Base:             0.10,
			HighFloor:        0.75,
			LowCap:           0.45,
			ClampMin:         0.15,
			ClampMax:         0.95,
			OutOfDomain:      0.1,
			NoResults:        0.2,
			SimilarityScale:  30,
			RerankMin:        -10,
			RerankMax:        10,
		},
		Artifacts: ArtifactsConfig{
			Dir:           "./data/agents",
			SweepInterval: 1 * time.Hour,
			OrphanAge:     1 * time.Hour,
		},
	}
}
