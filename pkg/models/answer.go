package models

// DomainCheck is the guardrail verdict for a query against an agent's
// domain signature.
type DomainCheck struct {
	InDomain bool    `json:"in_domain"`
	Score    float64 `json:"score"`
}

// AttributedSource is one cited chunk of an attributed answer, ordered
// by citation number.
type AttributedSource struct {
	Citation   int     `json:"citation"`
	ChunkID    int64   `json:"chunk_id"`
	Source     string  `json:"source"`
	Preview    string  `json:"preview"`
	Similarity float64 `json:"similarity"`
}

// AttributedAnswer is the answer text with dense [N] citations plus
// the sources they point at.
type AttributedAnswer struct {
	AnswerWithCitations string             `json:"answer_with_citations"`
	Sources             []AttributedSource `json:"sources"`
}

// FaithfulnessResult reports how much of the answer the retrieved
// context supports. Score = Supported/Total, or 1.0 with no claims.
type FaithfulnessResult struct {
	Score             float64  `json:"score"`
	TotalClaims       int      `json:"total_claims"`
	SupportedClaims   int      `json:"supported_claims"`
	UnsupportedClaims []string `json:"unsupported_claims,omitempty"`
}

// ExplainSource describes one source inside the explainability record.
type ExplainSource struct {
	Citation       int     `json:"citation"`
	SourceFile     string  `json:"source_file"`
	ContentPreview string  `json:"content_preview"`
	RelevanceScore float64 `json:"relevance_score"`
}

// WhyThisAnswer summarizes the evidence behind an answer.
type WhyThisAnswer struct {
	Summary string          `json:"summary"`
	Sources []ExplainSource `json:"sources"`
}

// ConfidenceBreakdown itemizes the confidence computation.
type ConfidenceBreakdown struct {
	Overall          float64 `json:"overall"`
	DomainRelevance  float64 `json:"domain_relevance"`
	RetrievalQuality float64 `json:"retrieval_quality"`
	RerankScore      float64 `json:"rerank_score"`
	Faithfulness     float64 `json:"faithfulness"`
	ClaimsSupported  string  `json:"claims_supported"`
}

// ExplainInputs echoes what the pipeline actually saw.
type ExplainInputs struct {
	OriginalQuery   string `json:"original_query"`
	HasMultimodal   bool   `json:"has_multimodal"`
	ChunksRetrieved int    `json:"chunks_retrieved"`
}

// Explainability is returned with every chat response.
type Explainability struct {
	WhyThisAnswer       WhyThisAnswer       `json:"why_this_answer"`
	ConfidenceBreakdown ConfidenceBreakdown `json:"confidence_breakdown"`
	UnsupportedClaims   []string            `json:"unsupported_claims,omitempty"`
	Inputs              ExplainInputs       `json:"inputs"`
	RejectionReason     string              `json:"rejection_reason,omitempty"`
}

// Answer is the reasoning engine's response to one query.
type Answer struct {
	Text           string         `json:"answer"`
	Confidence     float64        `json:"confidence"`
	InDomain       bool           `json:"in_domain"`
	Explainability Explainability `json:"explainability"`
}
