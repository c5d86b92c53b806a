package models

// Chunk is one indexed unit of agent knowledge. Structured records map
// one chunk per record; unstructured text is split on paragraph
// boundaries with overlap.
type Chunk struct {
	ID         int64     `json:"id,omitempty"`
	AgentID    string    `json:"agent_id,omitempty"`
	Content    string    `json:"content"`
	Source     string    `json:"source"`
	ChunkIndex int       `json:"chunk_index"`
	TokenCount int       `json:"token_count"`
	Embedding  []float32 `json:"-"`
}

// ScoredChunk is a chunk with retrieval scores attached. RRF is the
// fused rank score; Rerank is the cross-encoder relevance logit.
type ScoredChunk struct {
	Chunk
	DenseRank  int     `json:"dense_rank,omitempty"`
	SparseRank int     `json:"sparse_rank,omitempty"`
	RRF        float64 `json:"rrf_score"`
	Rerank     float64 `json:"rerank_score"`
}
