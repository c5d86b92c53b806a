// Package index stores agent knowledge chunks and serves hybrid
// (dense + sparse) retrieval. Fusion of the two ranked lists happens
// here so every backend shares the same semantics.
package index

import (
	"context"
	"sort"
	"strings"

	"github.com/groundline/groundline/pkg/config"
	"github.com/groundline/groundline/pkg/models"
)

// Index is the chunk storage and retrieval backend.
type Index interface {
	// Replace atomically swaps an agent's chunk set. Readers never see
	// a partially replaced set.
	Replace(ctx context.Context, agentID string, chunks []models.Chunk) error
	// DeleteAgent removes all chunks for an agent.
	DeleteAgent(ctx context.Context, agentID string) error
	// SearchDense returns chunks ranked by embedding similarity.
	SearchDense(ctx context.Context, agentID string, vec []float32, limit int) ([]models.Chunk, error)
	// SearchSparse returns chunks ranked by full-text relevance.
	// An unmatchable query returns an empty list, not an error.
	SearchSparse(ctx context.Context, agentID, query string, limit int) ([]models.Chunk, error)
	// Count returns the agent's chunk count.
	Count(ctx context.Context, agentID string) (int, error)
}

// Hybrid runs both searches and fuses the ranked lists with
// reciprocal rank fusion, returning the top cfg.TopK chunks.
func Hybrid(ctx context.Context, idx Index, agentID, query string, vec []float32, cfg config.RetrievalConfig) ([]models.ScoredChunk, error) {
	// A blank query retrieves nothing; that is a result, not an error.
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	dense, err := idx.SearchDense(ctx, agentID, vec, cfg.CandidateLimit)
	if err != nil {
		return nil, err
	}
	sparse, err := idx.SearchSparse(ctx, agentID, query, cfg.CandidateLimit)
	if err != nil {
		return nil, err
	}

	fused := Fuse(dense, sparse, cfg.RRFK)
	if len(fused) > cfg.TopK {
		fused = fused[:cfg.TopK]
	}
	return fused, nil
}

// Fuse merges two ranked lists with reciprocal rank fusion: each list
// contributes 1/(k+rank) per chunk, ranks starting at 1. Ties break
// toward the better dense rank, then the lower chunk ID.
func Fuse(dense, sparse []models.Chunk, k int) []models.ScoredChunk {
	byID := make(map[int64]*models.ScoredChunk)
	order := make([]int64, 0, len(dense)+len(sparse))

	add := func(c models.Chunk) *models.ScoredChunk {
		if sc, ok := byID[c.ID]; ok {
			return sc
		}
		sc := &models.ScoredChunk{Chunk: c}
		byID[c.ID] = sc
		order = append(order, c.ID)
		return sc
	}

	for i, c := range dense {
		sc := add(c)
		sc.DenseRank = i + 1
		sc.RRF += 1.0 / float64(k+i+1)
	}
	for i, c := range sparse {
		sc := add(c)
		sc.SparseRank = i + 1
		sc.RRF += 1.0 / float64(k+i+1)
	}

	out := make([]models.ScoredChunk, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RRF != out[j].RRF {
			return out[i].RRF > out[j].RRF
		}
		di, dj := denseSortKey(out[i]), denseSortKey(out[j])
		if di != dj {
			return di < dj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// denseSortKey orders present dense ranks before absent ones.
func denseSortKey(c models.ScoredChunk) int {
	if c.DenseRank == 0 {
		return int(^uint(0) >> 1)
	}
	return c.DenseRank
}
