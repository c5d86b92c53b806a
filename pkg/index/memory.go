package index

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/groundline/groundline/pkg/models"
)

// Memory is an in-process index for tests and single-node development.
// Dense search is exact cosine similarity; sparse search counts query
// term occurrences as a stand-in for full-text ranking.
type Memory struct {
	mu     sync.RWMutex
	nextID int64
	chunks map[string][]models.Chunk
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{chunks: make(map[string][]models.Chunk)}
}

func (m *Memory) Replace(_ context.Context, agentID string, chunks []models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]models.Chunk, len(chunks))
	for i, c := range chunks {
		m.nextID++
		c.ID = m.nextID
		c.AgentID = agentID
		stored[i] = c
	}
	m.chunks[agentID] = stored
	return nil
}

func (m *Memory) DeleteAgent(_ context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, agentID)
	return nil
}

func (m *Memory) SearchDense(_ context.Context, agentID string, vec []float32, limit int) ([]models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		chunk models.Chunk
		sim   float64
	}
	var candidates []scored
	for _, c := range m.chunks[agentID] {
		if len(c.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, scored{chunk: c, sim: Cosine(vec, c.Embedding)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].chunk.ID < candidates[j].chunk.ID
	})

	return takeChunks(candidates, limit, func(s scored) models.Chunk { return s.chunk }), nil
}

func (m *Memory) SearchSparse(_ context.Context, agentID, query string, limit int) ([]models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	type scored struct {
		chunk models.Chunk
		hits  int
	}
	var candidates []scored
	for _, c := range m.chunks[agentID] {
		content := strings.ToLower(c.Content)
		hits := 0
		for _, t := range terms {
			hits += strings.Count(content, t)
		}
		if hits > 0 {
			candidates = append(candidates, scored{chunk: c, hits: hits})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].hits != candidates[j].hits {
			return candidates[i].hits > candidates[j].hits
		}
		return candidates[i].chunk.ID < candidates[j].chunk.ID
	})

	return takeChunks(candidates, limit, func(s scored) models.Chunk { return s.chunk }), nil
}

func (m *Memory) Count(_ context.Context, agentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks[agentID]), nil
}

func takeChunks[T any](candidates []T, limit int, pick func(T) models.Chunk) []models.Chunk {
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]models.Chunk, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, pick(c))
	}
	return out
}

// Cosine computes cosine similarity; mismatched or zero vectors
// score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
