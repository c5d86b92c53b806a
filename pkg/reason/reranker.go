package reason

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/groundline/groundline/pkg/config"
	"github.com/groundline/groundline/pkg/models"
)

// maxRerankTokens truncates candidate content sent to the
// cross-encoder, which has a fixed input window.
const maxRerankTokens = 512

// Reranker scores (query, candidate) pairs with a cross-encoder
// served over HTTP (text-embeddings-inference /rerank protocol).
// With no URL configured, or on any request failure, it degrades to
// input order with a placeholder score.
type Reranker struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewReranker creates a Reranker. An empty URL is valid and means
// permanently degraded.
func NewReranker(cfg config.RerankerConfig) *Reranker {
	return &Reranker{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: slog.With("component", "reranker"),
	}
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank returns the top-k candidates by cross-encoder score. The
// second return value reports degraded mode: candidates come back in
// input order with a zero placeholder score, and the caller must
// treat the normalized rerank component as 0.5.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []models.ScoredChunk, k int) ([]models.ScoredChunk, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	if r.url == "" {
		return placeholderOrder(candidates, k), true
	}

	scored, err := r.call(ctx, query, candidates)
	if err != nil {
		r.logger.Warn("Cross-encoder unavailable, returning candidates in input order", "error", err)
		return placeholderOrder(candidates, k), true
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Rerank > scored[j].Rerank })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, false
}

func (r *Reranker) call(ctx context.Context, query string, candidates []models.ScoredChunk) ([]models.ScoredChunk, error) {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = truncateTokens(c.Content, maxRerankTokens)
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank endpoint returned status %d", resp.StatusCode)
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}

	out := make([]models.ScoredChunk, 0, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(candidates) {
			return nil, fmt.Errorf("rerank response index %d out of range", res.Index)
		}
		c := candidates[res.Index]
		c.Rerank = res.Score
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("rerank response was empty")
	}
	return out, nil
}

func placeholderOrder(candidates []models.ScoredChunk, k int) []models.ScoredChunk {
	out := make([]models.ScoredChunk, 0, min(k, len(candidates)))
	for i, c := range candidates {
		if i >= k {
			break
		}
		c.Rerank = 0
		out = append(out, c)
	}
	return out
}

func truncateTokens(text string, limit int) string {
	fields := strings.Fields(text)
	if len(fields) <= limit {
		return text
	}
	return strings.Join(fields[:limit], " ")
}
