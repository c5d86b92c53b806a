package index

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/groundline/groundline/pkg/models"
)

// Postgres stores chunks in the document_chunks table: dense search
// via pgvector cosine distance, sparse search via the generated
// tsvector column.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates the Postgres-backed index.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	if pool == nil {
		panic("index.NewPostgres: pool is nil")
	}
	return &Postgres{pool: pool}
}

// Replace swaps the agent's chunk set in one transaction: delete then
// bulk insert with CopyFrom. Readers see either the old set or the
// new set, never a mix.
func (p *Postgres) Replace(ctx context.Context, agentID string, chunks []models.Chunk) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin chunk replace: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE agent_id = $1`, agentID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	if len(chunks) > 0 {
		rows := make([][]any, len(chunks))
		for i, c := range chunks {
			rows[i] = []any{agentID, c.Content, c.Source, c.ChunkIndex, c.TokenCount, pgvector.NewVector(c.Embedding)}
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"document_chunks"},
			[]string{"agent_id", "content", "source", "chunk_index", "token_count", "embedding"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy chunks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunk replace: %w", err)
	}
	return nil
}

// DeleteAgent removes all chunks for an agent. The agents FK cascade
// covers agent deletion; this exists for explicit reindex cleanup.
func (p *Postgres) DeleteAgent(ctx context.Context, agentID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM document_chunks WHERE agent_id = $1`, agentID)
	if err != nil {
		return fmt.Errorf("delete agent chunks: %w", err)
	}
	return nil
}

// SearchDense ranks by cosine distance to the query vector.
func (p *Postgres) SearchDense(ctx context.Context, agentID string, vec []float32, limit int) ([]models.Chunk, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, content, source, chunk_index, token_count
		FROM document_chunks
		WHERE agent_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3`,
		agentID, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	return scanChunks(rows, agentID)
}

// SearchSparse ranks by ts_rank_cd against a websearch-parsed query.
func (p *Postgres) SearchSparse(ctx context.Context, agentID, query string, limit int) ([]models.Chunk, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, content, source, chunk_index, token_count
		FROM document_chunks
		WHERE agent_id = $1
		  AND content_tsv @@ websearch_to_tsquery('english', $2)
		ORDER BY ts_rank_cd(content_tsv, websearch_to_tsquery('english', $2)) DESC
		LIMIT $3`,
		agentID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("sparse search: %w", err)
	}
	return scanChunks(rows, agentID)
}

// Count returns the agent's chunk count.
func (p *Postgres) Count(ctx context.Context, agentID string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE agent_id = $1`, agentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func scanChunks(rows pgx.Rows, agentID string) ([]models.Chunk, error) {
	defer rows.Close()
	var out []models.Chunk
	for rows.Next() {
		c := models.Chunk{AgentID: agentID}
		if err := rows.Scan(&c.ID, &c.Content, &c.Source, &c.ChunkIndex, &c.TokenCount); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	return out, nil
}
