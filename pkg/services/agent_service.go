package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groundline/groundline/pkg/database"
	"github.com/groundline/groundline/pkg/models"
)

// maxAgentNameLen bounds the normalized agent name.
const maxAgentNameLen = 64

var agentNamePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// AgentService manages agent lifecycle and tenant-scoped lookups.
type AgentService struct {
	pool         *pgxpool.Pool
	artifactsDir string
	logger       *slog.Logger
}

// NewAgentService creates a new AgentService. artifactsDir is where
// per-agent uploaded source files live; it is removed on delete.
func NewAgentService(client *database.Client, artifactsDir string) *AgentService {
	return &AgentService{
		pool:         client.Pool(),
		artifactsDir: artifactsDir,
		logger:       slog.With("component", "agent_service"),
	}
}

// NormalizeAgentName lowercases, trims, and replaces inner whitespace
// runs with underscores. Lookups always normalize first, so "Med Bot"
// and "med_bot" address the same agent.
func NormalizeAgentName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(name), "_")
}

func validateAgentName(name string) error {
	if name == "" {
		return NewValidationError("name", "required")
	}
	if len(name) > maxAgentNameLen {
		return NewValidationError("name", fmt.Sprintf("must be at most %d characters", maxAgentNameLen))
	}
	if !agentNamePattern.MatchString(name) {
		return NewValidationError("name", "may only contain letters, digits, underscores, and hyphens")
	}
	return nil
}

// CreateAgent registers a new agent in status initializing. The
// (tenant, name) pair is unique; a duplicate returns ErrAlreadyExists.
func (s *AgentService) CreateAgent(ctx context.Context, req models.CreateAgentRequest) (*models.Agent, error) {
	if req.TenantID == "" {
		return nil, NewValidationError("tenant_id", "required")
	}
	if strings.TrimSpace(req.SystemPrompt) == "" {
		return nil, NewValidationError("system_prompt", "required")
	}
	name := NormalizeAgentName(req.Name)
	if err := validateAgentName(name); err != nil {
		return nil, err
	}

	agent := &models.Agent{
		ID:           uuid.New().String(),
		TenantID:     req.TenantID,
		Name:         name,
		Status:       models.AgentStatusInitializing,
		SystemPrompt: req.SystemPrompt,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO agents (id, tenant_id, name, status, system_prompt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		agent.ID, agent.TenantID, agent.Name, agent.Status, agent.SystemPrompt,
		agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	s.logger.Info("Agent created", "agent_id", agent.ID, "tenant_id", agent.TenantID, "name", agent.Name)
	return agent, nil
}

// PrepareRecompile accepts a fresh compilation request for an existing
// agent. The new system prompt replaces the stored one, but the agent
// keeps its current status: a ready agent stays queryable against its
// old chunk set until the replacement set is swapped in.
func (s *AgentService) PrepareRecompile(ctx context.Context, req models.CreateAgentRequest) (*models.Agent, error) {
	if req.TenantID == "" {
		return nil, NewValidationError("tenant_id", "required")
	}
	if strings.TrimSpace(req.SystemPrompt) == "" {
		return nil, NewValidationError("system_prompt", "required")
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE agents SET system_prompt = $3, updated_at = now()
		WHERE tenant_id = $1 AND name = $2
		RETURNING `+agentColumns,
		req.TenantID, NormalizeAgentName(req.Name), req.SystemPrompt)
	agent, err := scanAgent(row)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Agent recompilation requested", "agent_id", agent.ID, "tenant_id", agent.TenantID, "name", agent.Name)
	return agent, nil
}

const agentColumns = `id, tenant_id, name, status, system_prompt, domain,
	domain_keywords, prompt_analysis, chunk_count, entity_count,
	embedding_model, error_message, created_at, updated_at`

// GetAgent fetches an agent by tenant-scoped name.
func (s *AgentService) GetAgent(ctx context.Context, tenantID, name string) (*models.Agent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+agentColumns+`
		FROM agents WHERE tenant_id = $1 AND name = $2`,
		tenantID, NormalizeAgentName(name))
	return scanAgent(row)
}

// GetAgentByID fetches an agent by primary key.
func (s *AgentService) GetAgentByID(ctx context.Context, agentID string) (*models.Agent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+agentColumns+`
		FROM agents WHERE id = $1`, agentID)
	return scanAgent(row)
}

// ListAgents returns a tenant's agents, newest first.
func (s *AgentService) ListAgents(ctx context.Context, tenantID string) ([]*models.Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+agentColumns+`
		FROM agents WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// DeleteAgent removes an agent. Chunks and jobs go with it via foreign
// key cascade; uploaded source artifacts are removed best-effort.
func (s *AgentService) DeleteAgent(ctx context.Context, tenantID, name string) error {
	var agentID string
	err := s.pool.QueryRow(ctx, `
		DELETE FROM agents WHERE tenant_id = $1 AND name = $2 RETURNING id`,
		tenantID, NormalizeAgentName(name)).Scan(&agentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}

	if s.artifactsDir != "" {
		if err := os.RemoveAll(filepath.Join(s.artifactsDir, agentID)); err != nil {
			s.logger.Warn("Failed to remove agent artifacts", "agent_id", agentID, "error", err)
		}
	}
	s.logger.Info("Agent deleted", "agent_id", agentID, "tenant_id", tenantID)
	return nil
}

// UpdateStatus transitions an agent's lifecycle status. The error
// message is only persisted for failed.
func (s *AgentService) UpdateStatus(ctx context.Context, agentID, status, errorMessage string) error {
	if status != models.AgentStatusFailed {
		errorMessage = ""
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE agents SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1`, agentID, status, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CompiledUpdate is everything a successful compilation stamps onto
// the agent row.
type CompiledUpdate struct {
	Domain         string
	DomainKeywords []string
	PromptAnalysis *models.PromptProfile
	ChunkCount     int
	EntityCount    int
	EmbeddingModel string
}

// MarkReady stamps compilation results and flips the agent to ready.
func (s *AgentService) MarkReady(ctx context.Context, agentID string, upd CompiledUpdate) error {
	keywords, err := json.Marshal(upd.DomainKeywords)
	if err != nil {
		return fmt.Errorf("failed to marshal domain keywords: %w", err)
	}
	analysis, err := json.Marshal(upd.PromptAnalysis)
	if err != nil {
		return fmt.Errorf("failed to marshal prompt analysis: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE agents SET
			status = $2, domain = $3, domain_keywords = $4, prompt_analysis = $5,
			chunk_count = $6, entity_count = $7, embedding_model = $8,
			error_message = '', updated_at = now()
		WHERE id = $1`,
		agentID, models.AgentStatusReady, upd.Domain, keywords, analysis,
		upd.ChunkCount, upd.EntityCount, upd.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("failed to mark agent ready: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*models.Agent, error) {
	var (
		agent          models.Agent
		domain         *string
		keywordsJSON   []byte
		analysisJSON   []byte
		embeddingModel *string
		errorMessage   *string
	)
	err := row.Scan(
		&agent.ID, &agent.TenantID, &agent.Name, &agent.Status, &agent.SystemPrompt,
		&domain, &keywordsJSON, &analysisJSON, &agent.ChunkCount, &agent.EntityCount,
		&embeddingModel, &errorMessage, &agent.CreatedAt, &agent.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan agent: %w", err)
	}

	if domain != nil {
		agent.Domain = *domain
	}
	if embeddingModel != nil {
		agent.EmbeddingModel = *embeddingModel
	}
	if errorMessage != nil {
		agent.ErrorMessage = *errorMessage
	}
	if len(keywordsJSON) > 0 {
		if err := json.Unmarshal(keywordsJSON, &agent.DomainKeywords); err != nil {
			return nil, fmt.Errorf("failed to decode domain keywords: %w", err)
		}
	}
	if len(analysisJSON) > 0 {
		if err := json.Unmarshal(analysisJSON, &agent.PromptAnalysis); err != nil {
			return nil, fmt.Errorf("failed to decode prompt analysis: %w", err)
		}
	}
	return &agent, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
