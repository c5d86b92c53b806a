package models

import "time"

// Agent lifecycle statuses.
const (
	AgentStatusInitializing = "initializing"
	AgentStatusInProgress   = "in_progress"
	AgentStatusReady        = "ready"
	AgentStatusFailed       = "failed"
)

// Agent is a compiled knowledge agent owned by a tenant.
// (TenantID, Name) is unique; Name is stored normalized.
type Agent struct {
	ID             string         `json:"agent_id"`
	TenantID       string         `json:"tenant_id"`
	Name           string         `json:"name"`
	Status         string         `json:"status"`
	SystemPrompt   string         `json:"system_prompt,omitempty"`
	Domain         string         `json:"domain,omitempty"`
	DomainKeywords []string       `json:"domain_keywords,omitempty"`
	PromptAnalysis *PromptProfile `json:"prompt_analysis,omitempty"`
	ChunkCount     int            `json:"chunk_count"`
	EntityCount    int            `json:"entity_count"`
	EmbeddingModel string         `json:"embedding_model,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// PromptProfile is the structured analysis of an agent's system prompt.
// DomainKeywords always carries Domain itself as its first element.
type PromptProfile struct {
	Domain         string   `json:"domain"`
	SubDomains     []string `json:"sub_domains"`
	DomainKeywords []string `json:"domain_keywords"`
	Personality    string   `json:"personality"`
	Constraints    []string `json:"constraints"`
	SuggestedName  string   `json:"suggested_name"`
	Tone           string   `json:"tone"`
	Capabilities   []string `json:"capabilities"`
}

// CreateAgentRequest carries the fields needed to register a new agent.
type CreateAgentRequest struct {
	TenantID     string
	Name         string
	SystemPrompt string
}
