// Package api exposes the HTTP and WebSocket surface: agent CRUD,
// compilation progress streaming, and chat.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/groundline/groundline/pkg/config"
	"github.com/groundline/groundline/pkg/database"
	"github.com/groundline/groundline/pkg/events"
	"github.com/groundline/groundline/pkg/llm"
	"github.com/groundline/groundline/pkg/models"
	"github.com/groundline/groundline/pkg/queue"
	"github.com/groundline/groundline/pkg/reason"
	"github.com/groundline/groundline/pkg/services"
)

// agentStore is the slice of the agent service the handlers use.
type agentStore interface {
	CreateAgent(ctx context.Context, req models.CreateAgentRequest) (*models.Agent, error)
	PrepareRecompile(ctx context.Context, req models.CreateAgentRequest) (*models.Agent, error)
	GetAgent(ctx context.Context, tenantID, name string) (*models.Agent, error)
	ListAgents(ctx context.Context, tenantID string) ([]*models.Agent, error)
	DeleteAgent(ctx context.Context, tenantID, name string) error
	UpdateStatus(ctx context.Context, agentID, status, errorMessage string) error
}

// jobStore is the slice of the job service the handlers use.
type jobStore interface {
	CreateJob(ctx context.Context, agentID, tenantID string) (*models.CompilationJob, error)
	GetJob(ctx context.Context, tenantID, jobID string) (*models.CompilationJob, error)
	LatestJob(ctx context.Context, agentID string) (*models.CompilationJob, error)
	FailJob(ctx context.Context, jobID, message string) error
	StuckJobs(ctx context.Context, olderThan time.Duration) ([]*models.CompilationJob, error)
}

// reasoner answers chat queries and manages the agent snapshot cache.
type reasoner interface {
	Reason(ctx context.Context, tenantID, agentName, query, multimodalContext string) (*models.Answer, error)
	Invalidate(tenantID, name string)
}

// Server wires handlers to the service layer.
type Server struct {
	cfg          config.ServerConfig
	agents       agentStore
	jobs         jobStore
	engine       reasoner
	pool         *queue.WorkerPool
	bus          *events.ProgressBus
	llm          llm.Client
	db           *database.Client
	artifactsDir string
}

// Deps bundles the server's collaborators.
type Deps struct {
	Config       config.ServerConfig
	Agents       *services.AgentService
	Jobs         *services.JobService
	Engine       *reason.Engine
	Pool         *queue.WorkerPool
	Bus          *events.ProgressBus
	LLM          llm.Client
	DB           *database.Client
	ArtifactsDir string
}

// NewServer creates the API server.
func NewServer(deps Deps) *Server {
	return &Server{
		cfg:          deps.Config,
		agents:       deps.Agents,
		jobs:         deps.Jobs,
		engine:       deps.Engine,
		pool:         deps.Pool,
		bus:          deps.Bus,
		llm:          deps.LLM,
		db:           deps.DB,
		artifactsDir: deps.ArtifactsDir,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), securityHeaders(), s.tenantMiddleware())

	router.GET("/healthz", s.handleHealth)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/agents", s.handleCreateAgent)
		v1.GET("/agents", s.handleListAgents)
		v1.GET("/agents/:name/status", s.handleAgentStatus)
		v1.GET("/agents/:name/events", s.handleAgentEvents)
		v1.POST("/agents/:name/chat", s.handleChat)
		v1.DELETE("/agents/:name", s.handleDeleteAgent)

		v1.GET("/prompts/templates", s.handlePromptTemplates)
		v1.GET("/diagnostics/stuck-jobs", s.handleStuckJobs)
	}
	return router
}

// HTTPServer wraps the router in an http.Server with sane timeouts.
// WebSocket streams disable the write timeout per connection.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
