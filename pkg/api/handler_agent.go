package api

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/groundline/groundline/pkg/models"
	"github.com/groundline/groundline/pkg/queue"
	"github.com/groundline/groundline/pkg/services"
)

// handleCreateAgent accepts a multipart form (name, system_prompt,
// files) and starts an asynchronous compilation. Responds 202 with the
// agent and job IDs. Posting the name of an existing agent recompiles
// it; a recompile while another compilation is active returns 409.
func (s *Server) handleCreateAgent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid multipart form: %v", err)})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one knowledge file is required"})
		return
	}

	req := models.CreateAgentRequest{
		TenantID:     tenant(c),
		Name:         c.PostForm("name"),
		SystemPrompt: c.PostForm("system_prompt"),
	}
	agent, err := s.agents.CreateAgent(c.Request.Context(), req)
	if errors.Is(err, services.ErrAlreadyExists) {
		agent, err = s.agents.PrepareRecompile(c.Request.Context(), req)
		if err == nil {
			// Cached snapshots carry the old system prompt.
			s.engine.Invalidate(req.TenantID, agent.Name)
		}
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}

	job, err := s.jobs.CreateJob(c.Request.Context(), agent.ID, agent.TenantID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	sourceDir := filepath.Join(s.artifactsDir, agent.ID)
	if err := s.saveUploads(c, files, sourceDir); err != nil {
		s.abortCompilation(c, agent, job, fmt.Sprintf("storing uploads: %v", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store uploaded files"})
		return
	}

	task := queue.CompileTask{Job: job, Agent: agent, SourceDir: sourceDir}
	if err := s.pool.Enqueue(task); err != nil {
		s.abortCompilation(c, agent, job, "compilation queue is full")
		if errors.Is(err, queue.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "compilation queue is full, retry later"})
			return
		}
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"agent_id": agent.ID,
		"job_id":   job.ID,
		"status":   agent.Status,
	})
}

// saveUploads replaces the agent's source directory with the new
// upload set, so a recompile never mixes old files with new ones.
func (s *Server) saveUploads(c *gin.Context, files []*multipart.FileHeader, dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, f := range files {
		dest := filepath.Join(dir, filepath.Base(f.Filename))
		if err := c.SaveUploadedFile(f, dest); err != nil {
			return err
		}
	}
	return nil
}

// abortCompilation drives the failure path when a job cannot even be
// enqueued. Only a freshly created agent is marked failed: an existing
// agent being recompiled keeps its current status and chunk set.
func (s *Server) abortCompilation(c *gin.Context, agent *models.Agent, job *models.CompilationJob, reason string) {
	ctx := c.Request.Context()
	if err := s.jobs.FailJob(ctx, job.ID, reason); err != nil {
		slog.Warn("Failed to mark aborted job failed", "job_id", job.ID, "error", err)
	}
	if agent.Status != models.AgentStatusInitializing {
		return
	}
	if err := s.agents.UpdateStatus(ctx, agent.ID, models.AgentStatusFailed, services.TruncateError(reason)); err != nil {
		slog.Warn("Failed to mark agent failed after abort", "agent_id", agent.ID, "error", err)
	}
}

// handleListAgents returns the tenant's agents.
func (s *Server) handleListAgents(c *gin.Context) {
	agents, err := s.agents.ListAgents(c.Request.Context(), tenant(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if agents == nil {
		agents = []*models.Agent{}
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

// handleAgentStatus returns the agent record and its most recent
// compilation job, if any.
func (s *Server) handleAgentStatus(c *gin.Context) {
	agent, err := s.agents.GetAgent(c.Request.Context(), tenant(c), c.Param("name"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	resp := gin.H{"agent": agent}
	job, err := s.jobs.LatestJob(c.Request.Context(), agent.ID)
	if err == nil {
		resp["job"] = job
	} else if !errors.Is(err, services.ErrNotFound) {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleDeleteAgent removes an agent, its chunks, jobs, and artifacts.
func (s *Server) handleDeleteAgent(c *gin.Context) {
	name := c.Param("name")
	if err := s.agents.DeleteAgent(c.Request.Context(), tenant(c), name); err != nil {
		writeServiceError(c, err)
		return
	}
	s.engine.Invalidate(tenant(c), services.NormalizeAgentName(name))
	c.Status(http.StatusNoContent)
}
