package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/groundline/groundline/pkg/analyze"
	"github.com/groundline/groundline/pkg/database"
	"github.com/groundline/groundline/pkg/models"
	"github.com/groundline/groundline/pkg/version"
)

// defaultStuckThreshold matches the queue's stuck-job threshold.
const defaultStuckThreshold = 30 * time.Minute

// handleHealth reports database and worker pool health.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db.Pool())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"version":  version.Full(),
		"database": dbHealth,
		"workers":  s.pool.Health(),
	})
}

// handlePromptTemplates returns the built-in system prompt templates.
func (s *Server) handlePromptTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": analyze.Templates()})
}

// handleStuckJobs lists in-progress jobs older than the threshold.
// Diagnostics only: nothing is terminated here.
func (s *Server) handleStuckJobs(c *gin.Context) {
	threshold := defaultStuckThreshold
	if raw := c.Query("older_than"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "older_than must be a positive duration"})
			return
		}
		threshold = parsed
	}

	jobs, err := s.jobs.StuckJobs(c.Request.Context(), threshold)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if jobs == nil {
		jobs = []*models.CompilationJob{}
	}
	c.JSON(http.StatusOK, gin.H{
		"threshold": threshold.String(),
		"jobs":      jobs,
	})
}
