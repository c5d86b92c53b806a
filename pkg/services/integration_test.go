package services_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundline/groundline/pkg/models"
	"github.com/groundline/groundline/pkg/services"
	"github.com/groundline/groundline/test/util"
)

func TestAgentServiceLifecycle(t *testing.T) {
	client := util.SetupTestDatabase(t)
	ctx := context.Background()
	artifactsDir := t.TempDir()
	svc := services.NewAgentService(client, artifactsDir)

	agent, err := svc.CreateAgent(ctx, models.CreateAgentRequest{
		TenantID:     "acme",
		Name:         "  Chef  Bot ",
		SystemPrompt: "You are a cooking assistant.",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, agent.ID)
	assert.Equal(t, "chef_bot", agent.Name)
	assert.Equal(t, models.AgentStatusInitializing, agent.Status)

	t.Run("duplicate name conflicts", func(t *testing.T) {
		_, err := svc.CreateAgent(ctx, models.CreateAgentRequest{
			TenantID: "acme", Name: "chef bot", SystemPrompt: "x",
		})
		assert.ErrorIs(t, err, services.ErrAlreadyExists)
	})

	t.Run("same name in another tenant is fine", func(t *testing.T) {
		other, err := svc.CreateAgent(ctx, models.CreateAgentRequest{
			TenantID: "globex", Name: "chef bot", SystemPrompt: "x",
		})
		require.NoError(t, err)
		assert.NotEqual(t, agent.ID, other.ID)
	})

	t.Run("get normalizes the lookup name", func(t *testing.T) {
		got, err := svc.GetAgent(ctx, "acme", "Chef Bot")
		require.NoError(t, err)
		assert.Equal(t, agent.ID, got.ID)
	})

	t.Run("list is tenant scoped", func(t *testing.T) {
		agents, err := svc.ListAgents(ctx, "acme")
		require.NoError(t, err)
		require.Len(t, agents, 1)
		assert.Equal(t, agent.ID, agents[0].ID)
	})

	t.Run("mark ready persists compiled metadata", func(t *testing.T) {
		require.NoError(t, svc.UpdateStatus(ctx, agent.ID, models.AgentStatusInProgress, ""))

		err := svc.MarkReady(ctx, agent.ID, services.CompiledUpdate{
			Domain:         "cooking",
			DomainKeywords: []string{"cooking", "recipe"},
			PromptAnalysis: &models.PromptProfile{Domain: "cooking", Tone: "friendly"},
			ChunkCount:     12,
			EntityCount:    40,
			EmbeddingModel: "BAAI/bge-small-en-v1.5",
		})
		require.NoError(t, err)

		got, err := svc.GetAgentByID(ctx, agent.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AgentStatusReady, got.Status)
		assert.Equal(t, "cooking", got.Domain)
		assert.Equal(t, []string{"cooking", "recipe"}, got.DomainKeywords)
		require.NotNil(t, got.PromptAnalysis)
		assert.Equal(t, "friendly", got.PromptAnalysis.Tone)
		assert.Equal(t, 12, got.ChunkCount)
		assert.Equal(t, 40, got.EntityCount)
		assert.Equal(t, "BAAI/bge-small-en-v1.5", got.EmbeddingModel)
		assert.Empty(t, got.ErrorMessage)
	})

	t.Run("recompile replaces prompt but keeps status", func(t *testing.T) {
		got, err := svc.PrepareRecompile(ctx, models.CreateAgentRequest{
			TenantID: "acme", Name: "Chef Bot", SystemPrompt: "You are a pastry specialist.",
		})
		require.NoError(t, err)
		assert.Equal(t, agent.ID, got.ID)
		assert.Equal(t, models.AgentStatusReady, got.Status)
		assert.Equal(t, "You are a pastry specialist.", got.SystemPrompt)

		_, err = svc.PrepareRecompile(ctx, models.CreateAgentRequest{
			TenantID: "acme", Name: "missing", SystemPrompt: "x",
		})
		assert.ErrorIs(t, err, services.ErrNotFound)
	})

	t.Run("delete removes row and artifacts", func(t *testing.T) {
		dir := filepath.Join(artifactsDir, agent.ID)
		require.NoError(t, os.MkdirAll(dir, 0o755))

		require.NoError(t, svc.DeleteAgent(ctx, "acme", "chef bot"))

		_, err := svc.GetAgent(ctx, "acme", "chef bot")
		assert.ErrorIs(t, err, services.ErrNotFound)
		_, err = os.Stat(dir)
		assert.True(t, os.IsNotExist(err))

		assert.ErrorIs(t, svc.DeleteAgent(ctx, "acme", "chef bot"), services.ErrNotFound)
	})
}

func TestJobServiceLifecycle(t *testing.T) {
	client := util.SetupTestDatabase(t)
	ctx := context.Background()
	agents := services.NewAgentService(client, t.TempDir())
	jobs := services.NewJobService(client)

	agent, err := agents.CreateAgent(ctx, models.CreateAgentRequest{
		TenantID: "acme", Name: "chef", SystemPrompt: "x",
	})
	require.NoError(t, err)

	job, err := jobs.CreateJob(ctx, agent.ID, agent.TenantID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, job.Status)
	assert.Equal(t, 0, job.Progress)

	t.Run("one active job per agent", func(t *testing.T) {
		_, err := jobs.CreateJob(ctx, agent.ID, agent.TenantID)
		assert.ErrorIs(t, err, services.ErrCompilationInProgress)
	})

	t.Run("progress never regresses", func(t *testing.T) {
		require.NoError(t, jobs.UpdateProgress(ctx, job.ID, 50, "embedding"))
		require.NoError(t, jobs.UpdateProgress(ctx, job.ID, 30, "late write"))

		got, err := jobs.GetJob(ctx, "acme", job.ID)
		require.NoError(t, err)
		assert.Equal(t, 50, got.Progress)
	})

	t.Run("get is tenant scoped", func(t *testing.T) {
		_, err := jobs.GetJob(ctx, "globex", job.ID)
		assert.ErrorIs(t, err, services.ErrNotFound)
	})

	t.Run("complete is terminal", func(t *testing.T) {
		require.NoError(t, jobs.CompleteJob(ctx, job.ID))

		got, err := jobs.GetJob(ctx, "acme", job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, got.Status)
		assert.Equal(t, 100, got.Progress)
		require.NotNil(t, got.CompletedAt)

		// Terminal jobs reject further writes.
		assert.ErrorIs(t, jobs.UpdateProgress(ctx, job.ID, 99, "x"), services.ErrNotFound)
		assert.ErrorIs(t, jobs.FailJob(ctx, job.ID, "x"), services.ErrNotFound)
	})

	t.Run("new job allowed after terminal", func(t *testing.T) {
		second, err := jobs.CreateJob(ctx, agent.ID, agent.TenantID)
		require.NoError(t, err)

		latest, err := jobs.LatestJob(ctx, agent.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, latest.ID)

		require.NoError(t, jobs.FailJob(ctx, second.ID, "embedding provider down"))
		got, err := jobs.GetJob(ctx, "acme", second.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusFailed, got.Status)
		assert.Equal(t, "embedding provider down", got.ErrorMessage)
	})

	t.Run("stuck jobs are reported by age", func(t *testing.T) {
		stale, err := jobs.CreateJob(ctx, agent.ID, agent.TenantID)
		require.NoError(t, err)
		_, err = client.Pool().Exec(ctx,
			`UPDATE compilation_jobs SET created_at = now() - interval '2 hours' WHERE id = $1`,
			stale.ID)
		require.NoError(t, err)

		stuck, err := jobs.StuckJobs(ctx, 30*time.Minute)
		require.NoError(t, err)
		require.Len(t, stuck, 1)
		assert.Equal(t, stale.ID, stuck[0].ID)

		stuck, err = jobs.StuckJobs(ctx, 3*time.Hour)
		require.NoError(t, err)
		assert.Empty(t, stuck)
	})
}
