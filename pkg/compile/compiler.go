// Package compile runs the asynchronous knowledge compilation
// pipeline: prompt analysis, parsing, chunking, embedding, and index
// build, with progress milestones published along the way.
package compile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/groundline/groundline/pkg/analyze"
	"github.com/groundline/groundline/pkg/config"
	"github.com/groundline/groundline/pkg/embedding"
	"github.com/groundline/groundline/pkg/events"
	"github.com/groundline/groundline/pkg/index"
	"github.com/groundline/groundline/pkg/ingest"
	"github.com/groundline/groundline/pkg/models"
	"github.com/groundline/groundline/pkg/queue"
	"github.com/groundline/groundline/pkg/services"
)

// maxDomainKeywords caps the keyword list stored on the agent row.
const maxDomainKeywords = 80

// CacheInvalidator drops a cached agent snapshot. Implemented by the
// reasoning engine.
type CacheInvalidator interface {
	Invalidate(tenantID, name string)
}

// AgentStore is the slice of the agent service the compiler writes to.
type AgentStore interface {
	UpdateStatus(ctx context.Context, agentID, status, errorMessage string) error
	MarkReady(ctx context.Context, agentID string, upd services.CompiledUpdate) error
}

// JobStore is the slice of the job service the compiler writes to.
type JobStore interface {
	UpdateProgress(ctx context.Context, jobID string, progress int, step string) error
	CompleteJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID, message string) error
	StuckJobs(ctx context.Context, olderThan time.Duration) ([]*models.CompilationJob, error)
}

// Deps bundles the compiler's collaborators.
type Deps struct {
	Agents      AgentStore
	Jobs        JobStore
	Bus         *events.ProgressBus
	Analyzer    *analyze.Analyzer
	Parser      *ingest.Parser
	Chunker     *ingest.Chunker
	Embedder    embedding.Provider
	Index       index.Index
	Cache       CacheInvalidator
	Sufficiency config.SufficiencyConfig
}

// Compiler executes compilation jobs. It implements
// queue.CompileExecutor.
type Compiler struct {
	deps   Deps
	logger *slog.Logger
}

// NewCompiler wires the compilation pipeline. All dependencies except
// Cache are required.
func NewCompiler(deps Deps) *Compiler {
	for name, dep := range map[string]any{
		"agents": deps.Agents, "jobs": deps.Jobs, "bus": deps.Bus,
		"analyzer": deps.Analyzer, "parser": deps.Parser, "chunker": deps.Chunker,
		"embedder": deps.Embedder, "index": deps.Index,
	} {
		if dep == nil {
			panic("compile.NewCompiler: missing dependency " + name)
		}
	}
	return &Compiler{deps: deps, logger: slog.With("component", "compiler")}
}

// Execute runs one compilation to a terminal state. Every failure path
// marks the job failed, the agent failed, and publishes a terminal
// progress event; the returned error is for worker logging only.
func (c *Compiler) Execute(ctx context.Context, task queue.CompileTask) error {
	log := c.logger.With("job_id", task.Job.ID, "agent_id", task.Agent.ID)
	log.Info("Compilation started", "source_dir", task.SourceDir)

	if err := c.deps.Agents.UpdateStatus(ctx, task.Agent.ID, models.AgentStatusInProgress, ""); err != nil {
		return c.fail(task, fmt.Errorf("marking agent in progress: %w", err))
	}

	c.progress(ctx, task, 10, "Analyzing system prompt")
	profile := c.deps.Analyzer.Analyze(ctx, task.Agent.SystemPrompt)
	if err := ctx.Err(); err != nil {
		return c.fail(task, err)
	}

	c.progress(ctx, task, 20, "Preparing embedding and index clients")

	c.progress(ctx, task, 30, "Parsing source files")
	sources, failures, err := c.parseSources(task.SourceDir)
	if err != nil {
		return c.fail(task, err)
	}
	report := ingest.CheckSufficiency(sources, failures, c.deps.Sufficiency)
	if !report.Sufficient {
		// Marginal corpora compile anyway; only unusable ones fail.
		log.Warn("Knowledge base may be insufficient", "feedback", report.Feedback())
	}
	if report.TotalEntries == 0 && report.TotalChars == 0 {
		return c.fail(task, fmt.Errorf("no usable content in uploaded files: %s", report.Feedback()))
	}

	c.progress(ctx, task, 40, "Chunking content")
	var chunks []models.Chunk
	for i, src := range sources {
		chunks = append(chunks, c.deps.Chunker.Chunk(src)...)
		// Chunking owns the 40-70 band; spread it across sources.
		c.progress(ctx, task, 40+(i+1)*30/len(sources), "Chunking content")
	}
	if len(chunks) == 0 {
		return c.fail(task, fmt.Errorf("chunking produced no chunks"))
	}

	c.progress(ctx, task, 70, "Generating embeddings")
	contents := make([]string, len(chunks))
	for i, ch := range chunks {
		contents[i] = ch.Content
	}
	vectors, err := c.deps.Embedder.Embed(ctx, contents)
	if err != nil {
		return c.fail(task, fmt.Errorf("embedding chunks: %w", err))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	c.progress(ctx, task, 80, "Building index")
	if err := c.deps.Index.Replace(ctx, task.Agent.ID, chunks); err != nil {
		return c.fail(task, fmt.Errorf("replacing chunk set: %w", err))
	}

	c.progress(ctx, task, 90, "Finalizing agent")
	update := services.CompiledUpdate{
		Domain:         profile.Domain,
		DomainKeywords: dedupKeywords(profile.DomainKeywords),
		PromptAnalysis: profile,
		ChunkCount:     len(chunks),
		EntityCount:    report.TotalEntries,
		EmbeddingModel: c.deps.Embedder.Model(),
	}
	if err := c.deps.Agents.MarkReady(ctx, task.Agent.ID, update); err != nil {
		return c.fail(task, fmt.Errorf("marking agent ready: %w", err))
	}
	c.invalidate(task.Agent)

	// Terminal writes use a fresh context: the job context may already
	// be cancelled and the completion must still commit.
	if err := c.deps.Jobs.CompleteJob(context.Background(), task.Job.ID); err != nil {
		log.Error("Failed to mark job completed", "error", err)
	}
	c.deps.Bus.Publish(models.ProgressEvent{
		JobID:       task.Job.ID,
		AgentID:     task.Agent.ID,
		Status:      models.JobStatusCompleted,
		Progress:    100,
		CurrentStep: "Compilation complete",
	})

	log.Info("Compilation finished", "chunks", len(chunks), "entries", report.TotalEntries,
		"domain", profile.Domain, "sufficient", report.Sufficient)
	return nil
}

// SweepStuckJobs fails in-progress jobs older than the threshold.
// Implements queue.StuckJobSweeper.
func (c *Compiler) SweepStuckJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	stuck, err := c.deps.Jobs.StuckJobs(ctx, olderThan)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, job := range stuck {
		message := fmt.Sprintf("compilation worker lost: no terminal status after %s", olderThan)
		if err := c.deps.Jobs.FailJob(ctx, job.ID, message); err != nil {
			c.logger.Error("Failed to fail stuck job", "job_id", job.ID, "error", err)
			continue
		}
		if err := c.deps.Agents.UpdateStatus(ctx, job.AgentID, models.AgentStatusFailed, message); err != nil {
			c.logger.Error("Failed to mark agent failed for stuck job", "job_id", job.ID, "error", err)
		}
		c.deps.Bus.Publish(models.ProgressEvent{
			JobID:    job.ID,
			AgentID:  job.AgentID,
			Status:   models.JobStatusFailed,
			Progress: job.Progress,
			Error:    message,
		})
		c.logger.Warn("Stuck job recovered", "job_id", job.ID, "agent_id", job.AgentID)
		recovered++
	}
	return recovered, nil
}

// fail drives the terminal failure path and returns the original
// error for the worker log.
func (c *Compiler) fail(task queue.CompileTask, cause error) error {
	// The job context may be cancelled or timed out; terminal writes
	// must still land.
	ctx := context.Background()
	message := services.TruncateError(cause.Error())

	if err := c.deps.Jobs.FailJob(ctx, task.Job.ID, message); err != nil {
		c.logger.Error("Failed to mark job failed", "job_id", task.Job.ID, "error", err)
	}
	if err := c.deps.Agents.UpdateStatus(ctx, task.Agent.ID, models.AgentStatusFailed, message); err != nil {
		c.logger.Error("Failed to mark agent failed", "agent_id", task.Agent.ID, "error", err)
	}
	c.invalidate(task.Agent)
	c.deps.Bus.Publish(models.ProgressEvent{
		JobID:   task.Job.ID,
		AgentID: task.Agent.ID,
		Status:  models.JobStatusFailed,
		Error:   message,
	})
	return cause
}

func (c *Compiler) progress(ctx context.Context, task queue.CompileTask, pct int, step string) {
	if err := c.deps.Jobs.UpdateProgress(ctx, task.Job.ID, pct, step); err != nil {
		c.logger.Warn("Failed to persist job progress", "job_id", task.Job.ID, "error", err)
	}
	c.deps.Bus.Publish(models.ProgressEvent{
		JobID:       task.Job.ID,
		AgentID:     task.Agent.ID,
		Status:      models.JobStatusInProgress,
		Progress:    pct,
		CurrentStep: step,
	})
}

func (c *Compiler) invalidate(agent *models.Agent) {
	if c.deps.Cache != nil {
		c.deps.Cache.Invalidate(agent.TenantID, agent.Name)
	}
}

// parseSources reads and parses every regular file in dir. Individual
// parse errors become failures; an unreadable directory is fatal.
func (c *Compiler) parseSources(dir string) ([]*ingest.ParsedSource, []ingest.ParseFailure, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading source directory: %w", err)
	}

	var sources []*ingest.ParsedSource
	var failures []ingest.ParseFailure
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			failures = append(failures, ingest.ParseFailure{Filename: entry.Name(), Reason: err.Error()})
			continue
		}
		src, err := c.deps.Parser.Parse(entry.Name(), data)
		if err != nil {
			failures = append(failures, ingest.ParseFailure{Filename: entry.Name(), Reason: err.Error()})
			continue
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 && len(failures) == 0 {
		return nil, nil, fmt.Errorf("source directory %s contains no files", dir)
	}
	return sources, failures, nil
}

func dedupKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		key := strings.ToLower(strings.TrimSpace(kw))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
		if len(out) == maxDomainKeywords {
			break
		}
	}
	return out
}
