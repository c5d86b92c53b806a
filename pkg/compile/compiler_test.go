package compile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundline/groundline/pkg/analyze"
	"github.com/groundline/groundline/pkg/config"
	"github.com/groundline/groundline/pkg/events"
	"github.com/groundline/groundline/pkg/index"
	"github.com/groundline/groundline/pkg/ingest"
	"github.com/groundline/groundline/pkg/llm"
	"github.com/groundline/groundline/pkg/models"
	"github.com/groundline/groundline/pkg/queue"
	"github.com/groundline/groundline/pkg/services"
)

type fakeAgentStore struct {
	mu       sync.Mutex
	statuses []string
	errorMsg string
	ready    *services.CompiledUpdate
}

func (f *fakeAgentStore) UpdateStatus(_ context.Context, _, status, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	f.errorMsg = errorMessage
	return nil
}

func (f *fakeAgentStore) MarkReady(_ context.Context, _ string, upd services.CompiledUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, models.AgentStatusReady)
	f.ready = &upd
	return nil
}

type fakeJobStore struct {
	mu        sync.Mutex
	progress  []int
	steps     []string
	completed bool
	failedMsg string
	stuck     []*models.CompilationJob
}

func (f *fakeJobStore) UpdateProgress(_ context.Context, _ string, progress int, step string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, progress)
	f.steps = append(f.steps, step)
	return nil
}

func (f *fakeJobStore) CompleteJob(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = true
	return nil
}

func (f *fakeJobStore) FailJob(_ context.Context, _, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedMsg = message
	return nil
}

func (f *fakeJobStore) StuckJobs(context.Context, time.Duration) ([]*models.CompilationJob, error) {
	return f.stuck, nil
}

type fakeInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeInvalidator) Invalidate(string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

// erroringLLM forces the analyzer onto its lexical fallback.
type erroringLLM struct{}

func (erroringLLM) Complete(context.Context, llm.Request) (string, error) {
	return "", errors.New("provider unavailable")
}
func (erroringLLM) Transcribe(context.Context, string, []byte) (string, error) {
	return "", errors.New("provider unavailable")
}
func (erroringLLM) DescribeImage(context.Context, string) (string, error) {
	return "", errors.New("provider unavailable")
}

type fixedEmbedder struct {
	err error
}

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func (f *fixedEmbedder) Model() string  { return "test-embedder" }
func (f *fixedEmbedder) Dimension() int { return 4 }

type compilerFixture struct {
	compiler *Compiler
	agents   *fakeAgentStore
	jobs     *fakeJobStore
	bus      *events.ProgressBus
	cache    *fakeInvalidator
	index    *index.Memory
}

func newCompilerFixture(embedErr error) *compilerFixture {
	cfg := config.Default()
	f := &compilerFixture{
		agents: &fakeAgentStore{},
		jobs:   &fakeJobStore{},
		bus:    events.NewProgressBus(),
		cache:  &fakeInvalidator{},
		index:  index.NewMemory(),
	}
	f.compiler = NewCompiler(Deps{
		Agents:      f.agents,
		Jobs:        f.jobs,
		Bus:         f.bus,
		Analyzer:    analyze.NewAnalyzer(erroringLLM{}),
		Parser:      ingest.NewParser(),
		Chunker:     ingest.NewChunker(cfg.Chunker),
		Embedder:    &fixedEmbedder{err: embedErr},
		Index:       f.index,
		Cache:       f.cache,
		Sufficiency: cfg.Sufficiency,
	})
	return f
}

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func compileTask(sourceDir string) queue.CompileTask {
	return queue.CompileTask{
		Job:       &models.CompilationJob{ID: "job-1", AgentID: "agent-1", TenantID: "default", Status: models.JobStatusInProgress},
		Agent:     &models.Agent{ID: "agent-1", TenantID: "default", Name: "chef", SystemPrompt: "You are a cooking assistant for recipes."},
		SourceDir: sourceDir,
	}
}

func TestExecute_HappyPath(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "menu.csv", "dish,ingredients\ncaesar salad,romaine parmesan croutons\ncarbonara,pasta eggs pancetta\n")

	f := newCompilerFixture(nil)
	stream, cancel := f.bus.Subscribe("job-1")
	defer cancel()

	err := f.compiler.Execute(context.Background(), compileTask(dir))
	require.NoError(t, err)

	// Agent went in_progress then ready with the compiled metadata.
	assert.Equal(t, []string{models.AgentStatusInProgress, models.AgentStatusReady}, f.agents.statuses)
	require.NotNil(t, f.agents.ready)
	assert.Equal(t, "cooking", f.agents.ready.Domain)
	assert.Equal(t, 2, f.agents.ready.ChunkCount)
	assert.Equal(t, 2, f.agents.ready.EntityCount)
	assert.Equal(t, "test-embedder", f.agents.ready.EmbeddingModel)

	// Progress milestones never regress and the job completed.
	require.NotEmpty(t, f.jobs.progress)
	assert.Equal(t, 10, f.jobs.progress[0])
	for i := 1; i < len(f.jobs.progress); i++ {
		assert.GreaterOrEqual(t, f.jobs.progress[i], f.jobs.progress[i-1])
	}
	assert.Equal(t, 90, f.jobs.progress[len(f.jobs.progress)-1])
	assert.True(t, f.jobs.completed)
	assert.Empty(t, f.jobs.failedMsg)

	// Chunks landed in the index.
	count, err := f.index.Count(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Cache invalidated so the engine reloads the ready agent.
	assert.Equal(t, 1, f.cache.calls)

	// Terminal event closed the stream.
	var last models.ProgressEvent
	for ev := range stream {
		last = ev
	}
	assert.Equal(t, models.JobStatusCompleted, last.Status)
	assert.Equal(t, 100, last.Progress)
}

func TestExecute_InsufficientCorpusStillCompiles(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "note.txt", "Caesar salad has romaine lettuce and parmesan cheese on top.")

	f := newCompilerFixture(nil)
	err := f.compiler.Execute(context.Background(), compileTask(dir))
	require.NoError(t, err)

	assert.True(t, f.jobs.completed)
	require.NotNil(t, f.agents.ready)
	assert.Equal(t, 1, f.agents.ready.ChunkCount)
}

func TestExecute_EmptySourceDirFails(t *testing.T) {
	f := newCompilerFixture(nil)
	stream, cancel := f.bus.Subscribe("job-1")
	defer cancel()

	err := f.compiler.Execute(context.Background(), compileTask(t.TempDir()))
	require.Error(t, err)

	assert.False(t, f.jobs.completed)
	assert.NotEmpty(t, f.jobs.failedMsg)
	assert.Contains(t, f.agents.statuses, models.AgentStatusFailed)

	var last models.ProgressEvent
	for ev := range stream {
		last = ev
	}
	assert.Equal(t, models.JobStatusFailed, last.Status)
	assert.NotEmpty(t, last.Error)
}

func TestExecute_EmbeddingFailureFailsJob(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "menu.csv", "dish,ingredients\ncaesar salad,romaine\n")

	f := newCompilerFixture(errors.New("embedding service down"))
	err := f.compiler.Execute(context.Background(), compileTask(dir))
	require.Error(t, err)

	assert.Contains(t, f.jobs.failedMsg, "embedding service down")
	assert.Contains(t, f.agents.statuses, models.AgentStatusFailed)
	assert.Equal(t, f.jobs.failedMsg, f.agents.errorMsg)
}

func TestExecute_FailureMessageTruncated(t *testing.T) {
	f := newCompilerFixture(nil)
	task := compileTask("/nonexistent/source/dir")
	task.Job.ID = "job-1"

	err := f.compiler.Execute(context.Background(), task)
	require.Error(t, err)
	assert.LessOrEqual(t, len(f.jobs.failedMsg), models.MaxJobErrorLen)
}

func TestSweepStuckJobs(t *testing.T) {
	f := newCompilerFixture(nil)
	f.jobs.stuck = []*models.CompilationJob{
		{ID: "job-9", AgentID: "agent-9", Status: models.JobStatusInProgress, Progress: 40},
	}
	stream, cancel := f.bus.Subscribe("job-9")
	defer cancel()

	recovered, err := f.compiler.SweepStuckJobs(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	assert.Contains(t, f.jobs.failedMsg, "compilation worker lost")
	assert.Contains(t, f.agents.statuses, models.AgentStatusFailed)

	var last models.ProgressEvent
	for ev := range stream {
		last = ev
	}
	assert.Equal(t, models.JobStatusFailed, last.Status)
}

func TestDedupKeywords(t *testing.T) {
	got := dedupKeywords([]string{"cooking", "Recipe", "recipe", "  ", "baking"})
	assert.Equal(t, []string{"cooking", "Recipe", "baking"}, got)

	many := make([]string, maxDomainKeywords+20)
	for i := range many {
		many[i] = "kw" + string(rune('a'+i%26)) + string(rune('a'+i/26))
	}
	assert.LessOrEqual(t, len(dedupKeywords(many)), maxDomainKeywords)
}
