// Package queue provides the bounded worker pool that runs
// compilation jobs in the background.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/groundline/groundline/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrNoTasksAvailable indicates the task queue is empty.
	ErrNoTasksAvailable = errors.New("no tasks available")

	// ErrQueueFull indicates the bounded task queue cannot accept more work.
	ErrQueueFull = errors.New("compilation queue is full")
)

// CompileTask is one queued compilation run. The job row already
// exists in status in_progress when the task is enqueued.
type CompileTask struct {
	Job   *models.CompilationJob
	Agent *models.Agent
	// SourceDir holds the uploaded source files for this run.
	SourceDir string
}

// CompileExecutor owns the entire compilation lifecycle: parsing,
// chunking, embedding, index build, progress milestones, and the
// terminal job and agent updates. The worker only handles dequeueing,
// the job timeout, and cancellation.
type CompileExecutor interface {
	Execute(ctx context.Context, task CompileTask) error
}

// StuckJobSweeper fails jobs whose worker died mid-compilation.
// Implemented by the compile package.
type StuckJobSweeper interface {
	SweepStuckJobs(ctx context.Context, olderThan time.Duration) (int, error)
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy      bool           `json:"is_healthy"`
	ActiveWorkers  int            `json:"active_workers"`
	TotalWorkers   int            `json:"total_workers"`
	ActiveJobs     int            `json:"active_jobs"`
	QueueDepth     int            `json:"queue_depth"`
	QueueCapacity  int            `json:"queue_capacity"`
	WorkerStats    []WorkerHealth `json:"worker_stats"`
	LastStuckScan  time.Time      `json:"last_stuck_scan"`
	StuckRecovered int            `json:"stuck_recovered"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"` // "idle" or "working"
	CurrentJobID  string    `json:"current_job_id,omitempty"`
	JobsProcessed int       `json:"jobs_processed"`
	LastActivity  time.Time `json:"last_activity"`
}
