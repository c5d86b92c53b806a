package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/groundline/groundline/pkg/config"
)

// stuckScanInterval is how often the pool sweeps for jobs whose worker
// died mid-compilation.
const stuckScanInterval = 5 * time.Minute

// WorkerPool manages a pool of compilation workers over a bounded
// in-process task queue.
type WorkerPool struct {
	config   config.QueueConfig
	executor CompileExecutor
	sweeper  StuckJobSweeper
	tasks    chan CompileTask
	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Job cancel registry: job_id → cancel function
	activeJobs map[string]context.CancelFunc
	mu         sync.RWMutex
	started    bool

	// Stuck-job sweep state
	sweepMu        sync.Mutex
	lastStuckScan  time.Time
	stuckRecovered int
}

// NewWorkerPool creates a new worker pool. sweeper may be nil (stuck
// job recovery disabled).
func NewWorkerPool(cfg config.QueueConfig, executor CompileExecutor, sweeper StuckJobSweeper) *WorkerPool {
	if executor == nil {
		panic("queue.NewWorkerPool: executor is nil")
	}
	return &WorkerPool{
		config:     cfg,
		executor:   executor,
		sweeper:    sweeper,
		tasks:      make(chan CompileTask, cfg.MaxConcurrentJobs),
		workers:    make([]*Worker, 0, cfg.WorkerCount),
		stopCh:     make(chan struct{}),
		activeJobs: make(map[string]context.CancelFunc),
	}
}

// Start spawns worker goroutines and the stuck-job sweep loop.
// It is safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true

	slog.Info("Starting worker pool", "worker_count", p.config.WorkerCount,
		"queue_capacity", cap(p.tasks))

	for i := 0; i < p.config.WorkerCount; i++ {
		worker := NewWorker(fmt.Sprintf("worker-%d", i), p.config, p.tasks, p.executor, p)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	if p.sweeper != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runStuckJobSweep(ctx)
		}()
	}

	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// Workers finish their current jobs before exiting.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")

	active := p.getActiveJobIDs()
	if len(active) > 0 {
		slog.Info("Waiting for active compilations to complete",
			"count", len(active), "job_ids", active)
	}

	for _, worker := range p.workers {
		worker.Stop()
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("Worker pool stopped gracefully")
}

// Enqueue submits a compilation task. The queue is bounded; a full
// queue rejects immediately so the API can surface backpressure.
func (p *WorkerPool) Enqueue(task CompileTask) error {
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// RegisterJob stores a cancel function for manual cancellation.
func (p *WorkerPool) RegisterJob(jobID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeJobs[jobID] = cancel
}

// UnregisterJob removes the cancel function when processing ends.
func (p *WorkerPool) UnregisterJob(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeJobs, jobID)
}

// CancelJob triggers context cancellation for a running job.
// Returns true if the job was found and cancelled.
func (p *WorkerPool) CancelJob(jobID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeJobs[jobID]; ok {
		cancel()
		return true
	}
	return false
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	p.mu.RLock()
	activeJobs := len(p.activeJobs)
	p.mu.RUnlock()

	p.sweepMu.Lock()
	lastScan := p.lastStuckScan
	recovered := p.stuckRecovered
	p.sweepMu.Unlock()

	return &PoolHealth{
		IsHealthy:      len(p.workers) > 0,
		ActiveWorkers:  activeWorkers,
		TotalWorkers:   len(p.workers),
		ActiveJobs:     activeJobs,
		QueueDepth:     len(p.tasks),
		QueueCapacity:  cap(p.tasks),
		WorkerStats:    workerStats,
		LastStuckScan:  lastScan,
		StuckRecovered: recovered,
	}
}

// runStuckJobSweep periodically fails jobs whose worker died without
// reaching a terminal status. The sweep is idempotent.
func (p *WorkerPool) runStuckJobSweep(ctx context.Context) {
	ticker := time.NewTicker(stuckScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			recovered, err := p.sweeper.SweepStuckJobs(ctx, p.config.StuckThreshold)
			if err != nil {
				slog.Error("Stuck job sweep failed", "error", err)
			}
			p.sweepMu.Lock()
			p.lastStuckScan = time.Now()
			p.stuckRecovered += recovered
			p.sweepMu.Unlock()
		}
	}
}

// getActiveJobIDs returns IDs of currently running jobs (for logging).
func (p *WorkerPool) getActiveJobIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	jobs := make([]string, 0, len(p.activeJobs))
	for id := range p.activeJobs {
		jobs = append(jobs, id)
	}
	return jobs
}
