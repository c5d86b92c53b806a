package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groundline/groundline/pkg/database"
	"github.com/groundline/groundline/pkg/models"
)

// JobService manages compilation job records. At most one in-progress
// job exists per agent, enforced by a partial unique index.
type JobService struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewJobService creates a new JobService.
func NewJobService(client *database.Client) *JobService {
	return &JobService{
		pool:   client.Pool(),
		logger: slog.With("component", "job_service"),
	}
}

// CreateJob registers a new in-progress compilation job for an agent.
// A second active job for the same agent returns
// ErrCompilationInProgress.
func (s *JobService) CreateJob(ctx context.Context, agentID, tenantID string) (*models.CompilationJob, error) {
	job := &models.CompilationJob{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		TenantID:  tenantID,
		Status:    models.JobStatusInProgress,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO compilation_jobs (id, agent_id, tenant_id, status, progress, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)`,
		job.ID, job.AgentID, job.TenantID, job.Status, job.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrCompilationInProgress
		}
		return nil, fmt.Errorf("failed to create compilation job: %w", err)
	}

	s.logger.Info("Compilation job created", "job_id", job.ID, "agent_id", agentID)
	return job, nil
}

const jobColumns = `id, agent_id, tenant_id, status, progress,
	current_step, error_message, created_at, completed_at`

// GetJob fetches a job by ID, scoped to its tenant.
func (s *JobService) GetJob(ctx context.Context, tenantID, jobID string) (*models.CompilationJob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM compilation_jobs WHERE tenant_id = $1 AND id = $2`, tenantID, jobID)
	return scanJob(row)
}

// LatestJob fetches an agent's most recent job.
func (s *JobService) LatestJob(ctx context.Context, agentID string) (*models.CompilationJob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM compilation_jobs WHERE agent_id = $1
		ORDER BY created_at DESC LIMIT 1`, agentID)
	return scanJob(row)
}

// UpdateProgress advances a job's progress and step label. Progress
// never moves backwards: concurrent or delayed writers cannot regress
// the reported value.
func (s *JobService) UpdateProgress(ctx context.Context, jobID string, progress int, step string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE compilation_jobs
		SET progress = GREATEST(progress, $2), current_step = $3
		WHERE id = $1 AND status = $4`,
		jobID, progress, step, models.JobStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteJob marks a job completed at progress 100.
func (s *JobService) CompleteJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE compilation_jobs
		SET status = $2, progress = 100, completed_at = now()
		WHERE id = $1 AND status = $3`,
		jobID, models.JobStatusCompleted, models.JobStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob marks a job failed with a truncated error message.
func (s *JobService) FailJob(ctx context.Context, jobID, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE compilation_jobs
		SET status = $2, error_message = $3, completed_at = now()
		WHERE id = $1 AND status = $4`,
		jobID, models.JobStatusFailed, TruncateError(message), models.JobStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// StuckJobs returns in-progress jobs older than the threshold. These
// usually mean a worker died mid-compilation.
func (s *JobService) StuckJobs(ctx context.Context, olderThan time.Duration) ([]*models.CompilationJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM compilation_jobs
		WHERE status = $1 AND created_at < now() - make_interval(secs => $2)
		ORDER BY created_at`,
		models.JobStatusInProgress, olderThan.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.CompilationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// TruncateError caps a persisted error message at
// models.MaxJobErrorLen.
func TruncateError(message string) string {
	if len(message) > models.MaxJobErrorLen {
		return message[:models.MaxJobErrorLen]
	}
	return message
}

func scanJob(row rowScanner) (*models.CompilationJob, error) {
	var (
		job          models.CompilationJob
		currentStep  *string
		errorMessage *string
	)
	err := row.Scan(
		&job.ID, &job.AgentID, &job.TenantID, &job.Status, &job.Progress,
		&currentStep, &errorMessage, &job.CreatedAt, &job.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	if currentStep != nil {
		job.CurrentStep = *currentStep
	}
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	return &job, nil
}
