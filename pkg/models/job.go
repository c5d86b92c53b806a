package models

import "time"

// Compilation job statuses. A job is terminal once completed or failed.
const (
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// MaxJobErrorLen caps the persisted error message so provider stack
// traces cannot blow up the row.
const MaxJobErrorLen = 500

// CompilationJob tracks one asynchronous knowledge compilation run.
// Progress is monotonically non-decreasing in [0,100].
type CompilationJob struct {
	ID           string     `json:"job_id"`
	AgentID      string     `json:"agent_id"`
	TenantID     string     `json:"tenant_id"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	CurrentStep  string     `json:"current_step,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has reached a final status.
func (j *CompilationJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// ProgressEvent is one update on a job's progress stream.
type ProgressEvent struct {
	JobID       string    `json:"job_id"`
	AgentID     string    `json:"agent_id"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	CurrentStep string    `json:"current_step,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Terminal reports whether this event closes the stream.
func (e ProgressEvent) Terminal() bool {
	return e.Status == JobStatusCompleted || e.Status == JobStatusFailed
}
