package domain

import (
	"fmt"
	"time"
)

// Workflow instance status constants
const (
	InstanceStatusRunning   = "running"
	InstanceStatusSucceeded = "succeeded"
	InstanceStatusFailed    = "failed"
)

// Step record status constants
const (
	StepStatusPending = "pending"
	StepStatusDone    = "done"
	StepStatusFailed  = "failed"
)

// CreditCostClipJob is the reservation debited per admitted clip job and
// refunded on terminal failure.
const CreditCostClipJob = 1

// DefaultMaxClips is used when a job request leaves max_clips unset.
const DefaultMaxClips = 1

// JobRequest is the immutable input of one clip-extraction job. It is
// validated once at admission and carried verbatim on the queue.
type JobRequest struct {
	InstanceID string `json:"instance_id"`
	UserID     string `json:"user_id"`
	SourceKey  string `json:"s3_key"`
	MaxClips   int    `json:"max_clips"`
	ProjectID  string `json:"project_id"`
}

// Validate checks the request payload and applies the max_clips default.
// The returned error indicates a request that can never become valid.
func (r *JobRequest) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if r.SourceKey == "" {
		return fmt.Errorf("%w: s3_key is required", ErrInvalidRequest)
	}
	if r.ProjectID == "" {
		return fmt.Errorf("%w: project_id is required", ErrInvalidRequest)
	}
	if r.MaxClips < 0 {
		return fmt.Errorf("%w: max_clips must be positive, got %d", ErrInvalidRequest, r.MaxClips)
	}
	if r.MaxClips == 0 {
		r.MaxClips = DefaultMaxClips
	}
	return nil
}

// WorkflowInstance tracks one execution of the clip pipeline for one job
// request. Terminal states (succeeded, failed) are immutable.
type WorkflowInstance struct {
	InstanceID string    `db:"instance_id"`
	UserID     string    `db:"user_id"`
	R2Key      string    `db:"r2_key"`
	Status     string    `db:"status"`
	RetryCount int       `db:"retry_count"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Terminal reports whether the instance has reached a final state.
func (i *WorkflowInstance) Terminal() bool {
	return i.Status == InstanceStatusSucceeded || i.Status == InstanceStatusFailed
}

// StepRecord is the memo entry that makes a workflow instance restart-safe.
// A step with status done is never re-executed; its stored output is reused.
type StepRecord struct {
	InstanceID string    `db:"instance_id"`
	StepName   string    `db:"step_name"`
	Status     string    `db:"status"`
	Output     []byte    `db:"output"`
	Attempts   int       `db:"attempts"`
	UpdatedAt  time.Time `db:"updated_at"`
}
