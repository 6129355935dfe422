// Package workflow implements the durable job-orchestration core: a fixed
// clip-extraction pipeline executed as memoized steps, with per-user
// single-slot concurrency, a retry-once policy, and credit reconciliation on
// terminal failure.
package workflow

import (
	"context"

	"github.com/omraval18/nclip/internal/domain"
)

// StepStore persists step memo records keyed by (instance_id, step_name).
type StepStore interface {
	GetStep(ctx context.Context, instanceID, stepName string) (*domain.StepRecord, error)
	MarkStepDone(ctx context.Context, instanceID, stepName string, output []byte) error
	RecordStepFailure(ctx context.Context, instanceID, stepName string) error
}

// InstanceStore persists workflow instances.
type InstanceStore interface {
	// CreateOrGetInstance inserts a running instance or returns the existing
	// row, so queue redeliveries converge on one record.
	CreateOrGetInstance(ctx context.Context, instanceID, userID, r2Key string) (*domain.WorkflowInstance, error)
	SetInstanceStatus(ctx context.Context, instanceID, status string) error
	IncrementInstanceRetry(ctx context.Context, instanceID string) error
}

// FileStore mutates uploaded-file records on behalf of the state machine,
// which exclusively owns their status transitions.
type FileStore interface {
	GetFileBySourceKey(ctx context.Context, r2Key string) (*domain.UploadedFile, error)
	SetFileUploaded(ctx context.Context, r2Key string, uploaded bool) error
	SetFileStatus(ctx context.Context, r2Key string, status string) error
}

// ClipStore inserts discovered clip rows, skipping duplicates on the
// (r2_key, uploaded_file_id) uniqueness constraint.
type ClipStore interface {
	UpsertClips(ctx context.Context, clips []domain.Clip) (int, error)
}

// ProjectStore looks up projects scoped to their owner.
type ProjectStore interface {
	GetOwnedProject(ctx context.Context, projectID, ownerID string) (*domain.Project, error)
}

// Ledger issues the idempotent refund on terminal failure. Debits happen at
// admission time in the dispatcher; the machine never debits.
type Ledger interface {
	Refund(ctx context.Context, userID, instanceID string, amount int) (int, error)
}

// ObjectStore is the object-storage surface the pipeline depends on.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	ListClips(ctx context.Context, sourceKey string) ([]string, error)
}

// Processor invokes the external clip-extraction service. Any transport
// error or non-2xx response is a step failure.
type Processor interface {
	Process(ctx context.Context, sourceKey string, maxClips int) error
}
