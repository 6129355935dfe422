package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/omraval18/nclip/internal/domain"
)

// CreateOrGetInstance inserts a running workflow instance, or returns the
// existing row if the queue redelivered the message. The insert-then-read
// pair relies on the primary key, not on read-modify-write.
func (s *Store) CreateOrGetInstance(ctx context.Context, instanceID, userID, r2Key string) (*domain.WorkflowInstance, error) {
	insert := `
		INSERT INTO workflow_instances (instance_id, user_id, r2_key, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (instance_id) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, insert, instanceID, userID, r2Key, domain.InstanceStatusRunning); err != nil {
		return nil, fmt.Errorf("failed to create workflow instance: %w", err)
	}

	query := `
		SELECT instance_id, user_id, r2_key, status, retry_count, created_at, updated_at
		FROM workflow_instances
		WHERE instance_id = $1
	`

	var inst domain.WorkflowInstance
	if err := s.db.GetContext(ctx, &inst, query, instanceID); err != nil {
		return nil, fmt.Errorf("failed to get workflow instance: %w", err)
	}

	return &inst, nil
}

// SetInstanceStatus records the instance's transition. Terminal rows are
// never moved back to running.
func (s *Store) SetInstanceStatus(ctx context.Context, instanceID, status string) error {
	query := `
		UPDATE workflow_instances
		SET status = $1, updated_at = NOW()
		WHERE instance_id = $2
		  AND status = $3
	`

	if _, err := s.db.ExecContext(ctx, query, status, instanceID, domain.InstanceStatusRunning); err != nil {
		return fmt.Errorf("failed to set instance status: %w", err)
	}

	return nil
}

// IncrementInstanceRetry bumps the retry counter.
func (s *Store) IncrementInstanceRetry(ctx context.Context, instanceID string) error {
	query := `
		UPDATE workflow_instances
		SET retry_count = retry_count + 1, updated_at = NOW()
		WHERE instance_id = $1
	`

	if _, err := s.db.ExecContext(ctx, query, instanceID); err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}

	return nil
}

// GetStep fetches one step memo record, or nil when the step has not been
// attempted yet.
func (s *Store) GetStep(ctx context.Context, instanceID, stepName string) (*domain.StepRecord, error) {
	query := `
		SELECT instance_id, step_name, status, output, attempts, updated_at
		FROM step_records
		WHERE instance_id = $1 AND step_name = $2
	`

	var rec domain.StepRecord
	if err := s.db.GetContext(ctx, &rec, query, instanceID, stepName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get step record: %w", err)
	}

	return &rec, nil
}

// MarkStepDone persists the memo entry that protects the step's side effects
// from re-execution. The output must be stored before the caller proceeds.
func (s *Store) MarkStepDone(ctx context.Context, instanceID, stepName string, output []byte) error {
	query := `
		INSERT INTO step_records (instance_id, step_name, status, output, attempts, updated_at)
		VALUES ($1, $2, $3, $4, 1, NOW())
		ON CONFLICT (instance_id, step_name)
		DO UPDATE SET status = EXCLUDED.status, output = EXCLUDED.output, updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, instanceID, stepName, domain.StepStatusDone, output); err != nil {
		return fmt.Errorf("failed to mark step done: %w", err)
	}

	return nil
}

// RecordStepFailure bumps the attempt counter and marks the step failed so a
// replay re-executes it.
func (s *Store) RecordStepFailure(ctx context.Context, instanceID, stepName string) error {
	query := `
		INSERT INTO step_records (instance_id, step_name, status, attempts, updated_at)
		VALUES ($1, $2, $3, 1, NOW())
		ON CONFLICT (instance_id, step_name)
		DO UPDATE SET status = EXCLUDED.status, attempts = step_records.attempts + 1, updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, instanceID, stepName, domain.StepStatusFailed); err != nil {
		return fmt.Errorf("failed to record step failure: %w", err)
	}

	return nil
}
