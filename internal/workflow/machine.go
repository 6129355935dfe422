package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/omraval18/nclip/internal/domain"
	"github.com/omraval18/nclip/internal/metrics"
)

// Step names, in execution order.
const (
	StepValidate        = "validate-and-check"
	StepMarkUploaded    = "mark-uploaded"
	StepMarkProcessing  = "mark-processing"
	StepInvokeProcessor = "invoke-processor"
	StepReconcileClips  = "reconcile-clips"
	StepFinalize        = "finalize"
)

// DefaultMaxRetries is the number of whole-workflow retries after the first
// attempt. Memoized steps are not re-executed on retry.
const DefaultMaxRetries = 1

// Config wires a Machine.
type Config struct {
	Instances  InstanceStore
	Steps      StepStore
	Files      FileStore
	Clips      ClipStore
	Projects   ProjectStore
	Ledger     Ledger
	Objects    ObjectStore
	Processor  Processor
	Logger     *slog.Logger
	MaxRetries int // 0 means DefaultMaxRetries; <0 disables retries
	CreditCost int // <=0 means domain.CreditCostClipJob
}

// Machine drives one job request through the fixed step sequence. It is the
// sole authority for status transitions and for issuing the terminal refund.
type Machine struct {
	exec       *Executor
	instances  InstanceStore
	files      FileStore
	clips      ClipStore
	projects   ProjectStore
	ledger     Ledger
	objects    ObjectStore
	processor  Processor
	logger     *slog.Logger
	maxRetries int
	creditCost int
}

// NewMachine creates a Machine from cfg.
func NewMachine(cfg *Config) *Machine {
	maxRetries := cfg.MaxRetries
	switch {
	case maxRetries == 0:
		maxRetries = DefaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}
	creditCost := cfg.CreditCost
	if creditCost <= 0 {
		creditCost = domain.CreditCostClipJob
	}
	return &Machine{
		exec:       NewExecutor(cfg.Steps, cfg.Logger),
		instances:  cfg.Instances,
		files:      cfg.Files,
		clips:      cfg.Clips,
		projects:   cfg.Projects,
		ledger:     cfg.Ledger,
		objects:    cfg.Objects,
		processor:  cfg.Processor,
		logger:     cfg.Logger,
		maxRetries: maxRetries,
		creditCost: creditCost,
	}
}

// Run executes the workflow for req until it reaches a terminal state.
// Redelivery of an already-terminal instance is a no-op. A non-nil return
// means the terminal bookkeeping itself could not be persisted and the
// message should be redelivered; replay is safe because completed steps are
// memoized and the refund is idempotent.
func (m *Machine) Run(ctx context.Context, req domain.JobRequest) error {
	inst, err := m.instances.CreateOrGetInstance(ctx, req.InstanceID, req.UserID, req.SourceKey)
	if err != nil {
		return fmt.Errorf("failed to create workflow instance: %w", err)
	}

	if inst.Terminal() {
		m.logger.Info("Workflow instance already terminal, skipping",
			slog.String("instance_id", req.InstanceID),
			slog.String("status", inst.Status),
		)
		return nil
	}

	metrics.ActiveWorkflows.Inc()
	defer metrics.ActiveWorkflows.Dec()

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = m.runAttempt(ctx, req)
		if lastErr == nil {
			if err := m.instances.SetInstanceStatus(ctx, req.InstanceID, domain.InstanceStatusSucceeded); err != nil {
				return fmt.Errorf("failed to mark instance succeeded: %w", err)
			}
			metrics.JobsProcessedTotal.WithLabelValues(domain.InstanceStatusSucceeded).Inc()
			m.logger.Info("Workflow succeeded",
				slog.String("instance_id", req.InstanceID),
				slog.String("r2_key", req.SourceKey),
				slog.Int("attempt", attempt+1),
			)
			return nil
		}

		if domain.IsNonRetriable(lastErr) || attempt >= m.maxRetries {
			break
		}

		m.logger.Warn("Workflow attempt failed, retrying",
			slog.String("instance_id", req.InstanceID),
			slog.Int("attempt", attempt+1),
			slog.String("error", lastErr.Error()),
		)
		metrics.WorkflowRetriesTotal.Inc()
		if err := m.instances.IncrementInstanceRetry(ctx, req.InstanceID); err != nil {
			m.logger.Warn("Failed to bump retry count",
				slog.String("instance_id", req.InstanceID),
				slog.String("error", err.Error()),
			)
		}
	}

	return m.failTerminally(ctx, req, lastErr)
}

// runAttempt runs the step sequence once. Steps already recorded done are
// skipped by the executor.
func (m *Machine) runAttempt(ctx context.Context, req domain.JobRequest) error {
	if _, err := m.exec.Run(ctx, req.InstanceID, StepValidate, func(ctx context.Context) (any, error) {
		return m.validateAndCheck(ctx, &req)
	}); err != nil {
		return err
	}

	if _, err := m.exec.Run(ctx, req.InstanceID, StepMarkUploaded, func(ctx context.Context) (any, error) {
		return nil, m.files.SetFileUploaded(ctx, req.SourceKey, true)
	}); err != nil {
		return err
	}

	if _, err := m.exec.Run(ctx, req.InstanceID, StepMarkProcessing, func(ctx context.Context) (any, error) {
		return nil, m.files.SetFileStatus(ctx, req.SourceKey, domain.FileStatusProcessing)
	}); err != nil {
		return err
	}

	if _, err := m.exec.Run(ctx, req.InstanceID, StepInvokeProcessor, func(ctx context.Context) (any, error) {
		if err := m.processor.Process(ctx, req.SourceKey, req.MaxClips); err != nil {
			// Surface the failure to pollers immediately; the refund, if this
			// attempt turns out to be the last, is issued by the terminal
			// hook only, so a successful retry keeps the reservation.
			if stErr := m.files.SetFileStatus(ctx, req.SourceKey, domain.FileStatusFailed); stErr != nil {
				m.logger.Warn("Failed to set file status after processor error",
					slog.String("instance_id", req.InstanceID),
					slog.String("error", stErr.Error()),
				)
			}
			return nil, fmt.Errorf("processor call failed: %w", err)
		}
		return nil, nil
	}); err != nil {
		return err
	}

	out, err := m.exec.Run(ctx, req.InstanceID, StepReconcileClips, func(ctx context.Context) (any, error) {
		return m.reconcileClips(ctx, &req)
	})
	if err != nil {
		return err
	}

	var reconciled reconcileOutput
	if err := json.Unmarshal(out, &reconciled); err != nil {
		return fmt.Errorf("failed to decode reconcile output: %w", err)
	}

	if _, err := m.exec.Run(ctx, req.InstanceID, StepFinalize, func(ctx context.Context) (any, error) {
		if reconciled.ClipsFound == 0 {
			// Retrying cannot conjure clips the processor never produced.
			return nil, domain.NewNonRetriable(domain.ErrNoClips)
		}
		return nil, m.files.SetFileStatus(ctx, req.SourceKey, domain.FileStatusCompleted)
	}); err != nil {
		return err
	}

	return nil
}

type validateOutput struct {
	ProjectID string `json:"project_id"`
}

func (m *Machine) validateAndCheck(ctx context.Context, req *domain.JobRequest) (*validateOutput, error) {
	if err := req.Validate(); err != nil {
		return nil, domain.NewNonRetriable(fmt.Errorf("invalid job payload: %w", err))
	}

	project, err := m.projects.GetOwnedProject(ctx, req.ProjectID, req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrProjectNotFound) {
			return nil, domain.NewNonRetriable(err)
		}
		return nil, fmt.Errorf("project lookup failed: %w", err)
	}

	exists, err := m.objects.Exists(ctx, req.SourceKey)
	if err != nil {
		return nil, fmt.Errorf("object existence check failed: %w", err)
	}
	if !exists {
		return nil, domain.NewNonRetriable(domain.ErrObjectMissing)
	}

	return &validateOutput{ProjectID: project.ID}, nil
}

type reconcileOutput struct {
	ClipsFound int `json:"clips_found"`
}

func (m *Machine) reconcileClips(ctx context.Context, req *domain.JobRequest) (*reconcileOutput, error) {
	keys, err := m.objects.ListClips(ctx, req.SourceKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list clips: %w", err)
	}

	if len(keys) == 0 {
		return &reconcileOutput{ClipsFound: 0}, nil
	}

	file, err := m.files.GetFileBySourceKey(ctx, req.SourceKey)
	if err != nil {
		if errors.Is(err, domain.ErrFileNotFound) {
			return nil, domain.NewNonRetriable(err)
		}
		return nil, fmt.Errorf("uploaded file lookup failed: %w", err)
	}

	clips := make([]domain.Clip, 0, len(keys))
	for _, key := range keys {
		clips = append(clips, domain.Clip{
			R2Key:          key,
			UserID:         req.UserID,
			UploadedFileID: file.ID,
		})
	}

	inserted, err := m.clips.UpsertClips(ctx, clips)
	if err != nil {
		return nil, fmt.Errorf("failed to store clips: %w", err)
	}

	m.logger.Info("Clips reconciled",
		slog.String("instance_id", req.InstanceID),
		slog.Int("found", len(keys)),
		slog.Int("inserted", inserted),
	)

	return &reconcileOutput{ClipsFound: len(keys)}, nil
}

// failTerminally is the terminal failure hook: best-effort file status, the
// single idempotent refund, and the instance's final transition. It fires at
// most once effectively per instance; the refund key makes re-entry safe.
func (m *Machine) failTerminally(ctx context.Context, req domain.JobRequest, cause error) error {
	m.logger.Error("Workflow failed terminally",
		slog.String("instance_id", req.InstanceID),
		slog.String("r2_key", req.SourceKey),
		slog.Bool("non_retriable", domain.IsNonRetriable(cause)),
		slog.String("error", cause.Error()),
	)

	if err := m.files.SetFileStatus(ctx, req.SourceKey, domain.FileStatusFailed); err != nil {
		return fmt.Errorf("terminal failure: failed to set file status: %w", err)
	}

	if _, err := m.ledger.Refund(ctx, req.UserID, req.InstanceID, m.creditCost); err != nil {
		return fmt.Errorf("terminal failure: refund failed: %w", err)
	}

	if err := m.instances.SetInstanceStatus(ctx, req.InstanceID, domain.InstanceStatusFailed); err != nil {
		return fmt.Errorf("terminal failure: failed to mark instance failed: %w", err)
	}

	metrics.JobsProcessedTotal.WithLabelValues(domain.InstanceStatusFailed).Inc()
	return nil
}
