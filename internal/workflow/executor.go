package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/omraval18/nclip/internal/domain"
	"github.com/omraval18/nclip/internal/metrics"
)

// StepFunc is one unit of work. It must be safe to run zero or more times
// before it first succeeds; once recorded done it is never run again.
type StepFunc func(ctx context.Context) (any, error)

// Executor runs named steps at most-once-recorded per workflow instance.
// Completed steps return their stored output without re-executing, which is
// what makes whole-workflow retries safe for side effects.
type Executor struct {
	steps  StepStore
	logger *slog.Logger
}

// NewExecutor creates an Executor backed by the given step store.
func NewExecutor(steps StepStore, logger *slog.Logger) *Executor {
	return &Executor{
		steps:  steps,
		logger: logger,
	}
}

// Run executes fn under the memo record (instanceID, stepName). If the step
// is already done, the stored output is returned and fn is not called. The
// output is persisted before Run returns, so a crash after Run never repeats
// the step's side effects.
func (e *Executor) Run(ctx context.Context, instanceID, stepName string, fn StepFunc) ([]byte, error) {
	rec, err := e.steps.GetStep(ctx, instanceID, stepName)
	if err != nil {
		return nil, fmt.Errorf("failed to load step record: %w", err)
	}

	if rec != nil && rec.Status == domain.StepStatusDone {
		e.logger.Debug("Step already done, reusing stored output",
			slog.String("instance_id", instanceID),
			slog.String("step", stepName),
		)
		return rec.Output, nil
	}

	start := time.Now()
	out, err := fn(ctx)
	metrics.StepDuration.WithLabelValues(stepName).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.StepFailuresTotal.WithLabelValues(stepName).Inc()
		// Best effort: the attempt counter is bookkeeping, the authoritative
		// signal is the returned error.
		if recErr := e.steps.RecordStepFailure(ctx, instanceID, stepName); recErr != nil {
			e.logger.Warn("Failed to record step failure",
				slog.String("instance_id", instanceID),
				slog.String("step", stepName),
				slog.String("error", recErr.Error()),
			)
		}
		return nil, err
	}

	output, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output of step %s: %w", stepName, err)
	}

	if err := e.steps.MarkStepDone(ctx, instanceID, stepName, output); err != nil {
		// The step's effects happened but were not recorded; the step must
		// tolerate one more execution on replay.
		return nil, fmt.Errorf("failed to persist step %s: %w", stepName, err)
	}

	e.logger.Debug("Step completed",
		slog.String("instance_id", instanceID),
		slog.String("step", stepName),
		slog.Duration("elapsed", time.Since(start)),
	)

	return output, nil
}
