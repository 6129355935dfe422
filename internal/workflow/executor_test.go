package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/omraval18/nclip/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(store *memStore) *Executor {
	return NewExecutor(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExecutor_Run_MemoizesOutput(t *testing.T) {
	store := newMemStore()
	exec := newTestExecutor(store)

	calls := 0
	fn := func(ctx context.Context) (any, error) {
		calls++
		return map[string]int{"clips_found": 3}, nil
	}

	out1, err := exec.Run(context.Background(), "wf-1", "reconcile-clips", fn)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	out2, err := exec.Run(context.Background(), "wf-1", "reconcile-clips", fn)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "done step must not re-run")
	assert.Equal(t, out1, out2)

	var decoded map[string]int
	require.NoError(t, json.Unmarshal(out2, &decoded))
	assert.Equal(t, 3, decoded["clips_found"])
}

func TestExecutor_Run_ScopedByInstance(t *testing.T) {
	store := newMemStore()
	exec := newTestExecutor(store)

	calls := 0
	fn := func(ctx context.Context) (any, error) {
		calls++
		return nil, nil
	}

	_, err := exec.Run(context.Background(), "wf-1", "mark-uploaded", fn)
	require.NoError(t, err)
	_, err = exec.Run(context.Background(), "wf-2", "mark-uploaded", fn)
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "memo records are per instance")
}

func TestExecutor_Run_FailureIsNotMemoized(t *testing.T) {
	store := newMemStore()
	exec := newTestExecutor(store)

	calls := 0
	stepErr := errors.New("transient failure")
	fn := func(ctx context.Context) (any, error) {
		calls++
		if calls == 1 {
			return nil, stepErr
		}
		return "ok", nil
	}

	_, err := exec.Run(context.Background(), "wf-1", "invoke-processor", fn)
	require.ErrorIs(t, err, stepErr)

	rec, err := store.GetStep(context.Background(), "wf-1", "invoke-processor")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.StepStatusFailed, rec.Status)
	assert.Equal(t, 1, rec.Attempts)

	// The failed step runs again on the next attempt.
	out, err := exec.Run(context.Background(), "wf-1", "invoke-processor", fn)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.JSONEq(t, `"ok"`, string(out))
}

func TestExecutor_Run_PersistFailureSurfaces(t *testing.T) {
	store := newMemStore()
	store.failMarkStepDone = errors.New("db down")
	exec := newTestExecutor(store)

	_, err := exec.Run(context.Background(), "wf-1", "finalize", func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist step")

	// Nothing was recorded done, so replay re-runs the step.
	store.failMarkStepDone = nil
	calls := 0
	_, err = exec.Run(context.Background(), "wf-1", "finalize", func(ctx context.Context) (any, error) {
		calls++
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
