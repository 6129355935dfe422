package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/omraval18/nclip/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUserID    = "user-1"
	testProjectID = "project-1"
	testSourceKey = "uploads/user-1/file-1/video.mp4"
	testFileID    = "file-1"
)

type machineEnv struct {
	store     *memStore
	ledger    *memLedger
	objects   *memObjects
	processor *fakeProcessor
	machine   *Machine
}

func newMachineEnv(t *testing.T) *machineEnv {
	t.Helper()

	env := &machineEnv{
		store:     newMemStore(),
		ledger:    newMemLedger(),
		objects:   newMemObjects(),
		processor: &fakeProcessor{},
	}

	env.store.addProject(domain.Project{ID: testProjectID, OwnerID: testUserID})
	env.store.addFile(domain.UploadedFile{
		ID:        testFileID,
		R2Key:     testSourceKey,
		Status:    domain.FileStatusQueued,
		UserID:    testUserID,
		ProjectID: testProjectID,
	})
	env.ledger.setBalance(testUserID, 5)
	env.objects.putObject(testSourceKey)

	env.machine = NewMachine(&Config{
		Instances: env.store,
		Steps:     env.store,
		Files:     env.store,
		Clips:     env.store,
		Projects:  env.store,
		Ledger:    env.ledger,
		Objects:   env.objects,
		Processor: env.processor,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	return env
}

// admit reserves the credit the way the dispatcher does before enqueueing.
func (e *machineEnv) admit(t *testing.T, instanceID string) domain.JobRequest {
	t.Helper()

	req := domain.JobRequest{
		InstanceID: instanceID,
		UserID:     testUserID,
		SourceKey:  testSourceKey,
		MaxClips:   3,
		ProjectID:  testProjectID,
	}
	_, err := e.ledger.Debit(context.Background(), req.UserID, req.InstanceID, domain.CreditCostClipJob)
	require.NoError(t, err)
	return req
}

func TestMachine_Run_Success(t *testing.T) {
	env := newMachineEnv(t)
	env.objects.putClips(testSourceKey,
		"uploads/user-1/file-1/clip-001.mp4",
		"uploads/user-1/file-1/clip-002.mp4",
		"uploads/user-1/file-1/clip-003.mp4",
	)

	req := env.admit(t, "wf-1")
	require.Equal(t, 4, env.ledger.balance(testUserID))

	err := env.machine.Run(context.Background(), req)
	require.NoError(t, err)

	inst := env.store.instance("wf-1")
	require.NotNil(t, inst)
	assert.Equal(t, domain.InstanceStatusSucceeded, inst.Status)
	assert.Equal(t, 0, inst.RetryCount)

	file := env.store.file(testSourceKey)
	assert.True(t, file.Uploaded)
	assert.Equal(t, domain.FileStatusCompleted, file.Status)

	assert.Equal(t, 3, env.store.clipCount())
	assert.Equal(t, 1, env.processor.callCount())

	// Reservation is kept on success.
	assert.Equal(t, 4, env.ledger.balance(testUserID))
	assert.Equal(t, 0, env.ledger.refundCount())
}

func TestMachine_Run_SourceObjectMissing(t *testing.T) {
	env := newMachineEnv(t)
	env.objects = newMemObjects() // no source object
	env.machine = NewMachine(&Config{
		Instances: env.store,
		Steps:     env.store,
		Files:     env.store,
		Clips:     env.store,
		Projects:  env.store,
		Ledger:    env.ledger,
		Objects:   env.objects,
		Processor: env.processor,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	req := env.admit(t, "wf-missing")

	err := env.machine.Run(context.Background(), req)
	require.NoError(t, err)

	inst := env.store.instance("wf-missing")
	assert.Equal(t, domain.InstanceStatusFailed, inst.Status)

	// Non-retriable: straight to terminal, no retry, processor never called.
	assert.Equal(t, 0, inst.RetryCount)
	assert.Equal(t, 0, env.processor.callCount())

	// Exactly one refund restores the admission debit.
	assert.Equal(t, 5, env.ledger.balance(testUserID))
	assert.Equal(t, 1, env.ledger.refundCount())

	file := env.store.file(testSourceKey)
	assert.Equal(t, domain.FileStatusFailed, file.Status)
}

func TestMachine_Run_ProjectNotOwned(t *testing.T) {
	env := newMachineEnv(t)

	req := env.admit(t, "wf-foreign")
	req.ProjectID = "someone-elses-project"

	err := env.machine.Run(context.Background(), req)
	require.NoError(t, err)

	inst := env.store.instance("wf-foreign")
	assert.Equal(t, domain.InstanceStatusFailed, inst.Status)
	assert.Equal(t, 0, inst.RetryCount)
	assert.Equal(t, 1, env.ledger.refundCount())
}

func TestMachine_Run_ProcessorFailsThenSucceeds(t *testing.T) {
	env := newMachineEnv(t)
	env.processor.errs = []error{errors.New("processor timeout")}
	env.objects.putClips(testSourceKey, "uploads/user-1/file-1/clip-001.mp4")

	req := env.admit(t, "wf-retry")

	err := env.machine.Run(context.Background(), req)
	require.NoError(t, err)

	inst := env.store.instance("wf-retry")
	assert.Equal(t, domain.InstanceStatusSucceeded, inst.Status)
	assert.Equal(t, 1, inst.RetryCount)
	assert.Equal(t, 2, env.processor.callCount())

	// Retry succeeded: the reservation stays debited, no refund.
	assert.Equal(t, 4, env.ledger.balance(testUserID))
	assert.Equal(t, 0, env.ledger.refundCount())

	file := env.store.file(testSourceKey)
	assert.Equal(t, domain.FileStatusCompleted, file.Status)
}

func TestNewMachine_ZeroConfigRetriesOnce(t *testing.T) {
	// A Config that never mentions MaxRetries, as the worker service builds
	// it, must still get the retry-once policy.
	env := newMachineEnv(t)
	env.processor.errs = []error{errors.New("processor timeout")}
	env.objects.putClips(testSourceKey, "uploads/user-1/file-1/clip-001.mp4")

	req := env.admit(t, "wf-default-retry")

	require.NoError(t, env.machine.Run(context.Background(), req))

	inst := env.store.instance("wf-default-retry")
	assert.Equal(t, domain.InstanceStatusSucceeded, inst.Status)
	assert.Equal(t, 2, env.processor.callCount())
	assert.Equal(t, 4, env.ledger.balance(testUserID))
	assert.Equal(t, 0, env.ledger.refundCount())
}

func TestNewMachine_NegativeMaxRetriesDisablesRetry(t *testing.T) {
	env := newMachineEnv(t)
	env.processor.errs = []error{errors.New("processor timeout")}
	env.objects.putClips(testSourceKey, "uploads/user-1/file-1/clip-001.mp4")
	env.machine = NewMachine(&Config{
		Instances:  env.store,
		Steps:      env.store,
		Files:      env.store,
		Clips:      env.store,
		Projects:   env.store,
		Ledger:     env.ledger,
		Objects:    env.objects,
		Processor:  env.processor,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxRetries: -1,
	})

	req := env.admit(t, "wf-no-retry")

	require.NoError(t, env.machine.Run(context.Background(), req))

	inst := env.store.instance("wf-no-retry")
	assert.Equal(t, domain.InstanceStatusFailed, inst.Status)
	assert.Equal(t, 1, env.processor.callCount())
	assert.Equal(t, 1, env.ledger.refundCount())
}

func TestMachine_Run_ProcessorExhaustsRetries(t *testing.T) {
	env := newMachineEnv(t)
	env.processor.errs = []error{
		errors.New("processor timeout"),
		errors.New("processor timeout"),
	}

	req := env.admit(t, "wf-exhausted")

	err := env.machine.Run(context.Background(), req)
	require.NoError(t, err)

	inst := env.store.instance("wf-exhausted")
	assert.Equal(t, domain.InstanceStatusFailed, inst.Status)
	assert.Equal(t, 2, env.processor.callCount())

	assert.Equal(t, 5, env.ledger.balance(testUserID))
	assert.Equal(t, 1, env.ledger.refundCount())

	file := env.store.file(testSourceKey)
	assert.Equal(t, domain.FileStatusFailed, file.Status)
}

func TestMachine_Run_NoClipsProduced(t *testing.T) {
	env := newMachineEnv(t)
	// Processor reports success, bucket stays empty.

	req := env.admit(t, "wf-empty")

	err := env.machine.Run(context.Background(), req)
	require.NoError(t, err)

	inst := env.store.instance("wf-empty")
	assert.Equal(t, domain.InstanceStatusFailed, inst.Status)

	// Zero clips is non-retriable: one processor call, terminal refund.
	assert.Equal(t, 1, env.processor.callCount())
	assert.Equal(t, 1, env.ledger.refundCount())
	assert.Equal(t, 5, env.ledger.balance(testUserID))
}

func TestMachine_Run_ReplayAfterCrashConverges(t *testing.T) {
	env := newMachineEnv(t)
	env.objects.putClips(testSourceKey, "uploads/user-1/file-1/clip-001.mp4")

	// First delivery crashes during clip reconciliation, after the processor
	// step was recorded done.
	env.objects.listErr = errors.New("connection reset")
	env.machine = NewMachine(&Config{
		Instances:  env.store,
		Steps:      env.store,
		Files:      env.store,
		Clips:      env.store,
		Projects:   env.store,
		Ledger:     env.ledger,
		Objects:    env.objects,
		Processor:  env.processor,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxRetries: -1,
	})

	req := env.admit(t, "wf-replay")
	err := env.machine.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.InstanceStatusFailed, env.store.instance("wf-replay").Status)

	// Redelivery of the terminal instance is a no-op.
	err = env.machine.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, env.processor.callCount())
	assert.Equal(t, 1, env.ledger.refundCount())
}

func TestMachine_Run_RedeliveryOfSucceededInstance(t *testing.T) {
	env := newMachineEnv(t)
	env.objects.putClips(testSourceKey, "uploads/user-1/file-1/clip-001.mp4")

	req := env.admit(t, "wf-redeliver")
	require.NoError(t, env.machine.Run(context.Background(), req))
	require.Equal(t, 1, env.processor.callCount())

	// Same message again: no new side effects.
	require.NoError(t, env.machine.Run(context.Background(), req))
	assert.Equal(t, 1, env.processor.callCount())
	assert.Equal(t, 1, env.store.clipCount())
	assert.Equal(t, 4, env.ledger.balance(testUserID))
}

func TestMachine_Run_MemoizedStepsSkipOnRetry(t *testing.T) {
	env := newMachineEnv(t)
	env.processor.errs = []error{errors.New("processor timeout")}
	env.objects.putClips(testSourceKey,
		"uploads/user-1/file-1/clip-001.mp4",
		"uploads/user-1/file-1/clip-002.mp4",
	)

	req := env.admit(t, "wf-memo")
	require.NoError(t, env.machine.Run(context.Background(), req))

	// The validate step ran once; its memo survived the retry.
	rec, err := env.store.GetStep(context.Background(), "wf-memo", StepValidate)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.StepStatusDone, rec.Status)

	// The processor step failed once before it was recorded done.
	rec, err = env.store.GetStep(context.Background(), "wf-memo", StepInvokeProcessor)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.StepStatusDone, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
}

func TestMachine_Run_DuplicateListingNoDuplicateClips(t *testing.T) {
	env := newMachineEnv(t)
	env.objects.putClips(testSourceKey,
		"uploads/user-1/file-1/clip-001.mp4",
		"uploads/user-1/file-1/clip-002.mp4",
	)

	req := env.admit(t, "wf-dup-a")
	require.NoError(t, env.machine.Run(context.Background(), req))
	require.Equal(t, 2, env.store.clipCount())

	// A second job over the same source discovers the same keys; the
	// uniqueness constraint keeps the rows single.
	req2 := env.admit(t, "wf-dup-b")
	require.NoError(t, env.machine.Run(context.Background(), req2))
	assert.Equal(t, 2, env.store.clipCount())
}

func TestMachine_Run_TerminalBookkeepingFailureRequeues(t *testing.T) {
	env := newMachineEnv(t)
	env.processor.errs = []error{
		errors.New("processor timeout"),
		errors.New("processor timeout"),
	}
	env.store.failSetFileStatus = errors.New("db down")

	req := env.admit(t, "wf-requeue")

	// Terminal bookkeeping cannot persist: Run reports the error so the
	// delivery is requeued.
	err := env.machine.Run(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 0, env.ledger.refundCount())

	// Redelivery after the store recovers converges on one refund.
	env.store.failSetFileStatus = nil
	env.processor.errs = append(env.processor.errs, errors.New("processor timeout"), errors.New("processor timeout"))
	err = env.machine.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.InstanceStatusFailed, env.store.instance("wf-requeue").Status)
	assert.Equal(t, 1, env.ledger.refundCount())
	assert.Equal(t, 5, env.ledger.balance(testUserID))
}

func TestMachine_Run_InvalidPayloadIsNonRetriable(t *testing.T) {
	env := newMachineEnv(t)

	req := env.admit(t, "wf-invalid")
	req.SourceKey = ""

	err := env.machine.Run(context.Background(), req)
	require.NoError(t, err)

	inst := env.store.instance("wf-invalid")
	assert.Equal(t, domain.InstanceStatusFailed, inst.Status)
	assert.Equal(t, 0, inst.RetryCount)
	assert.Equal(t, 1, env.ledger.refundCount())
}
