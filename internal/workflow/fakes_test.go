package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/omraval18/nclip/internal/domain"
)

// memStore is an in-memory implementation of the persistence ports, with
// per-method error injection for failure-path tests.
type memStore struct {
	mu sync.Mutex

	instances map[string]*domain.WorkflowInstance
	steps     map[string]*domain.StepRecord
	files     map[string]*domain.UploadedFile
	clips     map[string]domain.Clip
	projects  map[string]*domain.Project

	failMarkStepDone  error
	failSetFileStatus error
}

func newMemStore() *memStore {
	return &memStore{
		instances: make(map[string]*domain.WorkflowInstance),
		steps:     make(map[string]*domain.StepRecord),
		files:     make(map[string]*domain.UploadedFile),
		clips:     make(map[string]domain.Clip),
		projects:  make(map[string]*domain.Project),
	}
}

func stepKey(instanceID, stepName string) string {
	return instanceID + "/" + stepName
}

func (s *memStore) CreateOrGetInstance(ctx context.Context, instanceID, userID, r2Key string) (*domain.WorkflowInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.instances[instanceID]; ok {
		cp := *inst
		return &cp, nil
	}
	inst := &domain.WorkflowInstance{
		InstanceID: instanceID,
		UserID:     userID,
		R2Key:      r2Key,
		Status:     domain.InstanceStatusRunning,
	}
	s.instances[instanceID] = inst
	cp := *inst
	return &cp, nil
}

func (s *memStore) SetInstanceStatus(ctx context.Context, instanceID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[instanceID]
	if !ok {
		return fmt.Errorf("instance %s not found", instanceID)
	}
	if inst.Status == domain.InstanceStatusRunning {
		inst.Status = status
	}
	return nil
}

func (s *memStore) IncrementInstanceRetry(ctx context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[instanceID]
	if !ok {
		return fmt.Errorf("instance %s not found", instanceID)
	}
	inst.RetryCount++
	return nil
}

func (s *memStore) instance(instanceID string) *domain.WorkflowInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := s.instances[instanceID]
	if inst == nil {
		return nil
	}
	cp := *inst
	return &cp
}

func (s *memStore) GetStep(ctx context.Context, instanceID, stepName string) (*domain.StepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.steps[stepKey(instanceID, stepName)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) MarkStepDone(ctx context.Context, instanceID, stepName string, output []byte) error {
	if s.failMarkStepDone != nil {
		return s.failMarkStepDone
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stepKey(instanceID, stepName)
	rec, ok := s.steps[key]
	if !ok {
		rec = &domain.StepRecord{InstanceID: instanceID, StepName: stepName}
		s.steps[key] = rec
	}
	rec.Status = domain.StepStatusDone
	rec.Output = output
	return nil
}

func (s *memStore) RecordStepFailure(ctx context.Context, instanceID, stepName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stepKey(instanceID, stepName)
	rec, ok := s.steps[key]
	if !ok {
		rec = &domain.StepRecord{InstanceID: instanceID, StepName: stepName}
		s.steps[key] = rec
	}
	rec.Status = domain.StepStatusFailed
	rec.Attempts++
	return nil
}

func (s *memStore) addFile(file domain.UploadedFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[file.R2Key] = &file
}

func (s *memStore) file(r2Key string) *domain.UploadedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.files[r2Key]
	if f == nil {
		return nil
	}
	cp := *f
	return &cp
}

func (s *memStore) GetFileBySourceKey(ctx context.Context, r2Key string) (*domain.UploadedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[r2Key]
	if !ok {
		return nil, domain.ErrFileNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *memStore) SetFileUploaded(ctx context.Context, r2Key string, uploaded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[r2Key]; ok {
		f.Uploaded = uploaded
	}
	return nil
}

func (s *memStore) SetFileStatus(ctx context.Context, r2Key string, status string) error {
	if s.failSetFileStatus != nil {
		return s.failSetFileStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[r2Key]; ok {
		f.Status = status
	}
	return nil
}

func (s *memStore) UpsertClips(ctx context.Context, clips []domain.Clip) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, clip := range clips {
		key := clip.R2Key + "/" + clip.UploadedFileID
		if _, ok := s.clips[key]; ok {
			continue
		}
		s.clips[key] = clip
		inserted++
	}
	return inserted, nil
}

func (s *memStore) clipCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clips)
}

func (s *memStore) addProject(project domain.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[project.ID] = &project
}

func (s *memStore) GetOwnedProject(ctx context.Context, projectID, ownerID string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok || p.OwnerID != ownerID {
		return nil, domain.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

// memLedger mirrors the credit ledger's idempotency semantics: one effective
// debit and one effective refund per (user, instance).
type memLedger struct {
	mu       sync.Mutex
	balances map[string]int
	seen     map[string]bool
	refunds  int
}

func newMemLedger() *memLedger {
	return &memLedger{
		balances: make(map[string]int),
		seen:     make(map[string]bool),
	}
}

func (l *memLedger) setBalance(userID string, credits int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = credits
}

func (l *memLedger) balance(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *memLedger) refundCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refunds
}

func (l *memLedger) Debit(ctx context.Context, userID, instanceID string, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	key := userID + "/" + instanceID + "/debit"
	if l.seen[key] {
		return bal, nil
	}
	if bal < amount {
		return 0, domain.ErrInsufficientCredit
	}
	l.seen[key] = true
	l.balances[userID] = bal - amount
	return l.balances[userID], nil
}

func (l *memLedger) Refund(ctx context.Context, userID, instanceID string, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	key := userID + "/" + instanceID + "/refund"
	if l.seen[key] {
		return bal, nil
	}
	l.seen[key] = true
	l.refunds++
	l.balances[userID] = bal + amount
	return l.balances[userID], nil
}

// memObjects is an in-memory object store: source objects plus the clip keys
// listed under each source's parent prefix.
type memObjects struct {
	mu      sync.Mutex
	objects map[string]bool
	clips   map[string][]string
	listErr error
}

func newMemObjects() *memObjects {
	return &memObjects{
		objects: make(map[string]bool),
		clips:   make(map[string][]string),
	}
}

func (o *memObjects) putObject(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = true
}

func (o *memObjects) putClips(sourceKey string, keys ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clips[sourceKey] = keys
}

func (o *memObjects) Exists(ctx context.Context, key string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.objects[key], nil
}

func (o *memObjects) ListClips(ctx context.Context, sourceKey string) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.listErr != nil {
		err := o.listErr
		o.listErr = nil
		return nil, err
	}
	return o.clips[sourceKey], nil
}

// fakeProcessor returns its scripted errors in order, then nil.
type fakeProcessor struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (p *fakeProcessor) Process(ctx context.Context, sourceKey string, maxClips int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := p.calls
	p.calls++
	if call < len(p.errs) {
		return p.errs[call]
	}
	return nil
}

func (p *fakeProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
