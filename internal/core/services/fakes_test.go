package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lookout/backend/internal/core/ports"
	"github.com/lookout/backend/internal/domain"
)

var errNotFound = errors.New("record not found")

// memStore is an in-memory stand-in for the gorm repositories. It
// implements TaskRepository, ExecutionRepository and EventRepository so a
// single instance can back a coordinator under test.
type memStore struct {
	mu     sync.Mutex
	tasks  map[string]*domain.Task
	execs  map[string]*domain.Execution
	events []domain.MonitorEvent

	recordErr error
}

func newMemStore() *memStore {
	return &memStore{
		tasks: make(map[string]*domain.Task),
		execs: make(map[string]*domain.Execution),
	}
}

func copyTask(t *domain.Task) *domain.Task {
	c := *t
	return &c
}

func copyExec(e *domain.Execution) *domain.Execution {
	c := *e
	return &c
}

func (s *memStore) putTask(t *domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = copyTask(t)
}

func (s *memStore) task(id string) *domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		return copyTask(t)
	}
	return nil
}

func (s *memStore) exec(id string) *domain.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.execs[id]; ok {
		return copyExec(e)
	}
	return nil
}

func (s *memStore) execCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.execs)
}

func (s *memStore) eventsOfType(eventType string) []domain.MonitorEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.MonitorEvent
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// TaskRepository

func (s *memStore) Create(ctx context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = copyTask(task)
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errNotFound
	}
	return copyTask(t), nil
}

func (s *memStore) GetAll(ctx context.Context) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out, nil
}

func (s *memStore) Update(ctx context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return errNotFound
	}
	s.tasks[task.ID] = copyTask(task)
	return nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

func (s *memStore) ListDue(ctx context.Context, now time.Time) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []domain.Task
	for _, t := range s.tasks {
		if t.IsActive && t.NextRunAt != nil && !t.NextRunAt.After(now) {
			due = append(due, *t)
		}
	}
	return due, nil
}

func (s *memStore) SetActive(ctx context.Context, id string, active bool, nextRunAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return errNotFound
	}
	t.IsActive = active
	t.NextRunAt = nextRunAt
	return nil
}

func (s *memStore) RecordResult(ctx context.Context, exec *domain.Execution, rollup ports.TaskRollup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}

	s.execs[exec.ID] = copyExec(exec)

	t, ok := s.tasks[exec.TaskID]
	if !ok {
		return nil
	}
	if rollup.UpdateRolling {
		t.ConditionMet = rollup.ConditionMet
		t.LastKnownState = rollup.Snapshot
		execID := exec.ID
		t.LastExecutionID = &execID
	}
	if rollup.Deactivate {
		t.IsActive = false
	}
	if rollup.NextRunAt != nil {
		t.NextRunAt = rollup.NextRunAt
	}
	return nil
}

// ExecutionRepository (Create/Update shadowed by name: memStore serves
// tasks through ports.TaskRepository, so executions get their own wrapper)

type memExecRepo struct{ store *memStore }

func (r *memExecRepo) Create(ctx context.Context, exec *domain.Execution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.execs[exec.ID] = copyExec(exec)
	return nil
}

func (r *memExecRepo) Update(ctx context.Context, exec *domain.Execution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.execs[exec.ID] = copyExec(exec)
	return nil
}

func (r *memExecRepo) GetByID(ctx context.Context, id string) (*domain.Execution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	e, ok := r.store.execs[id]
	if !ok {
		return nil, errNotFound
	}
	return copyExec(e), nil
}

func (r *memExecRepo) GetByTaskID(ctx context.Context, taskID string, limit int) ([]domain.Execution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Execution
	for _, e := range r.store.execs {
		if e.TaskID == taskID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *memExecRepo) ListUnfinished(ctx context.Context) ([]domain.Execution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Execution
	for _, e := range r.store.execs {
		if !e.Status.Terminal() {
			out = append(out, *e)
		}
	}
	return out, nil
}

type memEventRepo struct{ store *memStore }

func (r *memEventRepo) Create(ctx context.Context, event *domain.MonitorEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.events = append(r.store.events, *event)
	return nil
}

func (r *memEventRepo) GetAll(ctx context.Context, limit int) ([]domain.MonitorEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]domain.MonitorEvent(nil), r.store.events...), nil
}

func (r *memEventRepo) GetByTask(ctx context.Context, taskID string, limit int) ([]domain.MonitorEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.MonitorEvent
	for _, e := range r.store.events {
		if e.TaskID != nil && *e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out, nil
}

// scriptedExecutor returns canned outcomes in order; the last one repeats.
type scriptedExecutor struct {
	mu       sync.Mutex
	outcomes []executorOutcome
	calls    int
}

type executorOutcome struct {
	result *ports.SearchResult
	err    error
}

func (e *scriptedExecutor) Execute(ctx context.Context, input ports.SearchInput) (*ports.SearchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.calls
	if i >= len(e.outcomes) {
		i = len(e.outcomes) - 1
	}
	e.calls++
	out := e.outcomes[i]
	return out.result, out.err
}

func (e *scriptedExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type recordingDispatcher struct {
	mu     sync.Mutex
	sent   []domain.NotificationEvent
	failWith error
}

func (d *recordingDispatcher) Deliver(ctx context.Context, event domain.NotificationEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return d.failWith
	}
	d.sent = append(d.sent, event)
	return nil
}

func (d *recordingDispatcher) delivered() []domain.NotificationEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.NotificationEvent(nil), d.sent...)
}
