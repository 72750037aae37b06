package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lookout/backend/internal/core/ports"
	"github.com/lookout/backend/internal/domain"
	"github.com/lookout/backend/internal/infrastructure/logger"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store      *memStore
	dispatcher *recordingDispatcher
	clock      *testClock
	coord      *Coordinator

	mu       sync.Mutex
	backoffs []time.Duration
}

func newFixture(executor ports.SearchExecutor, cfg CoordinatorConfig) *fixture {
	f := &fixture{
		store:      newMemStore(),
		dispatcher: &recordingDispatcher{},
		clock:      &testClock{t: testStart},
	}
	f.coord = NewCoordinator(CoordinatorDeps{
		TaskRepo:      f.store,
		ExecutionRepo: &memExecRepo{store: f.store},
		EventRepo:     &memEventRepo{store: f.store},
		Executor:      executor,
		Dispatcher:    f.dispatcher,
		Logger:        logger.NewNop(),
		Config:        cfg,
	})
	f.coord.now = f.clock.Now
	f.coord.sleep = func(ctx context.Context, d time.Duration) error {
		f.mu.Lock()
		f.backoffs = append(f.backoffs, d)
		f.mu.Unlock()
		return nil
	}
	return f
}

func (f *fixture) sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.backoffs...)
}

func dueTask(behavior domain.NotifyBehavior) *domain.Task {
	due := testStart
	return &domain.Task{
		ID:                   uuid.New().String(),
		Name:                 "gpt-5 release watch",
		SearchQuery:          "Has OpenAI released GPT-5?",
		ConditionDescription: "an official release announcement exists",
		Schedule:             "*/5 * * * *",
		Timezone:             "UTC",
		NotifyBehavior:       behavior,
		IsActive:             true,
		NextRunAt:            &due,
	}
}

func okResult(met bool, state domain.JSONB) executorOutcome {
	return executorOutcome{result: &ports.SearchResult{
		Answer:       "checked",
		State:        state,
		ConditionMet: met,
	}}
}

func waitTerminal(t *testing.T, store *memStore, execID string) *domain.Execution {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e := store.exec(execID); e != nil && e.Status.Terminal() {
			return e
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("execution %s never reached a terminal state", execID)
	return nil
}

func TestRunScheduledSuccessAdvancesSchedule(t *testing.T) {
	executor := &scriptedExecutor{outcomes: []executorOutcome{
		okResult(false, domain.JSONB{"status": "no announcement"}),
	}}
	f := newFixture(executor, CoordinatorConfig{})

	task := dueTask(domain.NotifyAlways)
	f.store.putTask(task)

	if err := f.coord.RunScheduled(context.Background(), task.ID); err != nil {
		t.Fatalf("RunScheduled: %v", err)
	}

	got := f.store.task(task.ID)
	wantNext := testStart.Add(5 * time.Minute)
	if got.NextRunAt == nil || !got.NextRunAt.Equal(wantNext) {
		t.Fatalf("next_run_at = %v, want %v", got.NextRunAt, wantNext)
	}
	if got.ConditionMet {
		t.Fatal("condition_met should be false")
	}
	if got.LastKnownState["status"] != "no announcement" {
		t.Fatalf("last_known_state = %v", got.LastKnownState)
	}
	if got.LastExecutionID == nil {
		t.Fatal("last_execution_id not set")
	}

	exec := f.store.exec(*got.LastExecutionID)
	if exec.Status != domain.ExecutionStatusSuccess {
		t.Fatalf("execution status = %s", exec.Status)
	}
	if exec.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", exec.Attempts)
	}
	if exec.FinishedAt == nil {
		t.Fatal("finished_at not set")
	}

	if n := len(f.dispatcher.delivered()); n != 0 {
		t.Fatalf("delivered %d notifications, want 0", n)
	}
	if n := len(f.store.eventsOfType(EventExecutionSucceeded)); n != 1 {
		t.Fatalf("succeeded events = %d, want 1", n)
	}
}

func TestRunScheduledSkipsWhenNotDue(t *testing.T) {
	f := newFixture(&scriptedExecutor{outcomes: []executorOutcome{okResult(false, nil)}}, CoordinatorConfig{})

	task := dueTask(domain.NotifyAlways)
	future := testStart.Add(time.Hour)
	task.NextRunAt = &future
	f.store.putTask(task)

	if err := f.coord.RunScheduled(context.Background(), task.ID); !errors.Is(err, ErrFiringNotDue) {
		t.Fatalf("err = %v, want ErrFiringNotDue", err)
	}
	if f.store.execCount() != 0 {
		t.Fatal("no execution row should be created for a skipped firing")
	}
}

func TestRunScheduledSkipsInactiveTask(t *testing.T) {
	f := newFixture(&scriptedExecutor{outcomes: []executorOutcome{okResult(false, nil)}}, CoordinatorConfig{})

	task := dueTask(domain.NotifyAlways)
	task.IsActive = false
	f.store.putTask(task)

	if err := f.coord.RunScheduled(context.Background(), task.ID); !errors.Is(err, ErrTaskInactive) {
		t.Fatalf("err = %v, want ErrTaskInactive", err)
	}
}

func TestRunScheduledUnknownTask(t *testing.T) {
	f := newFixture(&scriptedExecutor{outcomes: []executorOutcome{okResult(false, nil)}}, CoordinatorConfig{})
	if err := f.coord.RunScheduled(context.Background(), "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestRedeliveredFiringIsNoOp(t *testing.T) {
	f := newFixture(&scriptedExecutor{outcomes: []executorOutcome{okResult(false, nil)}}, CoordinatorConfig{})

	task := dueTask(domain.NotifyAlways)
	f.store.putTask(task)

	if err := f.coord.RunScheduled(context.Background(), task.ID); err != nil {
		t.Fatalf("first firing: %v", err)
	}
	// Same due instant delivered again: next_run_at already advanced, so
	// the duplicate must be skipped.
	if err := f.coord.RunScheduled(context.Background(), task.ID); !errors.Is(err, ErrFiringNotDue) {
		t.Fatalf("err = %v, want ErrFiringNotDue", err)
	}
	if f.store.execCount() != 1 {
		t.Fatalf("executions = %d, want 1", f.store.execCount())
	}
}

func TestOncePolicyCompletesTask(t *testing.T) {
	executor := &scriptedExecutor{outcomes: []executorOutcome{
		okResult(true, domain.JSONB{"released": true}),
	}}
	f := newFixture(executor, CoordinatorConfig{})

	task := dueTask(domain.NotifyOnce)
	f.store.putTask(task)

	if err := f.coord.RunScheduled(context.Background(), task.ID); err != nil {
		t.Fatalf("RunScheduled: %v", err)
	}

	got := f.store.task(task.ID)
	if got.IsActive {
		t.Fatal("task should be deactivated after first trigger")
	}
	if !got.ConditionMet {
		t.Fatal("rolling condition_met should be true")
	}
	if got.DisplayStatus() != domain.TaskStatusCompleted {
		t.Fatalf("display status = %s, want completed", got.DisplayStatus())
	}
	if n := len(f.dispatcher.delivered()); n != 1 {
		t.Fatalf("delivered %d notifications, want 1", n)
	}
	if n := len(f.store.eventsOfType(EventTaskCompleted)); n != 1 {
		t.Fatalf("task_completed events = %d, want 1", n)
	}
}

func TestAlwaysPolicyNotifiesEveryTrigger(t *testing.T) {
	executor := &scriptedExecutor{outcomes: []executorOutcome{
		okResult(true, domain.JSONB{"n": float64(1)}),
		okResult(true, domain.JSONB{"n": float64(2)}),
		okResult(false, domain.JSONB{"n": float64(3)}),
	}}
	f := newFixture(executor, CoordinatorConfig{})

	task := dueTask(domain.NotifyAlways)
	f.store.putTask(task)

	for i := 0; i < 3; i++ {
		if err := f.coord.RunScheduled(context.Background(), task.ID); err != nil {
			t.Fatalf("firing %d: %v", i+1, err)
		}
		f.clock.Advance(5 * time.Minute)
	}

	if n := len(f.dispatcher.delivered()); n != 2 {
		t.Fatalf("delivered %d notifications, want 2", n)
	}
	got := f.store.task(task.ID)
	if !got.IsActive {
		t.Fatal("always-behavior task must stay active")
	}
	// Replaced, not OR-ed: the final false verdict wins.
	if got.ConditionMet {
		t.Fatal("rolling condition_met should reflect the latest execution")
	}
}

func TestTrackStateNotifiesOnChange(t *testing.T) {
	executor := &scriptedExecutor{outcomes: []executorOutcome{
		okResult(false, domain.JSONB{"date": "2026-09-10"}),
	}}
	f := newFixture(executor, CoordinatorConfig{})

	task := dueTask(domain.NotifyTrackState)
	task.LastKnownState = domain.JSONB{"date": "unknown"}
	f.store.putTask(task)

	if err := f.coord.RunScheduled(context.Background(), task.ID); err != nil {
		t.Fatalf("RunScheduled: %v", err)
	}

	sent := f.dispatcher.delivered()
	if len(sent) != 1 {
		t.Fatalf("delivered %d notifications, want 1", len(sent))
	}
	want := `date: "unknown" -> "2026-09-10"`
	if sent[0].Message != want {
		t.Fatalf("message = %q, want %q", sent[0].Message, want)
	}

	got := f.store.task(task.ID)
	exec := f.store.exec(*got.LastExecutionID)
	if exec.ChangeSummary == nil || *exec.ChangeSummary != want {
		t.Fatalf("change_summary = %v, want %q", exec.ChangeSummary, want)
	}
}

func TestTrackStateQuietWhenUnchanged(t *testing.T) {
	executor := &scriptedExecutor{outcomes: []executorOutcome{
		okResult(false, domain.JSONB{"price": 999}),
	}}
	f := newFixture(executor, CoordinatorConfig{})

	task := dueTask(domain.NotifyTrackState)
	task.LastKnownState = domain.JSONB{"price": float64(999)}
	f.store.putTask(task)

	if err := f.coord.RunScheduled(context.Background(), task.ID); err != nil {
		t.Fatalf("RunScheduled: %v", err)
	}
	if n := len(f.dispatcher.delivered()); n != 0 {
		t.Fatalf("delivered %d notifications, want 0", n)
	}
}

func TestTrackStateFirstExecutionNeverNotifies(t *testing.T) {
	executor := &scriptedExecutor{outcomes: []executorOutcome{
		okResult(true, domain.JSONB{"date": "2026-09-10"}),
	}}
	f := newFixture(executor, CoordinatorConfig{})

	task := dueTask(domain.NotifyTrackState)
	f.store.putTask(task)

	if err := f.coord.RunScheduled(context.Background(), task.ID); err != nil {
		t.Fatalf("RunScheduled: %v", err)
	}
	if n := len(f.dispatcher.delivered()); n != 0 {
		t.Fatalf("delivered %d notifications, want 0 on first execution", n)
	}
}

func TestTransientErrorsRetryWithBackoff(t *testing.T) {
	transient := &ports.ExecutorError{Err: errors.New("503 from upstream"), Transient: true}
	executor := &scriptedExecutor{outcomes: []executorOutcome{
		{err: transient},
		{err: transient},
		okResult(false, domain.JSONB{"status": "ok"}),
	}}
	f := newFixture(executor, CoordinatorConfig{MaxAttempts: 3, BackoffBase: 2 * time.Second})

	task := dueTask(domain.NotifyAlways)
	f.store.putTask(task)

	if err := f.coord.RunScheduled(context.Background(), task.ID); err != nil {
		t.Fatalf("RunScheduled: %v", err)
	}

	got := f.store.task(task.ID)
	exec := f.store.exec(*got.LastExecutionID)
	if exec.Status != domain.ExecutionStatusSuccess {
		t.Fatalf("status = %s, want success", exec.Status)
	}
	if exec.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", exec.Attempts)
	}

	sleeps := f.sleeps()
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("backoffs = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Fatalf("backoff[%d] = %v, want %v", i, sleeps[i], want[i])
		}
	}
}

func TestPermanentErrorFailsImmediately(t *testing.T) {
	executor := &scriptedExecutor{outcomes: []executorOutcome{
		{err: &ports.ExecutorError{Err: errors.New("query rejected"), Transient: false}},
	}}
	f := newFixture(executor, CoordinatorConfig{MaxAttempts: 3})

	task := dueTask(domain.NotifyAlways)
	task.ConditionMet = true
	task.LastKnownState = domain.JSONB{"date": "2026-09-10"}
	f.store.putTask(task)

	if err := f.coord.RunScheduled(context.Background(), task.ID); err != nil {
		t.Fatalf("RunScheduled: %v", err)
	}
	if executor.callCount() != 1 {
		t.Fatalf("executor called %d times, want 1", executor.callCount())
	}

	got := f.store.task(task.ID)
	// Failure isolation: rolling fields untouched, monitoring continues.
	if !got.ConditionMet || got.LastKnownState["date"] != "2026-09-10" {
		t.Fatalf("rolling fields mutated by a failed execution: %+v", got)
	}
	if !got.IsActive {
		t.Fatal("failed execution must not deactivate the task")
	}
	wantNext := testStart.Add(5 * time.Minute)
	if got.NextRunAt == nil || !got.NextRunAt.Equal(wantNext) {
		t.Fatalf("next_run_at = %v, want %v", got.NextRunAt, wantNext)
	}
	if n := len(f.store.eventsOfType(EventExecutionFailed)); n != 1 {
		t.Fatalf("failed events = %d, want 1", n)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	executor := &scriptedExecutor{outcomes: []executorOutcome{
		{err: &ports.ExecutorError{Err: errors.New("429 rate limited"), Transient: true}},
	}}
	f := newFixture(executor, CoordinatorConfig{MaxAttempts: 3})

	task := dueTask(domain.NotifyAlways)
	f.store.putTask(task)

	if err := f.coord.RunScheduled(context.Background(), task.ID); err != nil {
		t.Fatalf("RunScheduled: %v", err)
	}
	if executor.callCount() != 3 {
		t.Fatalf("executor called %d times, want 3", executor.callCount())
	}

	exec := f.store.exec(*latestExecID(t, f.store, task.ID))
	if exec.Status != domain.ExecutionStatusFailed {
		t.Fatalf("status = %s, want failed", exec.Status)
	}
	if !strings.Contains(exec.Error, "retry budget exhausted") {
		t.Fatalf("error = %q", exec.Error)
	}
}

func TestTimeoutCountsAsTransient(t *testing.T) {
	executor := &scriptedExecutor{outcomes: []executorOutcome{
		{err: context.DeadlineExceeded},
		okResult(false, domain.JSONB{"status": "ok"}),
	}}
	f := newFixture(executor, CoordinatorConfig{MaxAttempts: 3})

	task := dueTask(domain.NotifyAlways)
	f.store.putTask(task)

	if err := f.coord.RunScheduled(context.Background(), task.ID); err != nil {
		t.Fatalf("RunScheduled: %v", err)
	}
	got := f.store.task(task.ID)
	exec := f.store.exec(*got.LastExecutionID)
	if exec.Status != domain.ExecutionStatusSuccess || exec.Attempts != 2 {
		t.Fatalf("status = %s attempts = %d, want success after 2", exec.Status, exec.Attempts)
	}
}

type blockingExecutor struct {
	started chan struct{}
	release chan struct{}
}

func (e *blockingExecutor) Execute(ctx context.Context, input ports.SearchInput) (*ports.SearchResult, error) {
	e.started <- struct{}{}
	<-e.release
	return &ports.SearchResult{Answer: "done", State: domain.JSONB{}}, nil
}

func TestSingleFlightPerTask(t *testing.T) {
	executor := &blockingExecutor{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newFixture(executor, CoordinatorConfig{})

	task := dueTask(domain.NotifyAlways)
	f.store.putTask(task)

	done := make(chan error, 1)
	go func() {
		done <- f.coord.RunScheduled(context.Background(), task.ID)
	}()
	<-executor.started

	if _, err := f.coord.RunManual(context.Background(), task.ID); !errors.Is(err, ErrExecutionInFlight) {
		t.Fatalf("err = %v, want ErrExecutionInFlight", err)
	}

	close(executor.release)
	if err := <-done; err != nil {
		t.Fatalf("scheduled firing: %v", err)
	}
	if f.store.execCount() != 1 {
		t.Fatalf("executions = %d, want 1", f.store.execCount())
	}
}

func TestManualRunLeavesScheduleAlone(t *testing.T) {
	executor := &scriptedExecutor{outcomes: []executorOutcome{
		okResult(true, domain.JSONB{"released": true}),
	}}
	f := newFixture(executor, CoordinatorConfig{})

	// Paused task with no scheduled firing: manual runs are still allowed.
	task := dueTask(domain.NotifyAlways)
	task.IsActive = false
	task.NextRunAt = nil
	f.store.putTask(task)

	exec, err := f.coord.RunManual(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("RunManual: %v", err)
	}
	if !exec.Manual {
		t.Fatal("execution should be flagged manual")
	}

	final := waitTerminal(t, f.store, exec.ID)
	if final.Status != domain.ExecutionStatusSuccess {
		t.Fatalf("status = %s, want success", final.Status)
	}

	got := f.store.task(task.ID)
	if got.NextRunAt != nil {
		t.Fatalf("manual run advanced next_run_at to %v", got.NextRunAt)
	}
	if !got.ConditionMet {
		t.Fatal("manual success should still update rolling state")
	}
}

func TestRecordFailureLeavesExecutionRunning(t *testing.T) {
	executor := &scriptedExecutor{outcomes: []executorOutcome{
		okResult(true, domain.JSONB{"released": true}),
	}}
	f := newFixture(executor, CoordinatorConfig{})
	f.store.recordErr = errors.New("connection reset")

	task := dueTask(domain.NotifyOnce)
	f.store.putTask(task)

	if err := f.coord.RunScheduled(context.Background(), task.ID); err == nil {
		t.Fatal("expected persist failure to surface")
	}

	// A false success must never be recorded: the row stays running for
	// restart reconciliation and the task is untouched.
	exec := f.store.exec(*latestExecID(t, f.store, task.ID))
	if exec.Status != domain.ExecutionStatusRunning {
		t.Fatalf("status = %s, want running", exec.Status)
	}
	got := f.store.task(task.ID)
	if got.ConditionMet || !got.IsActive {
		t.Fatalf("task mutated despite failed persist: %+v", got)
	}
}

func TestReconcileInterrupted(t *testing.T) {
	f := newFixture(&scriptedExecutor{outcomes: []executorOutcome{okResult(false, nil)}}, CoordinatorConfig{})

	task := dueTask(domain.NotifyAlways)
	task.ConditionMet = true
	f.store.putTask(task)

	stuck := &domain.Execution{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		Status:    domain.ExecutionStatusRunning,
		StartedAt: testStart.Add(-time.Minute),
	}
	execRepo := &memExecRepo{store: f.store}
	if err := execRepo.Create(context.Background(), stuck); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := f.coord.ReconcileInterrupted(context.Background()); err != nil {
		t.Fatalf("ReconcileInterrupted: %v", err)
	}

	got := f.store.exec(stuck.ID)
	if got.Status != domain.ExecutionStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.Error, "interrupted by process restart") {
		t.Fatalf("error = %q", got.Error)
	}

	reconciled := f.store.task(task.ID)
	if !reconciled.ConditionMet {
		t.Fatal("reconciliation must not touch rolling fields")
	}
	wantNext := testStart.Add(5 * time.Minute)
	if reconciled.NextRunAt == nil || !reconciled.NextRunAt.Equal(wantNext) {
		t.Fatalf("next_run_at = %v, want %v", reconciled.NextRunAt, wantNext)
	}
	if n := len(f.store.eventsOfType(EventExecutionRecovered)); n != 1 {
		t.Fatalf("recovered events = %d, want 1", n)
	}
}

func TestNotificationFailureDoesNotFailExecution(t *testing.T) {
	executor := &scriptedExecutor{outcomes: []executorOutcome{
		okResult(true, domain.JSONB{"released": true}),
	}}
	f := newFixture(executor, CoordinatorConfig{})
	f.dispatcher.failWith = errors.New("webhook 500")

	task := dueTask(domain.NotifyOnce)
	f.store.putTask(task)

	if err := f.coord.RunScheduled(context.Background(), task.ID); err != nil {
		t.Fatalf("RunScheduled: %v", err)
	}

	got := f.store.task(task.ID)
	exec := f.store.exec(*got.LastExecutionID)
	if exec.Status != domain.ExecutionStatusSuccess {
		t.Fatalf("status = %s, want success", exec.Status)
	}
	if n := len(f.store.eventsOfType(EventNotificationError)); n != 1 {
		t.Fatalf("notification_error events = %d, want 1", n)
	}
}

func latestExecID(t *testing.T, store *memStore, taskID string) *string {
	t.Helper()
	execs, err := (&memExecRepo{store: store}).GetByTaskID(context.Background(), taskID, 10)
	if err != nil || len(execs) == 0 {
		t.Fatalf("no executions for task %s: %v", taskID, err)
	}
	id := execs[len(execs)-1].ID
	return &id
}

func TestCoordinatorConfigDefaults(t *testing.T) {
	cfg := CoordinatorConfig{}
	cfg.applyDefaults()
	if cfg.MaxAttempts != 3 || cfg.BackoffBase != 2*time.Second || cfg.ExecutorTimeout != 60*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestExecutorErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("call failed: %w", &ports.ExecutorError{Err: errors.New("boom"), Transient: true})
	if !ports.IsTransient(wrapped) {
		t.Fatal("wrapped transient error should classify as transient")
	}
	if ports.IsTransient(errors.New("boom")) {
		t.Fatal("plain error should default to permanent")
	}
}
