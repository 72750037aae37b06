package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lookout/backend/internal/core/ports"
	"github.com/lookout/backend/internal/domain"
	"github.com/lookout/backend/internal/infrastructure/logger"
)

// Event types recorded on the monitor timeline.
const (
	EventExecutionStarted   = "EXECUTION_STARTED"
	EventExecutionSucceeded = "EXECUTION_SUCCEEDED"
	EventExecutionFailed    = "EXECUTION_FAILED"
	EventNotificationSent   = "NOTIFICATION_SENT"
	EventNotificationError  = "NOTIFICATION_ERROR"
	EventTaskCompleted      = "TASK_COMPLETED"
	EventExecutionRecovered = "EXECUTION_RECOVERED"
)

type CoordinatorConfig struct {
	// MaxAttempts bounds executor retries inside a single firing.
	MaxAttempts int
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration
	// ExecutorTimeout is the hard wall-clock limit per executor call.
	ExecutorTimeout time.Duration
}

func (c *CoordinatorConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.ExecutorTimeout <= 0 {
		c.ExecutorTimeout = 60 * time.Second
	}
}

// Coordinator drives one firing end-to-end: single-flight lock, executor
// call with bounded retry, comparison, policy decision, atomic terminal
// persist, notification dispatch. Task rolling fields are mutated only
// here, under the same per-task lock that enforces single-flight.
type Coordinator struct {
	tasks      ports.TaskRepository
	execs      ports.ExecutionRepository
	events     ports.EventRepository
	executor   ports.SearchExecutor
	dispatcher ports.NotificationDispatcher
	bus        *EventBus
	logger     *logger.Logger
	cfg        CoordinatorConfig

	mu       sync.Mutex
	inflight map[string]*sync.Mutex

	// Injection points for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type CoordinatorDeps struct {
	TaskRepo      ports.TaskRepository
	ExecutionRepo ports.ExecutionRepository
	EventRepo     ports.EventRepository
	Executor      ports.SearchExecutor
	Dispatcher    ports.NotificationDispatcher
	Bus           *EventBus
	Logger        *logger.Logger
	Config        CoordinatorConfig
}

func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	deps.Config.applyDefaults()
	return &Coordinator{
		tasks:      deps.TaskRepo,
		execs:      deps.ExecutionRepo,
		events:     deps.EventRepo,
		executor:   deps.Executor,
		dispatcher: deps.Dispatcher,
		bus:        deps.Bus,
		logger:     deps.Logger,
		cfg:        deps.Config,
		inflight:   make(map[string]*sync.Mutex),
		now:        time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
}

// taskLock returns the single-flight mutex for a task id.
func (c *Coordinator) taskLock(taskID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.inflight[taskID]
	if m == nil {
		m = &sync.Mutex{}
		c.inflight[taskID] = m
	}
	return m
}

// RunScheduled executes one scheduled firing. A firing that finds the
// lock held or the task no longer due is skipped, not queued; the task is
// picked up again at its next occurrence.
func (c *Coordinator) RunScheduled(ctx context.Context, taskID string) error {
	task, exec, unlock, err := c.begin(ctx, taskID, false)
	if err != nil {
		return err
	}
	defer unlock()
	return c.drive(ctx, task, exec)
}

// RunManual starts an out-of-band execution through the same state
// machine, bypassing the due check. The pending execution is returned
// immediately; the firing completes in the background.
func (c *Coordinator) RunManual(ctx context.Context, taskID string) (*domain.Execution, error) {
	task, exec, unlock, err := c.begin(ctx, taskID, true)
	if err != nil {
		return nil, err
	}

	go func() {
		defer unlock()
		if err := c.drive(context.Background(), task, exec); err != nil {
			c.logger.Errorw("manual_execution_failed", "task_id", taskID, "execution_id", exec.ID, "error", err)
		}
	}()

	return exec, nil
}

// begin acquires the single-flight lock, validates the firing and
// persists the pending execution row. The returned unlock must be called
// exactly once after the firing reaches a terminal state.
func (c *Coordinator) begin(ctx context.Context, taskID string, manual bool) (*domain.Task, *domain.Execution, func(), error) {
	lock := c.taskLock(taskID)
	if !lock.TryLock() {
		c.logger.Infow("firing_skipped_inflight", "task_id", taskID)
		return nil, nil, nil, ErrExecutionInFlight
	}

	task, err := c.tasks.GetByID(ctx, taskID)
	if err != nil {
		lock.Unlock()
		return nil, nil, nil, ErrTaskNotFound
	}

	now := c.now()
	if !manual {
		if !task.IsActive {
			lock.Unlock()
			return nil, nil, nil, ErrTaskInactive
		}
		// Redelivery guard: once a firing's terminal record advanced
		// next_run_at, the same due instant must not fire again.
		if task.NextRunAt == nil || task.NextRunAt.After(now) {
			lock.Unlock()
			return nil, nil, nil, ErrFiringNotDue
		}
	}

	exec := &domain.Execution{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		Status:    domain.ExecutionStatusPending,
		StartedAt: now,
		Manual:    manual,
	}
	if err := c.execs.Create(ctx, exec); err != nil {
		lock.Unlock()
		return nil, nil, nil, err
	}

	return task, exec, lock.Unlock, nil
}

// drive runs the pending execution to a terminal state.
func (c *Coordinator) drive(ctx context.Context, task *domain.Task, exec *domain.Execution) error {
	exec.Status = domain.ExecutionStatusRunning
	if err := c.execs.Update(ctx, exec); err != nil {
		// Left pending; reconciled on restart rather than silently lost.
		c.logger.Errorw("execution_mark_running_failed", "execution_id", exec.ID, "error", err)
		return err
	}
	c.recordEvent(ctx, EventExecutionStarted, domain.EventStatusPending,
		fmt.Sprintf("checking %q", task.Name), task.ID, exec.ID, nil)

	result, attempts, execErr := c.callExecutor(ctx, task)
	exec.Attempts = attempts

	if execErr != nil {
		return c.finishFailed(ctx, task, exec, execErr)
	}
	return c.finishSuccess(ctx, task, exec, result)
}

// callExecutor invokes the search executor under the wall-clock timeout,
// retrying transient failures with exponential backoff. Only the final
// outcome surfaces; intermediate attempts never produce execution rows.
func (c *Coordinator) callExecutor(ctx context.Context, task *domain.Task) (*ports.SearchResult, int, error) {
	input := ports.SearchInput{
		Query:      task.SearchQuery,
		Condition:  task.ConditionDescription,
		PriorState: task.LastKnownState,
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.ExecutorTimeout)
		result, err := c.executor.Execute(callCtx, input)
		cancel()

		if err == nil {
			return result, attempt, nil
		}

		transient := ports.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrExecutorTimeout, err)
		}
		lastErr = err

		if !transient {
			c.logger.Warnw("executor_permanent_error", "task_id", task.ID, "attempt", attempt, "error", err)
			return nil, attempt, err
		}

		c.logger.Warnw("executor_transient_error", "task_id", task.ID, "attempt", attempt, "error", err)
		if attempt == c.cfg.MaxAttempts {
			return nil, attempt, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempt, err)
		}
		backoff := c.cfg.BackoffBase << (attempt - 1)
		if err := c.sleep(ctx, backoff); err != nil {
			return nil, attempt, fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
		}
	}
	return nil, c.cfg.MaxAttempts, lastErr
}

func (c *Coordinator) finishSuccess(ctx context.Context, task *domain.Task, exec *domain.Execution, result *ports.SearchResult) error {
	change := CompareStates(task.LastKnownState, result.State)
	decision := Decide(task.NotifyBehavior, task.ConditionMet, result.ConditionMet, change)

	now := c.now()
	exec.Status = domain.ExecutionStatusSuccess
	exec.FinishedAt = &now
	exec.Answer = result.Answer
	exec.StateSnapshot = result.State
	exec.ConditionMet = result.ConditionMet
	exec.Sources = result.Sources
	if change != nil {
		text := SummaryText(change)
		exec.ChangeSummary = &text
		exec.ChangeDetail = ChangeDetail(change)
	}

	// Re-read activity: a pause or delete that raced this firing must not
	// be overridden by terminal side effects.
	fresh, err := c.tasks.GetByID(ctx, task.ID)
	if err != nil {
		c.logger.Warnw("task_vanished_midflight", "task_id", task.ID, "execution_id", exec.ID)
		return ErrTaskNotFound
	}

	rollup := ports.TaskRollup{
		UpdateRolling: true,
		ConditionMet:  result.ConditionMet,
		Snapshot:      result.State,
		Deactivate:    decision.Deactivate,
	}
	if !exec.Manual {
		rollup.NextRunAt = c.nextRun(task, now)
	}

	if err := c.tasks.RecordResult(ctx, exec, rollup); err != nil {
		// The execution stays running and is reconciled on restart; a
		// false success with stale task fields must never be recorded.
		c.logger.Errorw("execution_record_failed", "execution_id", exec.ID, "error", err)
		return err
	}

	c.recordEvent(ctx, EventExecutionSucceeded, domain.EventStatusSuccess,
		fmt.Sprintf("%q checked: condition_met=%v", task.Name, result.ConditionMet),
		task.ID, exec.ID, domain.JSONB{"condition_met": result.ConditionMet, "changed": change != nil})

	if decision.Notify {
		c.dispatch(ctx, fresh, exec, change)
	}
	if decision.Deactivate {
		c.recordEvent(ctx, EventTaskCompleted, domain.EventStatusSuccess,
			fmt.Sprintf("%q completed after first trigger", task.Name), task.ID, exec.ID, nil)
	}

	c.logger.Infow("execution_success", "task_id", task.ID, "execution_id", exec.ID,
		"condition_met", result.ConditionMet, "notified", decision.Notify, "deactivated", decision.Deactivate)
	return nil
}

func (c *Coordinator) finishFailed(ctx context.Context, task *domain.Task, exec *domain.Execution, execErr error) error {
	now := c.now()
	exec.Status = domain.ExecutionStatusFailed
	exec.FinishedAt = &now
	exec.Error = execErr.Error()

	// Rolling fields untouched: a failed check never erases the prior
	// verdict or snapshot, and never pauses monitoring.
	rollup := ports.TaskRollup{}
	if !exec.Manual {
		rollup.NextRunAt = c.nextRun(task, now)
	}

	if err := c.tasks.RecordResult(ctx, exec, rollup); err != nil {
		c.logger.Errorw("execution_record_failed", "execution_id", exec.ID, "error", err)
		return err
	}

	c.recordEvent(ctx, EventExecutionFailed, domain.EventStatusFailed,
		fmt.Sprintf("%q check failed: %v", task.Name, execErr),
		task.ID, exec.ID, domain.JSONB{"error": execErr.Error()})

	c.logger.Warnw("execution_failed", "task_id", task.ID, "execution_id", exec.ID, "error", execErr)
	return nil
}

// nextRun computes the firing after now; a schedule that no longer
// parses leaves next_run_at unchanged so the defect is visible instead
// of silently unscheduling the task.
func (c *Coordinator) nextRun(task *domain.Task, now time.Time) *time.Time {
	next, err := NextOccurrence(task.Schedule, task.Timezone, now)
	if err != nil {
		c.logger.Errorw("next_occurrence_failed", "task_id", task.ID, "schedule", task.Schedule, "error", err)
		return nil
	}
	return &next
}

func (c *Coordinator) dispatch(ctx context.Context, task *domain.Task, exec *domain.Execution, change *domain.ChangeSummary) {
	message := exec.Answer
	if task.NotifyBehavior == domain.NotifyTrackState && change != nil {
		message = SummaryText(change)
	}

	event := domain.NotificationEvent{
		TaskID:      task.ID,
		ExecutionID: exec.ID,
		TaskName:    task.Name,
		Message:     message,
		Channels:    task.Channels,
	}

	if err := c.dispatcher.Deliver(ctx, event); err != nil {
		// Logged, not retried; delivery durability is the dispatcher's
		// concern.
		c.logger.Errorw("notification_delivery_failed", "task_id", task.ID, "execution_id", exec.ID, "error", err)
		c.recordEvent(ctx, EventNotificationError, domain.EventStatusFailed, err.Error(), task.ID, exec.ID, nil)
		return
	}

	c.recordEvent(ctx, EventNotificationSent, domain.EventStatusSuccess, message, task.ID, exec.ID, nil)
	c.logger.Infow("notification_sent", "task_id", task.ID, "execution_id", exec.ID)
}

// ReconcileInterrupted fails executions left pending or running by a
// crashed process so the single-flight lock never wedges on a stale
// in-flight row. Rolling task fields are not touched; the schedule is
// advanced so the task resumes at its next occurrence.
func (c *Coordinator) ReconcileInterrupted(ctx context.Context) error {
	stuck, err := c.execs.ListUnfinished(ctx)
	if err != nil {
		return err
	}

	for i := range stuck {
		exec := &stuck[i]
		now := c.now()
		exec.Status = domain.ExecutionStatusFailed
		exec.FinishedAt = &now
		exec.Error = "execution interrupted by process restart"

		rollup := ports.TaskRollup{}
		if task, terr := c.tasks.GetByID(ctx, exec.TaskID); terr == nil && !exec.Manual {
			rollup.NextRunAt = c.nextRun(task, now)
		}

		if err := c.tasks.RecordResult(ctx, exec, rollup); err != nil {
			c.logger.Errorw("reconcile_failed", "execution_id", exec.ID, "error", err)
			continue
		}
		c.recordEvent(ctx, EventExecutionRecovered, domain.EventStatusFailed,
			"execution interrupted by process restart", exec.TaskID, exec.ID, nil)
		c.logger.Warnw("execution_reconciled", "task_id", exec.TaskID, "execution_id", exec.ID)
	}

	if len(stuck) > 0 {
		c.logger.Infow("reconcile_complete", "count", len(stuck))
	}
	return nil
}

func (c *Coordinator) recordEvent(ctx context.Context, eventType string, status domain.EventStatus, message, taskID, execID string, meta domain.JSONB) {
	event := &domain.MonitorEvent{
		Type:        eventType,
		Status:      status,
		Message:     message,
		Meta:        meta,
		TaskID:      &taskID,
		ExecutionID: &execID,
	}
	if err := c.events.Create(ctx, event); err != nil {
		c.logger.Warnw("event_record_failed", "type", eventType, "task_id", taskID, "error", err)
	}
	if c.bus != nil {
		event.CreatedAt = c.now()
		c.bus.Publish(*event)
	}
}
