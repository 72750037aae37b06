package ports

import (
	"context"
	"time"

	"github.com/lookout/backend/internal/domain"
)

// TaskRollup carries the task-side updates applied atomically with an
// execution's terminal persist. Rolling fields are only touched when
// UpdateRolling is true (i.e. the execution succeeded); a failed firing
// must leave them exactly as they were.
type TaskRollup struct {
	UpdateRolling bool
	ConditionMet  bool
	Snapshot      domain.JSONB
	Deactivate    bool
	// NextRunAt advances the schedule when non-nil; nil leaves it unchanged
	// (manual out-of-band runs do not shift the schedule).
	NextRunAt *time.Time
}

type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	GetAll(ctx context.Context) ([]domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, id string) error

	// ListDue returns active tasks whose next firing is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]domain.Task, error)
	SetActive(ctx context.Context, id string, active bool, nextRunAt *time.Time) error

	// RecordResult persists the execution's terminal state and the rollup
	// in a single transaction. It must never leave a terminal execution
	// alongside stale task fields.
	RecordResult(ctx context.Context, exec *domain.Execution, rollup TaskRollup) error
}

type ExecutionRepository interface {
	Create(ctx context.Context, exec *domain.Execution) error
	Update(ctx context.Context, exec *domain.Execution) error
	GetByID(ctx context.Context, id string) (*domain.Execution, error)
	GetByTaskID(ctx context.Context, taskID string, limit int) ([]domain.Execution, error)

	// ListUnfinished returns executions stuck in pending or running,
	// used for crash reconciliation on startup.
	ListUnfinished(ctx context.Context) ([]domain.Execution, error)
}

type EventRepository interface {
	Create(ctx context.Context, event *domain.MonitorEvent) error
	GetAll(ctx context.Context, limit int) ([]domain.MonitorEvent, error)
	GetByTask(ctx context.Context, taskID string, limit int) ([]domain.MonitorEvent, error)
}

type SystemSettingRepository interface {
	Get(ctx context.Context, key string) (*domain.SystemSetting, error)
	Set(ctx context.Context, setting *domain.SystemSetting) error
	GetByCategory(ctx context.Context, category string) ([]domain.SystemSetting, error)
	Delete(ctx context.Context, key string) error
}
