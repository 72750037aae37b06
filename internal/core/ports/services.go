package ports

import (
	"context"
	"errors"

	"github.com/lookout/backend/internal/domain"
)

type TaskService interface {
	CreateTask(ctx context.Context, input CreateTaskInput) (*domain.Task, error)
	GetTasks(ctx context.Context) ([]domain.Task, error)
	GetTaskByID(ctx context.Context, id string) (*domain.Task, error)
	UpdateTask(ctx context.Context, id string, input UpdateTaskInput) (*domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	PauseTask(ctx context.Context, id string) error
	ResumeTask(ctx context.Context, id string) error

	// RunNow starts an immediate out-of-band execution through the same
	// state machine, bypassing the due check. It returns the pending
	// execution; the firing completes asynchronously.
	RunNow(ctx context.Context, id string) (*domain.Execution, error)
}

type CreateTaskInput struct {
	Name                 string
	SearchQuery          string
	ConditionDescription string
	Schedule             string
	Timezone             string
	NotifyBehavior       domain.NotifyBehavior
	Channels             domain.JSONB
}

type UpdateTaskInput struct {
	Name                 *string
	SearchQuery          *string
	ConditionDescription *string
	Schedule             *string
	Timezone             *string
	NotifyBehavior       *domain.NotifyBehavior
	Channels             domain.JSONB
}

// SearchExecutor is the capability interface for the search/LLM backend.
// Implementations classify every failure as transient or permanent via
// ExecutorError; an unclassified error is treated as permanent.
type SearchExecutor interface {
	Execute(ctx context.Context, input SearchInput) (*SearchResult, error)
}

type SearchInput struct {
	Query      string
	Condition  string
	PriorState domain.JSONB
}

type SearchResult struct {
	Answer       string
	State        domain.JSONB
	ConditionMet bool
	Sources      domain.GroundingSources
}

// ExecutorError wraps a search executor failure with its retry class.
type ExecutorError struct {
	Err       error
	Transient bool
}

func (e *ExecutorError) Error() string { return e.Err.Error() }
func (e *ExecutorError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable executor failure.
func IsTransient(err error) bool {
	var ee *ExecutorError
	if errors.As(err, &ee) {
		return ee.Transient
	}
	return false
}

// NotificationDispatcher delivers a decided notification. Delivery errors
// are logged by the caller, never retried; durability past this boundary
// is the dispatcher's concern.
type NotificationDispatcher interface {
	Deliver(ctx context.Context, event domain.NotificationEvent) error
}

type SystemSettingService interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value, category string, secret bool) error
	GetByCategory(ctx context.Context, category string) (map[string]string, error)
}
