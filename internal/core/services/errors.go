package services

import "errors"

// Task errors
var (
	ErrTaskNotFound        = errors.New("task: not found")
	ErrTaskInvalidInput    = errors.New("task: invalid input")
	ErrTaskInvalidSchedule = errors.New("task: invalid cron schedule")
	ErrTaskInvalidTimezone = errors.New("task: invalid timezone")
	ErrTaskInvalidBehavior = errors.New("task: invalid notify behavior")
)

// Coordinator errors
var (
	ErrExecutionInFlight = errors.New("coordinator: execution already in flight for task")
	ErrTaskInactive      = errors.New("coordinator: task is not active")
	ErrFiringNotDue      = errors.New("coordinator: task firing is not due")
)

// Executor errors
var (
	ErrExecutorTimeout  = errors.New("executor: call exceeded wall-clock timeout")
	ErrRetriesExhausted = errors.New("executor: retry budget exhausted")
)

// Settings errors
var (
	ErrSettingNotFound = errors.New("settings: not found")
)
