package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/lookout/backend/internal/core/ports"
	"github.com/lookout/backend/internal/domain"
	"github.com/lookout/backend/internal/infrastructure/logger"
)

type taskService struct {
	repo   ports.TaskRepository
	coord  *Coordinator
	logger *logger.Logger
}

type TaskServiceConfig struct {
	Repository  ports.TaskRepository
	Coordinator *Coordinator
	Logger      *logger.Logger
}

func NewTaskService(cfg TaskServiceConfig) ports.TaskService {
	return &taskService{
		repo:   cfg.Repository,
		coord:  cfg.Coordinator,
		logger: cfg.Logger,
	}
}

func (s *taskService) CreateTask(ctx context.Context, input ports.CreateTaskInput) (*domain.Task, error) {
	if strings.TrimSpace(input.SearchQuery) == "" || strings.TrimSpace(input.ConditionDescription) == "" {
		return nil, ErrTaskInvalidInput
	}
	if !input.NotifyBehavior.Valid() {
		return nil, ErrTaskInvalidBehavior
	}
	if err := ValidateSchedule(input.Schedule, input.Timezone); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = input.SearchQuery
	}

	next, err := NextOccurrence(input.Schedule, input.Timezone, s.coord.now())
	if err != nil {
		return nil, err
	}

	task := &domain.Task{
		ID:                   uuid.New().String(),
		Name:                 name,
		SearchQuery:          input.SearchQuery,
		ConditionDescription: input.ConditionDescription,
		Schedule:             input.Schedule,
		Timezone:             input.Timezone,
		NotifyBehavior:       input.NotifyBehavior,
		IsActive:             true,
		NextRunAt:            &next,
		Channels:             input.Channels,
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}

	s.logger.Infow("task_created", "id", task.ID, "schedule", task.Schedule, "timezone", task.Timezone, "behavior", task.NotifyBehavior)
	return task, nil
}

func (s *taskService) GetTasks(ctx context.Context) ([]domain.Task, error) {
	return s.repo.GetAll(ctx)
}

func (s *taskService) GetTaskByID(ctx context.Context, id string) (*domain.Task, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

func (s *taskService) UpdateTask(ctx context.Context, id string, input ports.UpdateTaskInput) (*domain.Task, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrTaskNotFound
	}

	if input.Name != nil {
		task.Name = strings.TrimSpace(*input.Name)
	}
	if input.SearchQuery != nil {
		if strings.TrimSpace(*input.SearchQuery) == "" {
			return nil, ErrTaskInvalidInput
		}
		task.SearchQuery = *input.SearchQuery
	}
	if input.ConditionDescription != nil {
		if strings.TrimSpace(*input.ConditionDescription) == "" {
			return nil, ErrTaskInvalidInput
		}
		task.ConditionDescription = *input.ConditionDescription
	}
	if input.NotifyBehavior != nil {
		if !input.NotifyBehavior.Valid() {
			return nil, ErrTaskInvalidBehavior
		}
		task.NotifyBehavior = *input.NotifyBehavior
	}
	if input.Channels != nil {
		task.Channels = input.Channels
	}

	rescheduled := false
	if input.Schedule != nil {
		task.Schedule = *input.Schedule
		rescheduled = true
	}
	if input.Timezone != nil {
		task.Timezone = *input.Timezone
		rescheduled = true
	}
	if rescheduled {
		if err := ValidateSchedule(task.Schedule, task.Timezone); err != nil {
			return nil, err
		}
		next, err := NextOccurrence(task.Schedule, task.Timezone, s.coord.now())
		if err != nil {
			return nil, err
		}
		task.NextRunAt = &next
	}

	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}

	s.logger.Infow("task_updated", "id", task.ID, "rescheduled", rescheduled)
	return task, nil
}

func (s *taskService) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return ErrTaskNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("task_deleted", "id", id)
	return nil
}

// PauseTask stops future firings immediately. An in-flight execution is
// allowed to complete.
func (s *taskService) PauseTask(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return ErrTaskNotFound
	}
	if err := s.repo.SetActive(ctx, id, false, nil); err != nil {
		return err
	}
	s.logger.Infow("task_paused", "id", id)
	return nil
}

// ResumeTask reactivates scheduling from the next occurrence after now,
// not from the due instant that accumulated while paused.
func (s *taskService) ResumeTask(ctx context.Context, id string) error {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return ErrTaskNotFound
	}

	next, err := NextOccurrence(task.Schedule, task.Timezone, s.coord.now())
	if err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, true, &next); err != nil {
		return err
	}
	s.logger.Infow("task_resumed", "id", id, "next_run_at", next)
	return nil
}

func (s *taskService) RunNow(ctx context.Context, id string) (*domain.Execution, error) {
	exec, err := s.coord.RunManual(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Infow("task_run_now", "id", id, "execution_id", exec.ID)
	return exec, nil
}
