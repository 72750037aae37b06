package dto

import (
	"time"

	"github.com/lookout/backend/internal/domain"
)

type CreateTaskRequest struct {
	Name                 string       `json:"name"`
	SearchQuery          string       `json:"search_query" validate:"required"`
	ConditionDescription string       `json:"condition_description" validate:"required"`
	Schedule             string       `json:"schedule" validate:"required"`
	Timezone             string       `json:"timezone" validate:"required"`
	NotifyBehavior       string       `json:"notify_behavior" validate:"required,oneof=once always track_state"`
	Channels             domain.JSONB `json:"channels,omitempty"`
}

func (r *CreateTaskRequest) Validate() []string {
	var errors []string

	if r.SearchQuery == "" {
		errors = append(errors, "search_query is required")
	}
	if r.ConditionDescription == "" {
		errors = append(errors, "condition_description is required")
	}
	if r.Schedule == "" {
		errors = append(errors, "schedule is required")
	}
	if r.Timezone == "" {
		errors = append(errors, "timezone is required")
	}
	if r.NotifyBehavior == "" {
		errors = append(errors, "notify_behavior is required")
	} else if !domain.NotifyBehavior(r.NotifyBehavior).Valid() {
		errors = append(errors, "notify_behavior must be one of: once, always, track_state")
	}

	return errors
}

type UpdateTaskRequest struct {
	Name                 *string      `json:"name,omitempty"`
	SearchQuery          *string      `json:"search_query,omitempty"`
	ConditionDescription *string      `json:"condition_description,omitempty"`
	Schedule             *string      `json:"schedule,omitempty"`
	Timezone             *string      `json:"timezone,omitempty"`
	NotifyBehavior       *string      `json:"notify_behavior,omitempty"`
	Channels             domain.JSONB `json:"channels,omitempty"`
}

func (r *UpdateTaskRequest) Validate() []string {
	var errors []string
	if r.NotifyBehavior != nil && !domain.NotifyBehavior(*r.NotifyBehavior).Valid() {
		errors = append(errors, "notify_behavior must be one of: once, always, track_state")
	}
	if r.SearchQuery != nil && *r.SearchQuery == "" {
		errors = append(errors, "search_query must not be empty")
	}
	if r.ConditionDescription != nil && *r.ConditionDescription == "" {
		errors = append(errors, "condition_description must not be empty")
	}
	return errors
}

type TaskResponse struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"`
	SearchQuery          string                `json:"search_query"`
	ConditionDescription string                `json:"condition_description"`
	Schedule             string                `json:"schedule"`
	Timezone             string                `json:"timezone"`
	NotifyBehavior       domain.NotifyBehavior `json:"notify_behavior"`
	Status               domain.TaskStatus     `json:"status"`
	IsActive             bool                  `json:"is_active"`
	ConditionMet         bool                  `json:"condition_met"`
	LastKnownState       domain.JSONB          `json:"last_known_state,omitempty"`
	LastExecutionID      *string               `json:"last_execution_id,omitempty"`
	NextRunAt            *time.Time            `json:"next_run_at,omitempty"`
	Channels             domain.JSONB          `json:"channels,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

func TaskToResponse(task *domain.Task) TaskResponse {
	return TaskResponse{
		ID:                   task.ID,
		Name:                 task.Name,
		SearchQuery:          task.SearchQuery,
		ConditionDescription: task.ConditionDescription,
		Schedule:             task.Schedule,
		Timezone:             task.Timezone,
		NotifyBehavior:       task.NotifyBehavior,
		Status:               task.DisplayStatus(),
		IsActive:             task.IsActive,
		ConditionMet:         task.ConditionMet,
		LastKnownState:       task.LastKnownState,
		LastExecutionID:      task.LastExecutionID,
		NextRunAt:            task.NextRunAt,
		Channels:             task.Channels,
		CreatedAt:            task.CreatedAt,
		UpdatedAt:            task.UpdatedAt,
	}
}

func TasksToResponse(tasks []domain.Task) []TaskResponse {
	responses := make([]TaskResponse, len(tasks))
	for i := range tasks {
		responses[i] = TaskToResponse(&tasks[i])
	}
	return responses
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}
