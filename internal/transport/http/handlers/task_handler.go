package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/lookout/backend/internal/core/ports"
	"github.com/lookout/backend/internal/core/services"
	"github.com/lookout/backend/internal/domain"
	"github.com/lookout/backend/internal/infrastructure/logger"
	"github.com/lookout/backend/internal/transport/http/dto"
)

type TaskHandler struct {
	service ports.TaskService
	logger  *logger.Logger
}

func NewTaskHandler(service ports.TaskService, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{service: service, logger: logger}
}

func (h *TaskHandler) CreateTask(c *fiber.Ctx) error {
	var req dto.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("task_create_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}

	if errs := req.Validate(); len(errs) > 0 {
		h.logger.Warnw("task_create_validation_failed", "details", errs)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errs,
		})
	}

	input := ports.CreateTaskInput{
		Name:                 req.Name,
		SearchQuery:          req.SearchQuery,
		ConditionDescription: req.ConditionDescription,
		Schedule:             req.Schedule,
		Timezone:             req.Timezone,
		NotifyBehavior:       domain.NotifyBehavior(req.NotifyBehavior),
		Channels:             req.Channels,
	}

	h.logger.Infow("task_create_request", "schedule", req.Schedule, "behavior", req.NotifyBehavior)
	task, err := h.service.CreateTask(c.Context(), input)
	if err != nil {
		if isBadInput(err) {
			h.logger.Warnw("task_create_bad_request", "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: err.Error(),
			})
		}
		h.logger.Errorw("task_create_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	h.logger.Infow("task_create_success", "id", task.ID)
	return c.Status(fiber.StatusCreated).JSON(dto.TaskToResponse(task))
}

func (h *TaskHandler) GetTasks(c *fiber.Ctx) error {
	tasks, err := h.service.GetTasks(c.Context())
	if err != nil {
		h.logger.Errorw("tasks_list_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	return c.JSON(dto.TasksToResponse(tasks))
}

func (h *TaskHandler) GetTask(c *fiber.Ctx) error {
	id := c.Params("id")
	task, err := h.service.GetTaskByID(c.Context(), id)
	if err != nil {
		h.logger.Warnw("task_get_not_found", "id", id)
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: "task not found",
		})
	}
	return c.JSON(dto.TaskToResponse(task))
}

func (h *TaskHandler) UpdateTask(c *fiber.Ctx) error {
	id := c.Params("id")

	var req dto.UpdateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}
	if errs := req.Validate(); len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errs,
		})
	}

	input := ports.UpdateTaskInput{
		Name:                 req.Name,
		SearchQuery:          req.SearchQuery,
		ConditionDescription: req.ConditionDescription,
		Schedule:             req.Schedule,
		Timezone:             req.Timezone,
		Channels:             req.Channels,
	}
	if req.NotifyBehavior != nil {
		behavior := domain.NotifyBehavior(*req.NotifyBehavior)
		input.NotifyBehavior = &behavior
	}

	task, err := h.service.UpdateTask(c.Context(), id, input)
	if err != nil {
		if errors.Is(err, services.ErrTaskNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: "task not found",
			})
		}
		if isBadInput(err) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: err.Error(),
			})
		}
		h.logger.Errorw("task_update_failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	return c.JSON(dto.TaskToResponse(task))
}

func (h *TaskHandler) DeleteTask(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.DeleteTask(c.Context(), id); err != nil {
		if errors.Is(err, services.ErrTaskNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: "task not found",
			})
		}
		h.logger.Errorw("task_delete_failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	return c.JSON(dto.SuccessResponse{Message: "task deleted"})
}

func (h *TaskHandler) PauseTask(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.PauseTask(c.Context(), id); err != nil {
		if errors.Is(err, services.ErrTaskNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: "task not found",
			})
		}
		h.logger.Errorw("task_pause_failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	return c.JSON(dto.SuccessResponse{Message: "task paused"})
}

func (h *TaskHandler) ResumeTask(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.ResumeTask(c.Context(), id); err != nil {
		if errors.Is(err, services.ErrTaskNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: "task not found",
			})
		}
		h.logger.Errorw("task_resume_failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	return c.JSON(dto.SuccessResponse{Message: "task resumed"})
}

// RunTask starts an immediate out-of-band execution and returns 202 with
// the pending execution.
func (h *TaskHandler) RunTask(c *fiber.Ctx) error {
	id := c.Params("id")
	exec, err := h.service.RunNow(c.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTaskNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: "task not found",
			})
		case errors.Is(err, services.ErrExecutionInFlight):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: "an execution is already in flight for this task",
			})
		default:
			h.logger.Errorw("task_run_failed", "id", id, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
				Error: err.Error(),
			})
		}
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.ExecutionToResponse(exec))
}

func isBadInput(err error) bool {
	return errors.Is(err, services.ErrTaskInvalidInput) ||
		errors.Is(err, services.ErrTaskInvalidSchedule) ||
		errors.Is(err, services.ErrTaskInvalidTimezone) ||
		errors.Is(err, services.ErrTaskInvalidBehavior)
}
