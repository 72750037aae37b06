package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/lookout/backend/internal/core/ports"
	"github.com/lookout/backend/internal/infrastructure/logger"
	"github.com/lookout/backend/internal/transport/http/dto"
)

type ExecutionHandler struct {
	repo   ports.ExecutionRepository
	logger *logger.Logger
}

func NewExecutionHandler(repo ports.ExecutionRepository, logger *logger.Logger) *ExecutionHandler {
	return &ExecutionHandler{repo: repo, logger: logger}
}

// GetByTask returns a task's execution history, newest first.
func (h *ExecutionHandler) GetByTask(c *fiber.Ctx) error {
	taskID := c.Params("id")

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: "limit must be between 1 and 500",
			})
		}
		limit = parsed
	}

	execs, err := h.repo.GetByTaskID(c.Context(), taskID, limit)
	if err != nil {
		h.logger.Errorw("executions_list_failed", "task_id", taskID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	return c.JSON(dto.ExecutionsToResponse(execs))
}

func (h *ExecutionHandler) GetExecution(c *fiber.Ctx) error {
	id := c.Params("id")
	exec, err := h.repo.GetByID(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: "execution not found",
		})
	}
	return c.JSON(dto.ExecutionToResponse(exec))
}
