package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/lookout/backend/internal/core/ports"
	"github.com/lookout/backend/internal/transport/http/dto"
)

type EventHandler struct {
	repo ports.EventRepository
}

func NewEventHandler(repo ports.EventRepository) *EventHandler {
	return &EventHandler{repo: repo}
}

func (h *EventHandler) GetEvents(c *fiber.Ctx) error {
	if taskID := c.Query("task_id"); taskID != "" {
		events, err := h.repo.GetByTask(c.Context(), taskID, 50)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		return c.JSON(events)
	}

	events, err := h.repo.GetAll(c.Context(), 50)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(events)
}
