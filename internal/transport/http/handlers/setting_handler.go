package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/lookout/backend/internal/core/services"
	"github.com/lookout/backend/internal/infrastructure/logger"
	"github.com/lookout/backend/internal/transport/http/dto"
)

type SettingHandler struct {
	service *services.SystemSettingService
	logger  *logger.Logger
}

func NewSettingHandler(service *services.SystemSettingService, logger *logger.Logger) *SettingHandler {
	return &SettingHandler{service: service, logger: logger}
}

func (h *SettingHandler) GetSettings(c *fiber.Ctx) error {
	category := c.Query("category", "executor")
	settings, err := h.service.GetByCategory(c.Context(), category)
	if err != nil {
		h.logger.Errorw("settings_get_failed", "category", category, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	return c.JSON(settings)
}

type updateSettingRequest struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Category string `json:"category"`
	Secret   bool   `json:"secret"`
}

func (h *SettingHandler) UpdateSetting(c *fiber.Ctx) error {
	var req updateSettingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}
	if req.Key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "key is required",
		})
	}
	if req.Category == "" {
		req.Category = "general"
	}

	if err := h.service.Set(c.Context(), req.Key, req.Value, req.Category, req.Secret); err != nil {
		h.logger.Errorw("setting_update_failed", "key", req.Key, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	return c.JSON(dto.SuccessResponse{Message: "setting saved"})
}
