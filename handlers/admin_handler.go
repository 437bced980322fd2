package handlers

import (
	"github.com/applens/privacy-backend/jobs"
	"github.com/applens/privacy-backend/services"
	"github.com/gofiber/fiber/v2"
)

type AdminHandler struct {
	RefreshJob    *jobs.BoardRefreshJob
	ChartService  *services.ChartService
	RecordService *services.RecordService
}

func NewAdminHandler(refreshJob *jobs.BoardRefreshJob, chartService *services.ChartService, recordService *services.RecordService) *AdminHandler {
	return &AdminHandler{
		RefreshJob:    refreshJob,
		ChartService:  chartService,
		RecordService: recordService,
	}
}

// TriggerRefresh starts a refresh pass in the background.
func (h *AdminHandler) TriggerRefresh(c *fiber.Ctx) error {
	go h.RefreshJob.Run()

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Board refresh triggered",
	})
}

// GetMetrics returns service metric snapshots.
func (h *AdminHandler) GetMetrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"chart_service":  h.ChartService.Metrics().Snapshot(),
			"record_service": h.RecordService.Metrics().Snapshot(),
		},
	})
}
