package handlers

import (
	"github.com/applens/privacy-backend/jobs"
	"github.com/applens/privacy-backend/models"
	"github.com/gofiber/fiber/v2"
)

type ChartsHandler struct {
	RefreshJob *jobs.BoardRefreshJob
}

func NewChartsHandler(refreshJob *jobs.BoardRefreshJob) *ChartsHandler {
	return &ChartsHandler{RefreshJob: refreshJob}
}

// GetCharts returns the enriched entries of one board (default top-free)
// from the latest snapshot.
func (h *ChartsHandler) GetCharts(c *fiber.Ctx) error {
	board := c.Query("board", models.BoardTopFree)

	snapshot := h.RefreshJob.CurrentSnapshot()
	if snapshot == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"error":   "no snapshot available yet, refresh in progress",
		})
	}

	entries, ok := snapshot.Boards[board]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "unknown board: " + board,
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"as_of":   snapshot.AsOf,
			"board":   board,
			"entries": entries,
		},
	})
}

// GetSnapshot returns the full aggregate artifact across all boards.
func (h *ChartsHandler) GetSnapshot(c *fiber.Ctx) error {
	snapshot := h.RefreshJob.CurrentSnapshot()
	if snapshot == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"error":   "no snapshot available yet, refresh in progress",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    snapshot,
	})
}
