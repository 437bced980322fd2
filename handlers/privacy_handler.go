package handlers

import (
	"strconv"

	"github.com/applens/privacy-backend/services"
	"github.com/gofiber/fiber/v2"
)

type PrivacyHandler struct {
	RecordService *services.RecordService
	Scorer        *services.IntensityScorer
}

func NewPrivacyHandler(recordService *services.RecordService, scorer *services.IntensityScorer) *PrivacyHandler {
	return &PrivacyHandler{RecordService: recordService, Scorer: scorer}
}

// GetApp returns the cached privacy record for one app. Apps without a
// record render as an explicit not-yet-available state, never an error.
func (h *PrivacyHandler) GetApp(c *fiber.Ctx) error {
	storeID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || storeID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid store ID",
		})
	}

	record := h.RecordService.Peek(c.Context(), storeID)
	if record == nil {
		return c.JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"store_id":          storeID,
				"privacy_available": false,
				"score":             h.Scorer.Score(nil),
			},
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"store_id":          storeID,
			"privacy_available": true,
			"record":            record,
			"score":             h.Scorer.Score(record),
		},
	})
}

// GetAppScore returns just the derived intensity score for one app.
// An absent record scores 0/Low.
func (h *PrivacyHandler) GetAppScore(c *fiber.Ctx) error {
	storeID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || storeID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid store ID",
		})
	}

	record := h.RecordService.Peek(c.Context(), storeID)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.Scorer.Score(record),
	})
}
