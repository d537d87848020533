package handlers

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"feedback-sentiment/middleware"
	"feedback-sentiment/models"
	"feedback-sentiment/services"
)

// StatsProvider aggregates an organization's sentiment figures
type StatsProvider interface {
	Stats(ctx context.Context, orgID string) (*models.SentimentStats, error)
}

type DashboardHandler struct {
	stats StatsProvider
	hub   *services.WebSocketManager
}

func NewDashboardHandler(stats StatsProvider, hub *services.WebSocketManager) *DashboardHandler {
	return &DashboardHandler{stats: stats, hub: hub}
}

// Stats returns the sentiment breakdown and live viewer count of the session organization
func (h *DashboardHandler) Stats(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)

	stats, err := h.stats.Stats(c.Context(), orgID)
	if err != nil {
		slog.Error("Failed to compute stats", "error", err, "organizationID", orgID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load statistics",
		})
	}

	return c.JSON(fiber.Map{
		"stats":        stats,
		"live_viewers": h.hub.GetConnectionCount(orgID),
	})
}
