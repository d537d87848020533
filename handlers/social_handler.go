package handlers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"feedback-sentiment/metrics"
	"feedback-sentiment/middleware"
	"feedback-sentiment/models"
	"feedback-sentiment/services"
)

// PostSyncer imports the comments of a social post as feedback
type PostSyncer interface {
	SyncPost(ctx context.Context, orgID, postID, pageAccessToken string) (*services.SyncResult, error)
}

// OrganizationLookup resolves the stored organization record
type OrganizationLookup interface {
	LookupOrganizationDetails(ctx context.Context, orgID string) (*models.Organization, error)
}

type FacebookSyncRequest struct {
	PageAccessToken string `json:"page_access_token"`
	PostID          string `json:"post_id"`
}

type SocialHandler struct {
	syncer  PostSyncer
	orgs    OrganizationLookup
	hub     Broadcaster
	metrics *metrics.Metrics
}

func NewSocialHandler(syncer PostSyncer, orgs OrganizationLookup, hub Broadcaster, m *metrics.Metrics) *SocialHandler {
	return &SocialHandler{syncer: syncer, orgs: orgs, hub: hub, metrics: m}
}

// SyncFacebookPost pulls the comments of one post. Without a token in the
// body the organization's stored page token is used.
func (h *SocialHandler) SyncFacebookPost(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)

	var req FacebookSyncRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.PostID = strings.TrimSpace(req.PostID)
	if req.PostID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "post_id is required",
		})
	}

	if req.PageAccessToken == "" {
		org, err := h.orgs.LookupOrganizationDetails(c.Context(), orgID)
		if err != nil {
			slog.Error("Failed to load organization", "error", err, "organizationID", orgID)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load organization",
			})
		}
		if org != nil {
			req.PageAccessToken = org.FacebookPageToken
		}
	}
	if req.PageAccessToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "page_access_token is required",
		})
	}

	result, err := h.syncer.SyncPost(c.Context(), orgID, req.PostID, req.PageAccessToken)
	if result != nil {
		h.publish(orgID, result.New)
	}
	if err != nil {
		slog.Error("Facebook sync failed", "error", err, "organizationID", orgID, "postID", req.PostID)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to sync Facebook comments",
		})
	}

	return c.JSON(result)
}

func (h *SocialHandler) publish(orgID string, created []*models.Feedback) {
	h.metrics.FeedbackIngested(string(models.SourceFacebook), len(created))
	for _, feedback := range created {
		h.hub.BroadcastToOrganization(services.BroadcastMessage{
			OrganizationID: orgID,
			Type:           services.EventFeedbackCreated,
			Data:           feedback,
		})
	}
}
