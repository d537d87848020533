package webhooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"feedback-sentiment/metrics"
	"feedback-sentiment/models"
	"feedback-sentiment/services"
)

const processTimeout = 30 * time.Second

// PageDirectory maps a Facebook page to the organization that connected it
type PageDirectory interface {
	LookupOrganizationByPage(ctx context.Context, pageID string) (*models.Organization, error)
}

// CommentIngester stores a comment as feedback
type CommentIngester interface {
	IngestComment(ctx context.Context, orgID string, comment services.GraphComment) (*models.Feedback, bool, error)
}

// Broadcaster pushes live events to an organization's dashboards
type Broadcaster interface {
	BroadcastToOrganization(message services.BroadcastMessage)
}

// Receiver turns page feed webhooks into feedback entries
type Receiver struct {
	verifyToken string
	pages       PageDirectory
	ingester    CommentIngester
	hub         Broadcaster
	metrics     *metrics.Metrics
}

func NewReceiver(verifyToken string, pages PageDirectory, ingester CommentIngester, hub Broadcaster, m *metrics.Metrics) *Receiver {
	return &Receiver{
		verifyToken: verifyToken,
		pages:       pages,
		ingester:    ingester,
		hub:         hub,
		metrics:     m,
	}
}

func (r *Receiver) RegisterRoutes(app *fiber.App) {
	webhook := app.Group("/webhook")

	// Webhook verification endpoint
	webhook.Get("/", r.verifyWebhook)

	// Webhook event handler
	webhook.Post("/", r.handleWebhookEvent)
}

// verifyWebhook answers the subscription handshake
func (r *Receiver) verifyWebhook(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == r.verifyToken {
		slog.Info("Webhook verified successfully")
		return c.SendString(challenge)
	}

	slog.Warn("Webhook verification failed", "mode", mode)
	return c.SendStatus(fiber.StatusForbidden)
}

func (r *Receiver) handleWebhookEvent(c *fiber.Ctx) error {
	var body WebhookEvent
	if err := c.BodyParser(&body); err != nil {
		slog.Error("Failed to parse webhook body", "error", err)
		return c.SendStatus(fiber.StatusBadRequest)
	}

	// Only process page events
	if body.Object != "page" {
		return c.SendStatus(fiber.StatusNotFound)
	}

	// Facebook expects a fast acknowledgement
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		r.ProcessEvent(ctx, body)
	}()

	return c.SendString("EVENT_RECEIVED")
}

// ProcessEvent stores new feed comments of every connected page in body and
// returns how many were added
func (r *Receiver) ProcessEvent(ctx context.Context, body WebhookEvent) int {
	added := 0

	for _, entry := range body.Entry {
		org, err := r.pages.LookupOrganizationByPage(ctx, entry.ID)
		if err != nil {
			slog.Error("Failed to resolve page", "pageID", entry.ID, "error", err)
			continue
		}
		if org == nil {
			slog.Warn("Webhook for unknown page", "pageID", entry.ID)
			continue
		}
		orgID := org.ID.Hex()

		for _, change := range entry.Changes {
			if change.Field != "feed" || change.Value.Item != "comment" {
				continue
			}
			if change.Value.Verb != "" && change.Value.Verb != "add" {
				continue
			}

			var authorID, authorName string
			if change.Value.From != nil {
				authorID, authorName = change.Value.From.ID, change.Value.From.Name
			}
			// Comments written by the page itself are replies, not feedback
			if authorID == entry.ID {
				continue
			}

			comment := services.CommentFromWebhook(change.Value.CommentID, change.Value.Message, authorID, authorName, change.Value.CreatedTime)
			feedback, created, err := r.ingester.IngestComment(ctx, orgID, comment)
			if err != nil {
				slog.Error("Failed to store comment", "commentID", change.Value.CommentID, "error", err)
				continue
			}
			if !created {
				continue
			}

			added++
			r.metrics.FeedbackIngested(string(models.SourceFacebook), 1)
			r.hub.BroadcastToOrganization(services.BroadcastMessage{
				OrganizationID: orgID,
				Type:           services.EventFeedbackCreated,
				Data:           feedback,
			})
		}
	}

	return added
}
