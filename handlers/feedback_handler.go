package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"feedback-sentiment/metrics"
	"feedback-sentiment/middleware"
	"feedback-sentiment/models"
	"feedback-sentiment/services"
	"feedback-sentiment/session"
)

// FeedbackStore persists feedback for an organization
type FeedbackStore interface {
	Create(ctx context.Context, f *models.Feedback) error
	Get(ctx context.Context, orgID, id string) (*models.Feedback, error)
	List(ctx context.Context, orgID string, filter services.FeedbackFilter) ([]models.Feedback, int64, error)
	Search(ctx context.Context, orgID, query string, limit int64) ([]models.Feedback, error)
	SaveAnalysis(ctx context.Context, id primitive.ObjectID, result *models.SentimentResult) error
}

// FeedbackImporter stores parsed CSV rows
type FeedbackImporter interface {
	Import(ctx context.Context, orgID string, rows []services.ImportRow, parseErrors []services.RowError) (*services.ImportResult, error)
}

// Analyzer scores the sentiment of a feedback text
type Analyzer interface {
	Analyze(ctx context.Context, text, organizationName, source string) (*models.SentimentResult, error)
}

// Broadcaster pushes live events to an organization's dashboards
type Broadcaster interface {
	BroadcastToOrganization(message services.BroadcastMessage)
}

const maxImportFileSize = 5 * 1024 * 1024

type CreateFeedbackRequest struct {
	Text        string    `json:"text"`
	Author      string    `json:"author"`
	Source      string    `json:"source"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type FeedbackHandler struct {
	store    FeedbackStore
	importer FeedbackImporter
	analyzer Analyzer
	hub      Broadcaster
	sessions *session.Manager
	metrics  *metrics.Metrics
}

func NewFeedbackHandler(store FeedbackStore, importer FeedbackImporter, analyzer Analyzer, hub Broadcaster, sessions *session.Manager, m *metrics.Metrics) *FeedbackHandler {
	return &FeedbackHandler{
		store:    store,
		importer: importer,
		analyzer: analyzer,
		hub:      hub,
		sessions: sessions,
		metrics:  m,
	}
}

// Create stores a single feedback entry entered by hand or posted by an API client
func (h *FeedbackHandler) Create(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)

	var req CreateFeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Text is required",
		})
	}
	if services.FeedbackLength(req.Text) > services.MaxFeedbackLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Text is too long",
		})
	}

	source := models.SourceManual
	if req.Source == string(models.SourceAPI) {
		source = models.SourceAPI
	}

	feedback := &models.Feedback{
		OrganizationID: orgID,
		Source:         source,
		Text:           req.Text,
		Author:         strings.TrimSpace(req.Author),
		SubmittedAt:    req.SubmittedAt,
	}

	if err := h.store.Create(c.Context(), feedback); err != nil {
		slog.Error("Failed to create feedback", "error", err, "organizationID", orgID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save feedback",
		})
	}

	h.metrics.FeedbackIngested(string(source), 1)
	h.hub.BroadcastToOrganization(services.BroadcastMessage{
		OrganizationID: orgID,
		Type:           services.EventFeedbackCreated,
		Data:           feedback,
	})

	return c.Status(fiber.StatusCreated).JSON(feedback)
}

// Import stores the rows of an uploaded CSV file
func (h *FeedbackHandler) Import(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "CSV file is required",
		})
	}
	if fileHeader.Size > maxImportFileSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "CSV file is too large",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		slog.Error("Failed to open uploaded file", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}
	defer file.Close()

	rows, parseErrors, err := services.ParseFeedbackCSV(file)
	if err != nil {
		message := "Invalid CSV file"
		if errors.Is(err, services.ErrMissingTextColumn) {
			message = err.Error()
		}
		slog.Warn("Rejected CSV import", "error", err, "organizationID", orgID, "filename", fileHeader.Filename)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": message,
		})
	}

	result, err := h.importer.Import(c.Context(), orgID, rows, parseErrors)
	if err != nil {
		slog.Error("CSV import interrupted", "error", err, "organizationID", orgID)
		if result == nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Import failed",
			})
		}
	}

	h.metrics.FeedbackIngested(string(models.SourceCSV), result.Imported)
	h.hub.BroadcastToOrganization(services.BroadcastMessage{
		OrganizationID: orgID,
		Type:           services.EventImportFinished,
		Data:           result,
	})

	return c.JSON(result)
}

// List returns one page of the organization's feedback
func (h *FeedbackHandler) List(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)

	filter := services.FeedbackFilter{
		Sentiment: c.Query("sentiment"),
		Source:    c.Query("source"),
		Page:      int64(c.QueryInt("page", 1)),
		Limit:     int64(c.QueryInt("limit", 20)),
	}

	entries, total, err := h.store.List(c.Context(), orgID, filter)
	if err != nil {
		slog.Error("Failed to list feedback", "error", err, "organizationID", orgID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list feedback",
		})
	}

	return c.JSON(fiber.Map{
		"feedback": entries,
		"total":    total,
		"page":     filter.Page,
		"limit":    filter.Limit,
	})
}

// Search finds feedback by keywords in its text
func (h *FeedbackHandler) Search(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)

	query := strings.TrimSpace(c.Query("q"))
	if len(services.SearchTerms(query)) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query must contain a word of at least 3 characters",
		})
	}

	results, err := h.store.Search(c.Context(), orgID, query, int64(c.QueryInt("limit", 20)))
	if err != nil {
		slog.Error("Failed to search feedback", "error", err, "organizationID", orgID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Search failed",
		})
	}

	return c.JSON(fiber.Map{
		"query":    query,
		"feedback": results,
		"count":    len(results),
	})
}

// Analyze scores one feedback entry and pushes the result to live dashboards
func (h *FeedbackHandler) Analyze(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)

	feedback, err := h.store.Get(c.Context(), orgID, c.Params("id"))
	if err != nil {
		slog.Error("Failed to load feedback", "error", err, "id", c.Params("id"))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load feedback",
		})
	}
	if feedback == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Feedback not found",
		})
	}

	var orgName string
	if org := h.sessions.For(c).ReadOrganization(); org != nil {
		orgName = org.Name
	}

	result, err := h.analyzer.Analyze(c.Context(), feedback.Text, orgName, string(feedback.Source))
	if err != nil {
		h.metrics.Analysis(false)
		if errors.Is(err, services.ErrAnalyzerNotConfigured) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Sentiment analysis is not configured",
			})
		}
		slog.Error("Sentiment analysis failed", "error", err, "feedbackID", feedback.ID.Hex())
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Sentiment analysis failed",
		})
	}
	h.metrics.Analysis(true)

	if err := h.store.SaveAnalysis(c.Context(), feedback.ID, result); err != nil {
		slog.Error("Failed to save analysis", "error", err, "feedbackID", feedback.ID.Hex())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save analysis",
		})
	}

	now := time.Now()
	feedback.Sentiment = result.Sentiment
	feedback.Score = result.Score
	feedback.Themes = result.Themes
	feedback.AnalyzedAt = &now

	h.hub.BroadcastToOrganization(services.BroadcastMessage{
		OrganizationID: orgID,
		Type:           services.EventFeedbackAnalyzed,
		Data:           feedback,
	})

	return c.JSON(feedback)
}
