package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"feedback-sentiment/models"
	"feedback-sentiment/services"
)

// ClientTracker reports how many client identities the rate limiter holds
type ClientTracker interface {
	Len() int
}

// AccountAdmin creates accounts and assigns roles
type AccountAdmin interface {
	CreateUser(ctx context.Context, email, fullName, password string) (*models.User, error)
	AssignRole(ctx context.Context, userID string, role models.UserRole) error
}

type CreateUserRequest struct {
	Email    string          `json:"email"`
	FullName string          `json:"full_name"`
	Password string          `json:"password"`
	Role     models.UserRole `json:"role"`
}

const minPasswordLength = 8

type AdminHandler struct {
	limiter  ClientTracker
	window   time.Duration
	accounts AccountAdmin
}

func NewAdminHandler(limiter ClientTracker, window time.Duration, accounts AccountAdmin) *AdminHandler {
	return &AdminHandler{limiter: limiter, window: window, accounts: accounts}
}

// RateLimitStats reports the limiter state
func (h *AdminHandler) RateLimitStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"tracked_clients": h.limiter.Len(),
		"window_ms":       h.window.Milliseconds(),
	})
}

// CreateUser creates an account and gives it a role, observer by default
func (h *AdminHandler) CreateUser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A valid email is required",
		})
	}
	if len(req.Password) < minPasswordLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Password must be at least 8 characters",
		})
	}
	if req.Role == "" {
		req.Role = models.RoleObserver
	}

	user, err := h.accounts.CreateUser(c.Context(), req.Email, strings.TrimSpace(req.FullName), req.Password)
	if err != nil {
		if errors.Is(err, services.ErrUserExists) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "User already exists",
			})
		}
		slog.Error("Failed to create user", "error", err, "email", req.Email)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create user",
		})
	}

	if err := h.accounts.AssignRole(c.Context(), user.ID.Hex(), req.Role); err != nil {
		slog.Error("Failed to assign role", "error", err, "user_id", user.ID.Hex())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "User created but role assignment failed",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user": user,
		"role": req.Role,
	})
}

// AssignRole changes the role of an existing user. The change reaches the
// user's session on their next sign in or role refresh.
func (h *AdminHandler) AssignRole(c *fiber.Ctx) error {
	userID := c.Params("id")

	var req struct {
		Role models.UserRole `json:"role"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(string(req.Role)) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "role is required",
		})
	}

	if err := h.accounts.AssignRole(c.Context(), userID, req.Role); err != nil {
		slog.Error("Failed to assign role", "error", err, "user_id", userID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to assign role",
		})
	}

	slog.Info("Role assigned", "user_id", userID, "role", req.Role)

	return c.JSON(fiber.Map{"user_id": userID, "role": req.Role})
}
