package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"feedback-sentiment/models"
	"feedback-sentiment/services"
	"feedback-sentiment/session"
)

// AuthProvider verifies credentials
type AuthProvider interface {
	SignIn(ctx context.Context, email, password string) (*models.User, error)
	SignOut(ctx context.Context, userID string) error
}

// Directory looks up the facts cached in a session. Lookups that find
// nothing return a zero value and a nil error.
type Directory interface {
	LookupRole(ctx context.Context, userID string) (models.UserRole, bool, error)
	LookupOrganizations(ctx context.Context, userID string) ([]models.Membership, error)
	LookupActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	LookupOrganizationDetails(ctx context.Context, orgID string) (*models.Organization, error)
}

const onboardingRedirect = "/onboarding"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message      string               `json:"message"`
	User         *models.SessionUser  `json:"user"`
	Role         models.UserRole      `json:"role"`
	Organization *models.Organization `json:"organization,omitempty"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
	Redirect     string               `json:"redirect,omitempty"`
}

type AuthHandler struct {
	auth     AuthProvider
	dir      Directory
	sessions *session.Manager
}

func NewAuthHandler(auth AuthProvider, dir Directory, sessions *session.Manager) *AuthHandler {
	return &AuthHandler{auth: auth, dir: dir, sessions: sessions}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email and password are required",
		})
	}

	user, err := h.auth.SignIn(c.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	case errors.Is(err, services.ErrAccountDisabled):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Account is disabled",
		})
	case err != nil:
		slog.Error("Sign in failed", "error", err, "email", req.Email)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Sign in failed",
		})
	}

	// Slots left behind by a previous user must not survive the sign in
	cache := h.sessions.For(c)
	cache.Purge()
	cache.WriteUser(user)

	resp, err := h.populate(c.Context(), cache, user.ID.Hex())
	if err != nil {
		cache.Purge()
		slog.Error("Failed to load session data", "error", err, "user_id", user.ID.Hex())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load account",
		})
	}

	resp.Message = "Login successful"
	resp.User = cache.ReadUser()

	slog.Info("User logged in", "user_id", user.ID.Hex(), "email", user.Email, "role", resp.Role)

	return c.JSON(resp)
}

// populate writes role, organization and subscription slots after sign in
func (h *AuthHandler) populate(ctx context.Context, cache *session.Cache, userID string) (*LoginResponse, error) {
	resp := &LoginResponse{}

	role, err := h.writeRole(ctx, cache, userID)
	if err != nil {
		return nil, err
	}
	resp.Role = role

	org, err := h.writeOrganization(ctx, cache, userID, "")
	if err != nil {
		return nil, err
	}
	if org == nil {
		resp.Redirect = onboardingRedirect
	}
	resp.Organization = org

	sub, err := h.writeSubscription(ctx, cache, userID)
	if err != nil {
		return nil, err
	}
	resp.Subscription = sub

	return resp, nil
}

// writeRole caches the user's role. Users without a role row get the
// read-only observer role.
func (h *AuthHandler) writeRole(ctx context.Context, cache *session.Cache, userID string) (models.UserRole, error) {
	role, found, err := h.dir.LookupRole(ctx, userID)
	if err != nil {
		return "", err
	}
	if !found {
		role = models.RoleObserver
	}
	cache.WriteRole(role)
	return role, nil
}

// writeOrganization caches the organization orgID, or the user's first
// organization when orgID is empty. It returns nil when the user is not a
// member of any matching organization. Without a requested orgID a miss
// clears the cached organization; a refused switch keeps the current one.
func (h *AuthHandler) writeOrganization(ctx context.Context, cache *session.Cache, userID, orgID string) (*models.Organization, error) {
	memberships, err := h.dir.LookupOrganizations(ctx, userID)
	if err != nil {
		return nil, err
	}

	var selected *models.Membership
	for i := range memberships {
		if orgID == "" || memberships[i].OrganizationID == orgID {
			selected = &memberships[i]
			break
		}
	}

	var org *models.Organization
	if selected != nil {
		org, err = h.dir.LookupOrganizationDetails(ctx, selected.OrganizationID)
		if err != nil {
			return nil, err
		}
	}

	if org == nil {
		if orgID == "" {
			cache.ClearOrganization()
		}
		return nil, nil
	}
	cache.WriteOrganization(org)
	return org, nil
}

func (h *AuthHandler) writeSubscription(ctx context.Context, cache *session.Cache, userID string) (*models.Subscription, error) {
	sub, err := h.dir.LookupActiveSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		cache.ClearSubscription()
		return nil, nil
	}
	cache.WriteSubscription(sub)
	return sub, nil
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	cache := h.sessions.For(c)

	if user := cache.ReadUser(); user != nil {
		if err := h.auth.SignOut(c.Context(), user.ID); err != nil {
			slog.Error("Failed to record sign out", "error", err, "user_id", user.ID)
		}
		slog.Info("User logged out", "user_id", user.ID)
	}

	cache.Purge()

	return c.JSON(fiber.Map{
		"message": "Logged out successfully",
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	cache := h.sessions.For(c)

	user := cache.ReadUser()
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	role, _ := cache.ReadRole()

	return c.JSON(fiber.Map{
		"user":         user,
		"role":         role,
		"organization": cache.ReadOrganization(),
		"subscription": cache.ReadSubscription(),
	})
}

func (h *AuthHandler) Check(c *fiber.Ctx) error {
	state := h.sessions.For(c).State()

	return c.JSON(fiber.Map{
		"authenticated": state == models.SessionActive,
		"state":         state,
	})
}

func (h *AuthHandler) RefreshRole(c *fiber.Ctx) error {
	cache := h.sessions.For(c)
	user := cache.ReadUser()
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	role, err := h.writeRole(c.Context(), cache, user.ID)
	if err != nil {
		slog.Error("Failed to refresh role", "error", err, "user_id", user.ID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to refresh role",
		})
	}

	return c.JSON(fiber.Map{"role": role})
}

// RefreshOrganization re-reads the session organization. An optional
// organization_id in the body switches to another organization the user
// belongs to.
func (h *AuthHandler) RefreshOrganization(c *fiber.Ctx) error {
	cache := h.sessions.For(c)
	user := cache.ReadUser()
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req struct {
		OrganizationID string `json:"organization_id"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	org, err := h.writeOrganization(c.Context(), cache, user.ID, req.OrganizationID)
	if err != nil {
		slog.Error("Failed to refresh organization", "error", err, "user_id", user.ID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to refresh organization",
		})
	}

	if org == nil {
		if req.OrganizationID != "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Not a member of this organization",
			})
		}
		return c.JSON(fiber.Map{"organization": nil, "redirect": onboardingRedirect})
	}

	return c.JSON(fiber.Map{"organization": org})
}

func (h *AuthHandler) RefreshSubscription(c *fiber.Ctx) error {
	cache := h.sessions.For(c)
	user := cache.ReadUser()
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	sub, err := h.writeSubscription(c.Context(), cache, user.ID)
	if err != nil {
		slog.Error("Failed to refresh subscription", "error", err, "user_id", user.ID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to refresh subscription",
		})
	}

	return c.JSON(fiber.Map{"subscription": sub})
}
