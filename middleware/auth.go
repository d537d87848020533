package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"feedback-sentiment/models"
	"feedback-sentiment/session"
)

// RequireAuth rejects requests without a cached user
func RequireAuth(sessions *session.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !authenticated(c, sessions) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}
		return c.Next()
	}
}

func RequireRole(sessions *session.Manager, roles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !authenticated(c, sessions) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		currentRole, ok := sessions.For(c).ReadRole()
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied",
			})
		}

		for _, allowedRole := range roles {
			if currentRole == allowedRole {
				return c.Next()
			}
		}

		slog.Info("Access denied", "user_role", currentRole, "required_roles", roles)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Insufficient permissions",
		})
	}
}

func RequirePermission(sessions *session.Manager, permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !authenticated(c, sessions) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		role, ok := sessions.For(c).ReadRole()
		if !ok || !role.HasPermission(permission) {
			slog.Info("Permission denied", "user_role", role, "required_permission", permission)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient permissions",
			})
		}

		return c.Next()
	}
}

// RequireOrganization rejects signed-in users that have not joined an
// organization yet
func RequireOrganization(sessions *session.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !authenticated(c, sessions) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		org := sessions.For(c).ReadOrganization()
		if org == nil || org.ID.IsZero() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":    "No organization associated with this user",
				"redirect": "/onboarding",
			})
		}

		c.Locals(LocalOrganizationID, org.ID.Hex())
		return c.Next()
	}
}

func authenticated(c *fiber.Ctx, sessions *session.Manager) bool {
	return sessions.For(c).ReadUser() != nil
}
