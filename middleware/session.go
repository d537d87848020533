package middleware

import (
	"log/slog"
	"path"
	"strings"

	"github.com/gofiber/fiber/v2"

	"feedback-sentiment/metrics"
	"feedback-sentiment/models"
	"feedback-sentiment/session"
)

// Locals keys set for authenticated requests
const (
	LocalUserID         = "user_id"
	LocalEmail          = "email"
	LocalRole           = "role"
	LocalOrganizationID = "organization_id"
)

const timeoutRedirect = "/login?reason=timeout"

var sessionEntryPaths = map[string]bool{
	"/auth/login":  true,
	"/auth/logout": true,
}

var staticExtensions = map[string]bool{
	".ico":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".svg":  true,
	".css":  true,
	".js":   true,
}

// SessionActivity enforces the idle timeout and refreshes the activity stamp
// of every signed-in request. Static asset requests are left alone.
func SessionActivity(sessions *session.Manager, m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if isStaticAsset(c.Path()) {
			return c.Next()
		}

		cache := sessions.For(c)
		user := cache.ReadUser()
		if user == nil {
			return c.Next()
		}

		if cache.IsExpired() {
			cache.Purge()
			m.SessionExpired()
			slog.Info("Session expired", "userID", user.ID, "path", c.Path())

			// Signing in or out again must not be blocked by the stale session
			if sessionEntryPaths[c.Path()] {
				return c.Next()
			}

			if wantsHTML(c) {
				return c.Redirect(timeoutRedirect, fiber.StatusFound)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":  "Session expired",
				"reason": "timeout",
			})
		}

		cache.TouchActivity()

		c.Locals(LocalUserID, user.ID)
		c.Locals(LocalEmail, user.Email)
		if role, ok := cache.ReadRole(); ok {
			c.Locals(LocalRole, role)
		}
		if org := cache.ReadOrganization(); org != nil {
			c.Locals(LocalOrganizationID, org.ID.Hex())
		}

		return c.Next()
	}
}

// UserID returns the authenticated user id set by SessionActivity
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

// OrganizationID returns the session organization id set by SessionActivity
func OrganizationID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalOrganizationID).(string)
	return id
}

// Role returns the session role set by SessionActivity
func Role(c *fiber.Ctx) models.UserRole {
	role, _ := c.Locals(LocalRole).(models.UserRole)
	return role
}

func isStaticAsset(p string) bool {
	return staticExtensions[strings.ToLower(path.Ext(p))]
}

// wantsHTML reports whether the request is a browser page navigation rather
// than an API call
func wantsHTML(c *fiber.Ctx) bool {
	p := c.Path()
	if strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/auth/") || strings.HasPrefix(p, "/admin/") {
		return false
	}
	if c.Get(fiber.HeaderXRequestedWith) != "" {
		return false
	}
	return strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMETextHTML)
}
