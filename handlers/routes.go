package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"feedback-sentiment/middleware"
	"feedback-sentiment/models"
	"feedback-sentiment/session"
)

// Router mounts every HTTP route behind its access guard
type Router struct {
	Sessions  *session.Manager
	Auth      *AuthHandler
	Feedback  *FeedbackHandler
	Social    *SocialHandler
	Dashboard *DashboardHandler
	Admin     *AdminHandler
}

func (r *Router) Register(app fiber.Router) {
	requireAuth := middleware.RequireAuth(r.Sessions)
	requireOrg := middleware.RequireOrganization(r.Sessions)
	can := func(permission string) fiber.Handler {
		return middleware.RequirePermission(r.Sessions, permission)
	}

	auth := app.Group("/auth")
	auth.Post("/login", r.Auth.Login)
	auth.Post("/logout", r.Auth.Logout)
	auth.Get("/me", requireAuth, r.Auth.Me)
	auth.Get("/check", r.Auth.Check)

	// Explicit session slot refreshes
	sess := app.Group("/api/session", requireAuth)
	sess.Put("/role", r.Auth.RefreshRole)
	sess.Put("/organization", r.Auth.RefreshOrganization)
	sess.Put("/subscription", r.Auth.RefreshSubscription)

	feedback := app.Group("/api/feedback", requireOrg)
	feedback.Get("/", can(models.PermViewDashboard), r.Feedback.List)
	feedback.Get("/search", can(models.PermViewDashboard), r.Feedback.Search)
	feedback.Post("/", can(models.PermManageFeedback), r.Feedback.Create)
	feedback.Post("/import", can(models.PermManageFeedback), r.Feedback.Import)
	feedback.Post("/:id/analyze", can(models.PermAnalyzeFeedback), r.Feedback.Analyze)

	social := app.Group("/api/social", requireOrg, can(models.PermSyncSocial))
	social.Post("/facebook/sync", r.Social.SyncFacebookPost)

	dashboard := app.Group("/api/dashboard", requireOrg, can(models.PermViewDashboard))
	dashboard.Get("/stats", r.Dashboard.Stats)
	dashboard.Get("/ws", WebSocketUpgrade, websocket.New(r.Dashboard.HandleWebSocket))

	admin := app.Group("/admin", middleware.RequireRole(r.Sessions, models.RoleSysAdmin))
	admin.Get("/ratelimit", r.Admin.RateLimitStats)
	admin.Post("/users", r.Admin.CreateUser)
	admin.Put("/users/:id/role", r.Admin.AssignRole)
}
