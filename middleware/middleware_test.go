package middleware

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"feedback-sentiment/metrics"
	"feedback-sentiment/models"
	"feedback-sentiment/services"
	"feedback-sentiment/session"
)

const testPrefix = "fs_"

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestManager() *session.Manager {
	return session.NewManager(session.Config{
		Prefix: testPrefix,
		Slot:   session.DefaultSlotOptions(false),
		Policy: session.DefaultPolicy(),
		Now:    func() time.Time { return testNow },
	})
}

func encodeSlot(t *testing.T, name string, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return testPrefix + name + "=" + base64.RawURLEncoding.EncodeToString(data)
}

// sessionCookie builds the Cookie header of a signed-in browser
func sessionCookie(t *testing.T, role models.UserRole, lastActive time.Time, org *models.Organization) string {
	t.Helper()
	parts := []string{
		encodeSlot(t, session.SlotUser, models.SessionUser{ID: "u1", Email: "ana@example.com", LastActive: lastActive.UnixMilli()}),
		encodeSlot(t, session.SlotLastActive, lastActive.UnixMilli()),
		encodeSlot(t, session.SlotRole, models.SessionRole{Role: role}),
	}
	if org != nil {
		parts = append(parts, encodeSlot(t, session.SlotOrganization, org))
	}
	return strings.Join(parts, "; ")
}

func TestRateLimit_SecondRequestWithinWindowRejected(t *testing.T) {
	clock := testNow
	limiter := services.NewClientLimiter(services.WithClock(func() time.Time { return clock }))

	app := fiber.New()
	app.Use(RateLimit(limiter, 1500*time.Millisecond, metrics.New(prometheus.NewRegistry())))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(fiber.HeaderXForwardedFor, "203.0.113.7, 10.0.0.1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(fiber.HeaderXForwardedFor, "203.0.113.7")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get(fiber.HeaderRetryAfter))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, services.RateLimitExceeded, body["error"])

	// A different client is unaffected
	req = httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(fiber.HeaderXForwardedFor, "198.51.100.2")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	clock = clock.Add(1500 * time.Millisecond)
	req = httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(fiber.HeaderXForwardedFor, "203.0.113.7")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestClientIdentity(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(ClientIdentity(c)) })

	cases := []struct {
		name      string
		forwarded string
		want      string
	}{
		{"first forwarded entry", " 203.0.113.7 , 10.0.0.1", "203.0.113.7"},
		{"falls back to socket address", "", "0.0.0.0"},
		{"blank forwarded entry", " , 10.0.0.1", "0.0.0.0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tc.forwarded != "" {
				req.Header.Set(fiber.HeaderXForwardedFor, tc.forwarded)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(body))
		})
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, 1, retryAfterSeconds(time.Second))
	assert.Equal(t, 2, retryAfterSeconds(1001*time.Millisecond))
}

func newSessionApp(sessions *session.Manager, m *metrics.Metrics) *fiber.App {
	app := fiber.New()
	app.Use(SessionActivity(sessions, m))
	app.Get("/api/whoami", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"user_id":         UserID(c),
			"role":            Role(c),
			"organization_id": OrganizationID(c),
		})
	})
	app.Get("/dashboard", func(c *fiber.Ctx) error { return c.SendString("dashboard") })
	app.Get("/static/app.js", func(c *fiber.Ctx) error { return c.SendString("js") })
	return app
}

func TestSessionActivity_AnonymousPassesThrough(t *testing.T) {
	app := newSessionApp(newTestManager(), nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/whoami", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Values(fiber.HeaderSetCookie))
}

func TestSessionActivity_ActiveSessionTouched(t *testing.T) {
	org := &models.Organization{ID: primitive.NewObjectID(), Name: "Acme"}
	app := newSessionApp(newTestManager(), nil)

	req := httptest.NewRequest("GET", "/api/whoami", nil)
	req.Header.Set(fiber.HeaderCookie, sessionCookie(t, models.RoleClientAdmin, testNow.Add(-4*time.Hour), org))
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "u1", body["user_id"])
	assert.Equal(t, string(models.RoleClientAdmin), body["role"])
	assert.Equal(t, org.ID.Hex(), body["organization_id"])

	touched := false
	for _, cookie := range resp.Header.Values(fiber.HeaderSetCookie) {
		if strings.HasPrefix(cookie, testPrefix+session.SlotLastActive+"=") {
			touched = true
		}
	}
	assert.True(t, touched, "last_active slot should be rewritten")
}

func TestSessionActivity_ExpiredAPIRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	app := newSessionApp(newTestManager(), metrics.New(reg))

	req := httptest.NewRequest("GET", "/api/whoami", nil)
	req.Header.Set(fiber.HeaderCookie, sessionCookie(t, models.RoleSysAdmin, testNow.Add(-2*time.Hour-time.Millisecond), nil))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Session expired", body["error"])
	assert.Equal(t, "timeout", body["reason"])

	// every slot is cleared
	cleared := map[string]bool{}
	for _, cookie := range resp.Header.Values(fiber.HeaderSetCookie) {
		name, _, _ := strings.Cut(cookie, "=")
		cleared[name] = true
	}
	for _, slot := range []string{session.SlotUser, session.SlotLastActive, session.SlotRole, session.SlotOrganization, session.SlotSubscription} {
		assert.True(t, cleared[testPrefix+slot], "slot %s should be deleted", slot)
	}
}

func TestSessionActivity_ExpiredNavigationRedirects(t *testing.T) {
	app := newSessionApp(newTestManager(), nil)

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.Header.Set(fiber.HeaderAccept, "text/html,application/xhtml+xml")
	req.Header.Set(fiber.HeaderCookie, sessionCookie(t, models.RoleObserver, testNow.Add(-6*time.Hour), nil))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?reason=timeout", resp.Header.Get(fiber.HeaderLocation))
}

func TestSessionActivity_ExpiredSessionCanSignInAgain(t *testing.T) {
	sessions := newTestManager()
	app := fiber.New()
	app.Use(SessionActivity(sessions, nil))
	handler := func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"anonymous": sessions.For(c).ReadUser() == nil})
	}
	app.Post("/auth/login", handler)
	app.Post("/auth/logout", handler)

	for _, path := range []string{"/auth/login", "/auth/logout"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest("POST", path, nil)
			req.Header.Set(fiber.HeaderCookie, sessionCookie(t, models.RoleSysAdmin, testNow.Add(-3*time.Hour), nil))
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)

			var body map[string]bool
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.True(t, body["anonymous"], "expired slots are purged before the handler runs")
		})
	}
}

func TestSessionActivity_AdminBoundaryNotExpired(t *testing.T) {
	app := newSessionApp(newTestManager(), nil)

	req := httptest.NewRequest("GET", "/api/whoami", nil)
	req.Header.Set(fiber.HeaderCookie, sessionCookie(t, models.RoleSysAdmin, testNow.Add(-2*time.Hour), nil))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestSessionActivity_SkipsStaticAssets(t *testing.T) {
	app := newSessionApp(newTestManager(), nil)

	req := httptest.NewRequest("GET", "/static/app.js", nil)
	req.Header.Set(fiber.HeaderCookie, sessionCookie(t, models.RoleObserver, testNow.Add(-6*time.Hour), nil))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Values(fiber.HeaderSetCookie))
}

func TestRequireAuthAndRole(t *testing.T) {
	sessions := newTestManager()
	app := fiber.New()
	app.Get("/me", RequireAuth(sessions), func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/admin", RequireRole(sessions, models.RoleSysAdmin), func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/sync", RequirePermission(sessions, models.PermSyncSocial), func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/org", RequireOrganization(sessions), func(c *fiber.Ctx) error { return c.SendString(OrganizationID(c)) })

	do := func(path, cookie string) int {
		req := httptest.NewRequest("GET", path, nil)
		if cookie != "" {
			req.Header.Set(fiber.HeaderCookie, cookie)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	observer := sessionCookie(t, models.RoleObserver, testNow, nil)
	sysadmin := sessionCookie(t, models.RoleSysAdmin, testNow, &models.Organization{ID: primitive.NewObjectID()})

	assert.Equal(t, fiber.StatusUnauthorized, do("/me", ""))
	assert.Equal(t, fiber.StatusOK, do("/me", observer))

	assert.Equal(t, fiber.StatusUnauthorized, do("/admin", ""))
	assert.Equal(t, fiber.StatusForbidden, do("/admin", observer))
	assert.Equal(t, fiber.StatusOK, do("/admin", sysadmin))

	assert.Equal(t, fiber.StatusForbidden, do("/sync", observer))
	assert.Equal(t, fiber.StatusOK, do("/sync", sysadmin))

	assert.Equal(t, fiber.StatusForbidden, do("/org", observer))
	assert.Equal(t, fiber.StatusOK, do("/org", sysadmin))
}
