package middleware

import (
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"feedback-sentiment/metrics"
	"feedback-sentiment/services"
)

// Limiter decides whether a client may be served
type Limiter interface {
	Check(identity string, window time.Duration) services.LimitResult
}

// RateLimit rejects a client that was already accepted within window. It must
// be registered before any other request handling.
func RateLimit(limiter Limiter, window time.Duration, m *metrics.Metrics) fiber.Handler {
	retryAfter := strconv.Itoa(retryAfterSeconds(window))

	return func(c *fiber.Ctx) error {
		identity := ClientIdentity(c)

		result := limiter.Check(identity, window)
		m.RateLimitDecision(result.Accepted)

		if !result.Accepted {
			slog.Debug("Request throttled", "client", identity, "path", c.Path())
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": result.Reason,
			})
		}

		return c.Next()
	}
}

// ClientIdentity returns the first X-Forwarded-For entry, falling back to the
// socket address and then to the shared unknown identity.
func ClientIdentity(c *fiber.Ctx) string {
	if forwarded := c.Get(fiber.HeaderXForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := c.IP(); ip != "" {
		return ip
	}
	return services.UnknownClient
}

func retryAfterSeconds(window time.Duration) int {
	seconds := int(math.Ceil(window.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
