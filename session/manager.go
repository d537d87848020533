package session

import (
	"github.com/gofiber/fiber/v2"
)

const localsKey = "session_cache"

// Manager hands out one Cache per request, backed by that request's cookies
type Manager struct {
	cfg Config
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// For returns the cache bound to c, creating it on first use
func (m *Manager) For(c *fiber.Ctx) *Cache {
	if cache, ok := c.Locals(localsKey).(*Cache); ok {
		return cache
	}
	cache := NewCache(NewCookieStore(c, m.cfg.Slot), m.cfg)
	c.Locals(localsKey, cache)
	return cache
}

// Config returns the manager configuration
func (m *Manager) Config() Config {
	return m.cfg
}
