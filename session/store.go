package session

import (
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// DefaultMaxAge is how long the browser keeps a slot
const DefaultMaxAge = 30 * 24 * time.Hour

// SlotOptions are the transport attributes attached to a slot
type SlotOptions struct {
	MaxAge   time.Duration
	HTTPOnly bool
	Secure   bool
	SameSite string
	Path     string
}

// DefaultSlotOptions returns the attributes used for every session slot
func DefaultSlotOptions(production bool) SlotOptions {
	return SlotOptions{
		MaxAge:   DefaultMaxAge,
		HTTPOnly: true,
		Secure:   production,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	}
}

// Store is a client-held key/value store that only the server can read.
// The session cache never touches cookies directly; it goes through a Store.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, opts SlotOptions)
	Delete(key string)
}

type pendingSlot struct {
	value   []byte
	deleted bool
}

// CookieStore keeps slots in cookies on a fiber request/response pair.
// Writes made during a request are visible to later reads in the same request.
type CookieStore struct {
	c        *fiber.Ctx
	defaults SlotOptions
	pending  map[string]pendingSlot
}

// NewCookieStore creates a store bound to the current request
func NewCookieStore(c *fiber.Ctx, defaults SlotOptions) *CookieStore {
	return &CookieStore{
		c:        c,
		defaults: defaults,
		pending:  make(map[string]pendingSlot),
	}
}

func (s *CookieStore) Get(key string) ([]byte, bool) {
	if p, ok := s.pending[key]; ok {
		if p.deleted {
			return nil, false
		}
		return p.value, true
	}

	raw := s.c.Cookies(key)
	if raw == "" {
		return nil, false
	}

	value, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		slog.Warn("Undecodable session cookie", "cookie", key, "error", err)
		return nil, false
	}
	return value, true
}

func (s *CookieStore) Set(key string, value []byte, opts SlotOptions) {
	s.pending[key] = pendingSlot{value: value}

	s.c.Cookie(&fiber.Cookie{
		Name:     key,
		Value:    base64.RawURLEncoding.EncodeToString(value),
		MaxAge:   int(opts.MaxAge.Seconds()),
		HTTPOnly: opts.HTTPOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
		Path:     opts.Path,
	})
}

func (s *CookieStore) Delete(key string) {
	s.pending[key] = pendingSlot{deleted: true}

	s.c.Cookie(&fiber.Cookie{
		Name:     key,
		Value:    "",
		Expires:  time.Now().Add(-1 * time.Hour),
		HTTPOnly: s.defaults.HTTPOnly,
		Secure:   s.defaults.Secure,
		SameSite: s.defaults.SameSite,
		Path:     s.defaults.Path,
	})
}

// MemoryStore is an in-process Store, used by tests and background jobs
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string][]byte
	opts  map[string]SlotOptions
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots: make(map[string][]byte),
		opts:  make(map[string]SlotOptions),
	}
}

func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.slots[key]
	return value, ok
}

func (m *MemoryStore) Set(key string, value []byte, opts SlotOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[key] = append([]byte(nil), value...)
	m.opts[key] = opts
}

func (m *MemoryStore) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, key)
	delete(m.opts, key)
}

// Options returns the attributes a slot was last written with
func (m *MemoryStore) Options(key string) (SlotOptions, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	opts, ok := m.opts[key]
	return opts, ok
}

// Len returns the number of stored slots
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.slots)
}
