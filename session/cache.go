package session

import (
	"encoding/json"
	"log/slog"
	"time"

	"feedback-sentiment/models"
)

// Slot names. The configured prefix is prepended to each.
const (
	SlotUser         = "user"
	SlotLastActive   = "last_active"
	SlotRole         = "user_role"
	SlotOrganization = "organization"
	SlotSubscription = "user_subscription"
)

const (
	DefaultAdminTimeout   = 2 * time.Hour
	DefaultRegularTimeout = 5 * time.Hour
)

// Policy holds the idle timeouts per role class
type Policy struct {
	AdminTimeout   time.Duration
	RegularTimeout time.Duration
}

// DefaultPolicy returns the standard 2h admin / 5h regular timeouts
func DefaultPolicy() Policy {
	return Policy{
		AdminTimeout:   DefaultAdminTimeout,
		RegularTimeout: DefaultRegularTimeout,
	}
}

// TimeoutFor returns the idle timeout applied to role
func (p Policy) TimeoutFor(role models.UserRole) time.Duration {
	if role.IsAdmin() {
		return p.AdminTimeout
	}
	return p.RegularTimeout
}

// Config configures a Cache
type Config struct {
	Prefix string
	Slot   SlotOptions
	Policy Policy
	Now    func() time.Time
}

// Cache reads and writes the cached facts of one authenticated session.
//
// Absence of the user slot means logged out regardless of the other slots.
// Unparseable slots are reported as absent and never returned as errors.
type Cache struct {
	store  Store
	prefix string
	opts   SlotOptions
	policy Policy
	now    func() time.Time
}

// NewCache creates a cache over store
func NewCache(store Store, cfg Config) *Cache {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Policy.AdminTimeout <= 0 {
		cfg.Policy.AdminTimeout = DefaultAdminTimeout
	}
	if cfg.Policy.RegularTimeout <= 0 {
		cfg.Policy.RegularTimeout = DefaultRegularTimeout
	}
	return &Cache{
		store:  store,
		prefix: cfg.Prefix,
		opts:   cfg.Slot,
		policy: cfg.Policy,
		now:    cfg.Now,
	}
}

// Key returns the stored name of a slot
func (s *Cache) Key(slot string) string {
	return s.prefix + slot
}

// WriteUser caches the signed-in user. A nil user or one without an ID is
// ignored.
func (s *Cache) WriteUser(user *models.User) {
	if user == nil || user.ID.IsZero() {
		return
	}

	now := s.now().UnixMilli()
	s.writeJSON(SlotUser, models.SessionUser{
		ID:         user.ID.Hex(),
		Email:      user.Email,
		LastActive: now,
	})
	s.writeJSON(SlotLastActive, now)
}

// TouchActivity marks the session as active now
func (s *Cache) TouchActivity() {
	s.writeJSON(SlotLastActive, s.now().UnixMilli())
}

func (s *Cache) WriteRole(role models.UserRole) {
	s.writeJSON(SlotRole, models.SessionRole{Role: role})
}

func (s *Cache) WriteOrganization(org *models.Organization) {
	if org == nil {
		return
	}
	s.writeJSON(SlotOrganization, org)
}

func (s *Cache) WriteSubscription(sub *models.Subscription) {
	if sub == nil {
		return
	}
	s.writeJSON(SlotSubscription, sub)
}

// ReadUser returns the cached user, or nil when absent or malformed
func (s *Cache) ReadUser() *models.SessionUser {
	var user models.SessionUser
	if !s.readJSON(SlotUser, &user) {
		return nil
	}
	if user.ID == "" {
		slog.Warn("Session user slot has no id", "slot", s.Key(SlotUser))
		return nil
	}
	return &user
}

// ReadRole returns the cached role; ok is false when absent or malformed
func (s *Cache) ReadRole() (models.UserRole, bool) {
	var role models.SessionRole
	if !s.readJSON(SlotRole, &role) {
		return "", false
	}
	return role.Role, true
}

func (s *Cache) ReadOrganization() *models.Organization {
	var org models.Organization
	if !s.readJSON(SlotOrganization, &org) {
		return nil
	}
	return &org
}

func (s *Cache) ReadSubscription() *models.Subscription {
	var sub models.Subscription
	if !s.readJSON(SlotSubscription, &sub) {
		return nil
	}
	return &sub
}

// ReadLastActive returns the last activity time
func (s *Cache) ReadLastActive() (time.Time, bool) {
	var millis int64
	if !s.readJSON(SlotLastActive, &millis) {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}

// ClearAll removes the user and last-activity slots. Role, organization and
// subscription slots are left in place; use Purge to remove everything.
func (s *Cache) ClearAll() {
	s.store.Delete(s.Key(SlotUser))
	s.store.Delete(s.Key(SlotLastActive))
}

// ClearOrganization removes the organization slot
func (s *Cache) ClearOrganization() {
	s.store.Delete(s.Key(SlotOrganization))
}

// ClearSubscription removes the subscription slot
func (s *Cache) ClearSubscription() {
	s.store.Delete(s.Key(SlotSubscription))
}

// Purge removes every session slot
func (s *Cache) Purge() {
	s.ClearAll()
	s.store.Delete(s.Key(SlotRole))
	s.ClearOrganization()
	s.ClearSubscription()
}

// IsExpired reports whether the session must be forced to sign in again.
// Missing or unreadable role or activity state counts as expired.
func (s *Cache) IsExpired() bool {
	role, ok := s.ReadRole()
	if !ok {
		return true
	}
	lastActive, ok := s.ReadLastActive()
	if !ok {
		return true
	}
	return s.now().Sub(lastActive) > s.policy.TimeoutFor(role)
}

// State evaluates the session lifecycle state
func (s *Cache) State() models.SessionState {
	if s.ReadUser() == nil {
		return models.SessionAnonymous
	}
	if s.IsExpired() {
		return models.SessionExpired
	}
	return models.SessionActive
}

func (s *Cache) writeJSON(slot string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode session slot", "slot", s.Key(slot), "error", err)
		return
	}
	s.store.Set(s.Key(slot), data, s.opts)
}

func (s *Cache) readJSON(slot string, dest interface{}) bool {
	data, ok := s.store.Get(s.Key(slot))
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		slog.Warn("Malformed session slot", "slot", s.Key(slot), "error", err)
		return false
	}
	return true
}
