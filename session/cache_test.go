package session

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"feedback-sentiment/models"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestCache(t *testing.T) (*Cache, *MemoryStore, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	cache := NewCache(store, Config{
		Prefix: "fs_",
		Slot:   DefaultSlotOptions(false),
		Policy: DefaultPolicy(),
		Now:    clock.Now,
	})
	return cache, store, clock
}

func testUser() *models.User {
	return &models.User{
		ID:           primitive.NewObjectID(),
		Email:        "ana@example.com",
		FullName:     "Ana",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		IsActive:     true,
	}
}

func setLastActive(store *MemoryStore, at time.Time) {
	store.Set("fs_"+SlotLastActive, []byte(strconv.FormatInt(at.UnixMilli(), 10)), DefaultSlotOptions(false))
}

func TestCache_WriteUserRoundTrip(t *testing.T) {
	cache, store, clock := newTestCache(t)
	u := testUser()

	cache.WriteUser(u)

	got := cache.ReadUser()
	require.NotNil(t, got)
	assert.Equal(t, u.ID.Hex(), got.ID)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, clock.now.UnixMilli(), got.LastActive)

	lastActive, ok := cache.ReadLastActive()
	require.True(t, ok)
	assert.Equal(t, clock.now.UnixMilli(), lastActive.UnixMilli())

	raw, ok := store.Get("fs_" + SlotUser)
	require.True(t, ok)
	assert.NotContains(t, string(raw), "password")
	assert.NotContains(t, string(raw), u.PasswordHash)
	assert.NotContains(t, string(raw), u.FullName)
}

func TestCache_WriteUserIgnoresEmpty(t *testing.T) {
	cache, store, _ := newTestCache(t)

	cache.WriteUser(nil)
	cache.WriteUser(&models.User{Email: "no-id@example.com"})

	assert.Nil(t, cache.ReadUser())
	assert.Equal(t, 0, store.Len())
}

func TestCache_SlotAttributes(t *testing.T) {
	cache, store, _ := newTestCache(t)

	cache.WriteUser(testUser())

	opts, ok := store.Options("fs_" + SlotUser)
	require.True(t, ok)
	assert.True(t, opts.HTTPOnly)
	assert.False(t, opts.Secure)
	assert.Equal(t, "/", opts.Path)
	assert.Equal(t, "Lax", opts.SameSite)
	assert.Equal(t, 30*24*time.Hour, opts.MaxAge)

	assert.True(t, DefaultSlotOptions(true).Secure)
}

func TestCache_TouchActivityOnlyUpdatesLastActive(t *testing.T) {
	cache, _, clock := newTestCache(t)
	cache.WriteUser(testUser())
	written := clock.now

	clock.now = clock.now.Add(30 * time.Minute)
	cache.TouchActivity()

	lastActive, ok := cache.ReadLastActive()
	require.True(t, ok)
	assert.Equal(t, clock.now.UnixMilli(), lastActive.UnixMilli())
	assert.Equal(t, written.UnixMilli(), cache.ReadUser().LastActive)
}

func TestCache_WritersOverwriteVerbatim(t *testing.T) {
	cache, _, _ := newTestCache(t)

	cache.WriteOrganization(&models.Organization{Name: "Acme", SubscriptionTier: "pro", Settings: map[string]interface{}{"lang": "en"}})
	cache.WriteOrganization(&models.Organization{Name: "Globex"})

	org := cache.ReadOrganization()
	require.NotNil(t, org)
	assert.Equal(t, "Globex", org.Name)
	assert.Empty(t, org.SubscriptionTier, "no merge with the previous record")
	assert.Nil(t, org.Settings)

	cache.WriteSubscription(&models.Subscription{Status: "active", Amount: 4900, Currency: "usd", CancelAtPeriodEnd: true})
	sub := cache.ReadSubscription()
	require.NotNil(t, sub)
	assert.Equal(t, int64(4900), sub.Amount)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.True(t, sub.IsActive())

	cache.WriteRole(models.RoleClientAdmin)
	role, ok := cache.ReadRole()
	require.True(t, ok)
	assert.Equal(t, models.RoleClientAdmin, role)
}

func TestCache_MalformedSlotsReadAsAbsent(t *testing.T) {
	cache, store, _ := newTestCache(t)
	opts := DefaultSlotOptions(false)

	for _, slot := range []string{SlotUser, SlotRole, SlotOrganization, SlotSubscription, SlotLastActive} {
		store.Set("fs_"+slot, []byte("{not json"), opts)
	}

	assert.Nil(t, cache.ReadUser())
	assert.Nil(t, cache.ReadOrganization())
	assert.Nil(t, cache.ReadSubscription())
	_, ok := cache.ReadRole()
	assert.False(t, ok)
	_, ok = cache.ReadLastActive()
	assert.False(t, ok)
}

func TestCache_IsExpiredThresholds(t *testing.T) {
	tests := []struct {
		name    string
		role    models.UserRole
		idle    time.Duration
		expired bool
	}{
		{"sysadmin past 2h", models.RoleSysAdmin, 2*time.Hour + time.Millisecond, true},
		{"sysadmin at 1h59m", models.RoleSysAdmin, time.Hour + 59*time.Minute, false},
		{"sysadmin exactly 2h", models.RoleSysAdmin, 2 * time.Hour, false},
		{"clientadmin past 5h", models.RoleClientAdmin, 5*time.Hour + time.Millisecond, true},
		{"clientadmin at 4h59m", models.RoleClientAdmin, 4*time.Hour + 59*time.Minute, false},
		{"observer past 5h", models.RoleObserver, 5*time.Hour + time.Millisecond, true},
		{"free-form role at 3h", models.UserRole("billing-contact"), 3 * time.Hour, false},
		{"empty role uses regular timeout", models.UserRole(""), 4 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, store, clock := newTestCache(t)
			cache.WriteRole(tt.role)
			setLastActive(store, clock.now.Add(-tt.idle))

			assert.Equal(t, tt.expired, cache.IsExpired())
		})
	}
}

func TestCache_IsExpiredFailSecure(t *testing.T) {
	opts := DefaultSlotOptions(false)

	t.Run("role absent", func(t *testing.T) {
		cache, store, clock := newTestCache(t)
		setLastActive(store, clock.now)
		assert.True(t, cache.IsExpired())
	})

	t.Run("last active absent", func(t *testing.T) {
		cache, _, _ := newTestCache(t)
		cache.WriteRole(models.RoleObserver)
		assert.True(t, cache.IsExpired())
	})

	t.Run("role malformed", func(t *testing.T) {
		cache, store, clock := newTestCache(t)
		store.Set("fs_"+SlotRole, []byte(`{"role":`), opts)
		setLastActive(store, clock.now)
		assert.True(t, cache.IsExpired())
	})

	t.Run("last active malformed", func(t *testing.T) {
		cache, store, _ := newTestCache(t)
		cache.WriteRole(models.RoleObserver)
		store.Set("fs_"+SlotLastActive, []byte(`"yesterday"`), opts)
		assert.True(t, cache.IsExpired())
	})

	t.Run("both present and fresh", func(t *testing.T) {
		cache, store, clock := newTestCache(t)
		cache.WriteRole(models.RoleObserver)
		setLastActive(store, clock.now)
		assert.False(t, cache.IsExpired())
	})
}

func TestCache_ClearAllIdempotent(t *testing.T) {
	cache, store, _ := newTestCache(t)
	cache.WriteUser(testUser())
	cache.WriteRole(models.RoleSysAdmin)
	cache.WriteOrganization(&models.Organization{Name: "Acme"})

	cache.ClearAll()
	first := store.Len()
	assert.Nil(t, cache.ReadUser())
	_, ok := cache.ReadLastActive()
	assert.False(t, ok)

	cache.ClearAll()
	assert.Equal(t, first, store.Len())
	assert.Nil(t, cache.ReadUser())

	// role and organization survive ClearAll
	_, ok = cache.ReadRole()
	assert.True(t, ok)
	assert.NotNil(t, cache.ReadOrganization())
}

func TestCache_PurgeRemovesEverything(t *testing.T) {
	cache, store, _ := newTestCache(t)
	cache.WriteUser(testUser())
	cache.WriteRole(models.RoleSysAdmin)
	cache.WriteOrganization(&models.Organization{Name: "Acme"})
	cache.WriteSubscription(&models.Subscription{Status: "active"})

	cache.Purge()
	cache.Purge()

	assert.Equal(t, 0, store.Len())
	assert.Equal(t, models.SessionAnonymous, cache.State())
}

func TestCache_ClearOrganizationAndSubscription(t *testing.T) {
	cache, _, _ := newTestCache(t)
	cache.WriteUser(testUser())
	cache.WriteRole(models.RoleClientAdmin)
	cache.WriteOrganization(&models.Organization{Name: "Acme"})
	cache.WriteSubscription(&models.Subscription{Status: models.SubscriptionActive})

	cache.ClearOrganization()
	assert.Nil(t, cache.ReadOrganization())
	assert.NotNil(t, cache.ReadSubscription())

	cache.ClearSubscription()
	assert.Nil(t, cache.ReadSubscription())
	assert.NotNil(t, cache.ReadUser(), "user slot is untouched")
}

func TestCache_StateTransitions(t *testing.T) {
	cache, _, clock := newTestCache(t)
	assert.Equal(t, models.SessionAnonymous, cache.State())

	cache.WriteUser(testUser())
	cache.WriteRole(models.RoleSysAdmin)
	assert.Equal(t, models.SessionActive, cache.State())

	clock.now = clock.now.Add(90 * time.Minute)
	cache.TouchActivity()
	clock.now = clock.now.Add(90 * time.Minute)
	assert.Equal(t, models.SessionActive, cache.State(), "touch resets the idle clock")

	clock.now = clock.now.Add(31 * time.Minute)
	assert.Equal(t, models.SessionExpired, cache.State())

	cache.ClearAll()
	assert.Equal(t, models.SessionAnonymous, cache.State())
}

func TestCache_ConfigurablePolicy(t *testing.T) {
	clock := &testClock{now: time.Now()}
	store := NewMemoryStore()
	cache := NewCache(store, Config{
		Prefix: "x_",
		Policy: Policy{AdminTimeout: time.Minute, RegularTimeout: 10 * time.Minute},
		Now:    clock.Now,
	})

	cache.WriteRole(models.RoleSysAdmin)
	cache.TouchActivity()
	clock.now = clock.now.Add(2 * time.Minute)

	assert.True(t, cache.IsExpired())
	_, ok := store.Get("x_" + SlotRole)
	assert.True(t, ok, "prefix is applied to slot names")
}
