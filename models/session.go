package models

// SessionUser is the subset of a user cached in the client-held user slot.
// Nothing outside these fields is ever written to the slot.
type SessionUser struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	LastActive int64  `json:"last_active"` // epoch millis
}

// SessionRole is the payload of the role slot
type SessionRole struct {
	Role UserRole `json:"role"`
}

// SessionState is the lifecycle state of a cached session
type SessionState string

const (
	SessionAnonymous SessionState = "anonymous"
	SessionActive    SessionState = "active"
	SessionExpired   SessionState = "expired"
)
