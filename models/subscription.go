package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Subscription statuses considered active
const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
)

// Subscription is a billing subscription row. The whole row is cached in the
// subscription slot.
type Subscription struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID               string             `bson:"user_id" json:"user_id"`
	OrganizationID       string             `bson:"organization_id,omitempty" json:"organization_id,omitempty"`
	Status               string             `bson:"status" json:"status"`
	Tier                 string             `bson:"tier" json:"tier"`
	StripeSubscriptionID string             `bson:"stripe_subscription_id,omitempty" json:"stripe_subscription_id,omitempty"`
	CurrentPeriodStart   time.Time          `bson:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd     time.Time          `bson:"current_period_end" json:"current_period_end"`
	CancelAtPeriodEnd    bool               `bson:"cancel_at_period_end" json:"cancel_at_period_end"`
	CanceledAt           *time.Time         `bson:"canceled_at,omitempty" json:"canceled_at,omitempty"`
	CancellationReason   string             `bson:"cancellation_reason,omitempty" json:"cancellation_reason,omitempty"`
	Amount               int64              `bson:"amount" json:"amount"` // minor units
	Currency             string             `bson:"currency" json:"currency"`
	CreatedAt            time.Time          `bson:"created_at" json:"created_at"`
}

// IsActive reports whether the subscription currently grants access
func (s *Subscription) IsActive() bool {
	return s != nil && (s.Status == SubscriptionActive || s.Status == SubscriptionTrialing)
}
