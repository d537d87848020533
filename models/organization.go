package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Organization represents a tenant. Only the fields below are cached in the
// organization slot.
type Organization struct {
	ID                 primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	Name               string                 `bson:"name" json:"name"`
	CreatedAt          time.Time              `bson:"created_at" json:"created_at"`
	SubscriptionTier   string                 `bson:"subscription_tier" json:"subscription_tier"`
	SubscriptionStatus string                 `bson:"subscription_status" json:"subscription_status"`
	StripeCustomerID   string                 `bson:"stripe_customer_id,omitempty" json:"stripe_customer_id,omitempty"`
	Settings           map[string]interface{} `bson:"settings,omitempty" json:"settings,omitempty"`

	// Social channel used by feedback sync
	FacebookPageID    string `bson:"facebook_page_id,omitempty" json:"facebook_page_id,omitempty"`
	FacebookPageToken string `bson:"facebook_page_token,omitempty" json:"-"`
}

// Membership links a user to an organization
type Membership struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         string             `bson:"user_id" json:"user_id"`
	OrganizationID string             `bson:"organization_id" json:"organization_id"`
	Role           UserRole           `bson:"role,omitempty" json:"role,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}
