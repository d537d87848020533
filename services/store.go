package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"feedback-sentiment/models"
)

// Store looks up the rows the session cache is filled from. Every lookup
// treats "not found" as a normal outcome: it returns a zero value and a nil
// error.
type Store struct {
	db *mongo.Database
}

func NewStore(db *mongo.Database) *Store {
	return &Store{db: db}
}

// LookupRole returns the role assigned to userID; found is false if none
func (s *Store) LookupRole(ctx context.Context, userID string) (models.UserRole, bool, error) {
	var assignment models.UserRoleAssignment
	err := s.db.Collection(UserRolesCollection).FindOne(ctx, bson.M{"user_id": userID}).Decode(&assignment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to lookup role: %w", err)
	}
	return assignment.Role, true, nil
}

// LookupOrganizations returns the memberships of userID, oldest first
func (s *Store) LookupOrganizations(ctx context.Context, userID string) ([]models.Membership, error) {
	cursor, err := s.db.Collection(MembershipsCollection).Find(ctx,
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup organizations: %w", err)
	}
	defer cursor.Close(ctx)

	var memberships []models.Membership
	if err := cursor.All(ctx, &memberships); err != nil {
		return nil, fmt.Errorf("failed to decode memberships: %w", err)
	}

	return memberships, nil
}

// LookupActiveSubscription returns the newest active or trialing subscription
func (s *Store) LookupActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.Collection(SubscriptionsCollection).FindOne(ctx,
		bson.M{
			"user_id": userID,
			"status":  bson.M{"$in": []string{models.SubscriptionActive, models.SubscriptionTrialing}},
		},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&sub)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lookup subscription: %w", err)
	}
	return &sub, nil
}

// LookupOrganizationDetails returns the organization with the given hex id
func (s *Store) LookupOrganizationDetails(ctx context.Context, orgID string) (*models.Organization, error) {
	oid, err := primitive.ObjectIDFromHex(orgID)
	if err != nil {
		return nil, nil
	}

	var org models.Organization
	err = s.db.Collection(OrganizationsCollection).FindOne(ctx, bson.M{"_id": oid}).Decode(&org)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lookup organization: %w", err)
	}
	return &org, nil
}

// LookupOrganizationByPage returns the organization connected to a Facebook page
func (s *Store) LookupOrganizationByPage(ctx context.Context, pageID string) (*models.Organization, error) {
	if pageID == "" {
		return nil, nil
	}

	var org models.Organization
	err := s.db.Collection(OrganizationsCollection).FindOne(ctx, bson.M{"facebook_page_id": pageID}).Decode(&org)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lookup organization by page: %w", err)
	}
	return &org, nil
}

// AssignRole upserts the role of userID
func (s *Store) AssignRole(ctx context.Context, userID string, role models.UserRole) error {
	_, err := s.db.Collection(UserRolesCollection).UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"role": role, "updated_at": time.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}
