package services

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	UsersCollection         = "users"
	UserRolesCollection     = "user_roles"
	MembershipsCollection   = "organization_members"
	OrganizationsCollection = "organizations"
	SubscriptionsCollection = "subscriptions"
	FeedbackCollection      = "feedback"
)

// InitMongoDB initializes MongoDB connection
func InitMongoDB(ctx context.Context, uri string) (*mongo.Client, error) {
	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	slog.Info("Connected to MongoDB")

	return client, nil
}

// CreateIndexes creates necessary database indexes
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		UsersCollection: {
			{Keys: bson.M{"email": 1}, Options: options.Index().SetUnique(true)},
		},
		UserRolesCollection: {
			{Keys: bson.M{"user_id": 1}, Options: options.Index().SetUnique(true)},
		},
		MembershipsCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.M{"organization_id": 1}},
		},
		OrganizationsCollection: {
			{
				Keys: bson.M{"facebook_page_id": 1},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
					"facebook_page_id": bson.M{"$type": "string"},
				}),
			},
		},
		SubscriptionsCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		FeedbackCollection: {
			{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "sentiment", Value: 1}}},
			{Keys: bson.D{{Key: "text", Value: "text"}}},
			{
				Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "source", Value: 1}, {Key: "external_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
					"external_id": bson.M{"$exists": true},
				}),
			},
		},
	}

	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}

	return nil
}
