package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"feedback-sentiment/models"
)

// FeedbackFilter narrows a feedback listing
type FeedbackFilter struct {
	Sentiment string
	Source    string
	Page      int64
	Limit     int64
}

// FeedbackRepository persists feedback entries per organization
type FeedbackRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewFeedbackRepository(db *mongo.Database) *FeedbackRepository {
	return &FeedbackRepository{
		collection: db.Collection(FeedbackCollection),
		now:        time.Now,
	}
}

func (r *FeedbackRepository) stamp(f *models.Feedback) {
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	now := r.now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if f.SubmittedAt.IsZero() {
		f.SubmittedAt = f.CreatedAt
	}
}

// Create inserts a single feedback entry
func (r *FeedbackRepository) Create(ctx context.Context, f *models.Feedback) error {
	r.stamp(f)
	if _, err := r.collection.InsertOne(ctx, f); err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

// InsertBatch inserts entries unordered and returns how many were stored.
// Individual write failures do not abort the rest of the batch.
func (r *FeedbackRepository) InsertBatch(ctx context.Context, entries []*models.Feedback) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	docs := make([]interface{}, len(entries))
	for i, f := range entries {
		r.stamp(f)
		docs[i] = f
	}

	_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		var bulkErr mongo.BulkWriteException
		if errors.As(err, &bulkErr) && bulkErr.WriteConcernError == nil {
			return len(entries) - len(bulkErr.WriteErrors), nil
		}
		return 0, fmt.Errorf("failed to insert feedback batch: %w", err)
	}

	return len(entries), nil
}

// UpsertExternal stores a feedback entry keyed by its source and external ID.
// Existing entries are left untouched; created reports whether one was added.
func (r *FeedbackRepository) UpsertExternal(ctx context.Context, f *models.Feedback) (bool, error) {
	r.stamp(f)

	filter := bson.M{
		"organization_id": f.OrganizationID,
		"source":          f.Source,
		"external_id":     f.ExternalID,
	}
	result, err := r.collection.UpdateOne(ctx, filter,
		bson.M{"$setOnInsert": f},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert feedback: %w", err)
	}

	return result.UpsertedCount > 0, nil
}

// Get returns one feedback entry of orgID, or nil if it does not exist
func (r *FeedbackRepository) Get(ctx context.Context, orgID, id string) (*models.Feedback, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	var f models.Feedback
	err = r.collection.FindOne(ctx, bson.M{"_id": oid, "organization_id": orgID}).Decode(&f)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return &f, nil
}

// List returns one page of feedback for orgID, newest first, and the total count
func (r *FeedbackRepository) List(ctx context.Context, orgID string, filter FeedbackFilter) ([]models.Feedback, int64, error) {
	query := bson.M{"organization_id": orgID}
	if filter.Sentiment != "" {
		query["sentiment"] = filter.Sentiment
	}
	if filter.Source != "" {
		query["source"] = filter.Source
	}

	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count feedback: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((filter.Page - 1) * filter.Limit).
		SetLimit(filter.Limit)

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer cursor.Close(ctx)

	entries := []models.Feedback{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, 0, fmt.Errorf("failed to decode feedback: %w", err)
	}

	return entries, total, nil
}

// SaveAnalysis stores the sentiment result on a feedback entry
func (r *FeedbackRepository) SaveAnalysis(ctx context.Context, id primitive.ObjectID, result *models.SentimentResult) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"sentiment":   result.Sentiment,
			"score":       result.Score,
			"themes":      result.Themes,
			"analyzed_at": r.now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// Stats aggregates sentiment counts and the average score for orgID
func (r *FeedbackRepository) Stats(ctx context.Context, orgID string) (*models.SentimentStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"organization_id": orgID}}},
		{{Key: "$group", Value: bson.M{
			"_id":       "$sentiment",
			"count":     bson.M{"$sum": 1},
			"score_sum": bson.M{"$sum": "$score"},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate feedback: %w", err)
	}
	defer cursor.Close(ctx)

	var groups []struct {
		Sentiment *string `bson:"_id"`
		Count     int64   `bson:"count"`
		ScoreSum  float64 `bson:"score_sum"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode feedback stats: %w", err)
	}

	stats := &models.SentimentStats{BySentiment: map[string]int64{}}
	var scoreSum float64
	for _, g := range groups {
		stats.Total += g.Count
		if g.Sentiment == nil || *g.Sentiment == "" {
			continue
		}
		stats.Analyzed += g.Count
		stats.BySentiment[*g.Sentiment] = g.Count
		scoreSum += g.ScoreSum
	}
	if stats.Analyzed > 0 {
		stats.AverageScore = scoreSum / float64(stats.Analyzed)
	}

	slog.Debug("Computed feedback stats", "organizationID", orgID, "total", stats.Total)

	return stats, nil
}
