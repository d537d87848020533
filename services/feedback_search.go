package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"feedback-sentiment/models"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	minSearchTermLen   = 3
)

// SearchTerms splits a free-text query into the words worth matching.
// Very short words are dropped.
func SearchTerms(query string) []string {
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if len(word) >= minSearchTermLen {
			terms = append(terms, word)
		}
	}
	return terms
}

// Search returns orgID's feedback matching query, best matches first.
// It relies on the text index over the feedback text.
func (r *FeedbackRepository) Search(ctx context.Context, orgID, query string, limit int64) ([]models.Feedback, error) {
	terms := SearchTerms(query)
	if len(terms) == 0 {
		return []models.Feedback{}, nil
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = defaultSearchLimit
	}

	filter := bson.M{
		"organization_id": orgID,
		"$text":           bson.M{"$search": strings.Join(terms, " ")},
	}
	opts := options.Find().
		SetProjection(bson.M{"score_text": bson.M{"$meta": "textScore"}}).
		SetSort(bson.D{{Key: "score_text", Value: bson.M{"$meta": "textScore"}}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search feedback: %w", err)
	}
	defer cursor.Close(ctx)

	results := []models.Feedback{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	slog.Info("Feedback search completed",
		"organizationID", orgID,
		"terms", len(terms),
		"results", len(results),
	)

	return results, nil
}
