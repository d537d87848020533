package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FeedbackSource identifies how a feedback entry entered the system
type FeedbackSource string

const (
	SourceManual   FeedbackSource = "manual"
	SourceCSV      FeedbackSource = "csv"
	SourceAPI      FeedbackSource = "api"
	SourceFacebook FeedbackSource = "facebook"
)

// Sentiment labels produced by the analyzer
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
	SentimentMixed    = "mixed"
)

// Feedback is a single piece of customer feedback
type Feedback struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrganizationID string             `bson:"organization_id" json:"organization_id"`
	Source         FeedbackSource     `bson:"source" json:"source"`
	Text           string             `bson:"text" json:"text"`
	Author         string             `bson:"author,omitempty" json:"author,omitempty"`
	ExternalID     string             `bson:"external_id,omitempty" json:"external_id,omitempty"` // e.g. Facebook comment ID
	ImportBatchID  string             `bson:"import_batch_id,omitempty" json:"import_batch_id,omitempty"`

	// Filled in by sentiment analysis
	Sentiment  string     `bson:"sentiment,omitempty" json:"sentiment,omitempty"`
	Score      float64    `bson:"score,omitempty" json:"score,omitempty"`
	Themes     []string   `bson:"themes,omitempty" json:"themes,omitempty"`
	AnalyzedAt *time.Time `bson:"analyzed_at,omitempty" json:"analyzed_at,omitempty"`

	SubmittedAt time.Time `bson:"submitted_at" json:"submitted_at"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// SentimentResult is the analyzer output for one feedback text
type SentimentResult struct {
	Sentiment string   `json:"sentiment"`
	Score     float64  `json:"score"`
	Themes    []string `json:"themes"`
}

// SentimentStats summarises analyzed feedback for an organization
type SentimentStats struct {
	Total        int64            `json:"total"`
	Analyzed     int64            `json:"analyzed"`
	BySentiment  map[string]int64 `json:"by_sentiment"`
	AverageScore float64          `json:"average_score"`
}
