package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"feedback-sentiment/models"
)

type commentFetcher interface {
	FetchPostComments(ctx context.Context, postID, pageAccessToken string) ([]GraphComment, error)
}

type externalUpserter interface {
	UpsertExternal(ctx context.Context, f *models.Feedback) (bool, error)
}

// SyncResult tallies one post synchronisation
type SyncResult struct {
	PostID  string             `json:"post_id"`
	Fetched int                `json:"fetched"`
	Created int                `json:"created"`
	Skipped int                `json:"skipped"`
	New     []*models.Feedback `json:"-"`
}

// SocialSync turns Facebook comments into feedback entries
type SocialSync struct {
	fetcher commentFetcher
	repo    externalUpserter
}

func NewSocialSync(fetcher commentFetcher, repo externalUpserter) *SocialSync {
	return &SocialSync{fetcher: fetcher, repo: repo}
}

// CommentFromWebhook builds a GraphComment from the fields of a feed change event
func CommentFromWebhook(commentID, message, authorID, authorName string, createdUnix int64) GraphComment {
	comment := GraphComment{ID: commentID, Message: message}
	if createdUnix > 0 {
		comment.CreatedTime = time.Unix(createdUnix, 0).UTC().Format(graphTimeLayout)
	}
	if authorID != "" || authorName != "" {
		comment.From = &GraphUser{ID: authorID, Name: authorName}
	}
	return comment
}

// SyncPost stores every comment of postID not yet known for orgID
func (s *SocialSync) SyncPost(ctx context.Context, orgID, postID, pageAccessToken string) (*SyncResult, error) {
	comments, err := s.fetcher.FetchPostComments(ctx, postID, pageAccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch comments for post %s: %w", postID, err)
	}

	result := &SyncResult{PostID: postID, Fetched: len(comments)}
	for _, comment := range comments {
		feedback, created, err := s.IngestComment(ctx, orgID, comment)
		if err != nil {
			return result, err
		}
		if !created {
			result.Skipped++
			continue
		}
		result.Created++
		result.New = append(result.New, feedback)
	}

	slog.Info("Facebook post synced",
		"organizationID", orgID,
		"postID", postID,
		"fetched", result.Fetched,
		"created", result.Created)

	return result, nil
}

// IngestComment stores one comment as feedback. created is false for empty
// comments and for comments that were already stored.
func (s *SocialSync) IngestComment(ctx context.Context, orgID string, comment GraphComment) (*models.Feedback, bool, error) {
	text := strings.TrimSpace(comment.Message)
	if text == "" || comment.ID == "" {
		return nil, false, nil
	}
	text = TruncateFeedback(text)

	feedback := &models.Feedback{
		OrganizationID: orgID,
		Source:         models.SourceFacebook,
		Text:           text,
		Author:         comment.AuthorName(),
		ExternalID:     comment.ID,
		SubmittedAt:    comment.Created(),
	}

	created, err := s.repo.UpsertExternal(ctx, feedback)
	if err != nil {
		return nil, false, err
	}
	return feedback, created, nil
}
