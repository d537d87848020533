package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	fbGraphAPI         = "https://graph.facebook.com/v18.0"
	maxCommentPages    = 20
	commentsPageLength = 100
)

const graphTimeLayout = "2006-01-02T15:04:05-0700"

// GraphUser is the author of a comment
type GraphUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GraphComment is a comment returned by the Graph API
type GraphComment struct {
	ID          string     `json:"id"`
	Message     string     `json:"message"`
	CreatedTime string     `json:"created_time"`
	From        *GraphUser `json:"from,omitempty"`
}

// AuthorName returns the commenter's name if the page token could see it
func (c GraphComment) AuthorName() string {
	if c.From == nil {
		return ""
	}
	return c.From.Name
}

// Created parses the Graph API timestamp, returning zero on failure
func (c GraphComment) Created() time.Time {
	t, err := time.Parse(graphTimeLayout, c.CreatedTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

type commentsPage struct {
	Data   []GraphComment `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// FacebookClient reads page comments from the Graph API
type FacebookClient struct {
	baseURL string
	client  *http.Client
	limiter *RateLimiter
}

func NewFacebookClient(limiter *RateLimiter) *FacebookClient {
	return &FacebookClient{
		baseURL: fbGraphAPI,
		client:  &http.Client{Timeout: 20 * time.Second},
		limiter: limiter,
	}
}

// FetchPostComments returns all comments on postID, following pagination
func (f *FacebookClient) FetchPostComments(ctx context.Context, postID, pageAccessToken string) ([]GraphComment, error) {
	query := url.Values{}
	query.Set("fields", "id,message,created_time,from{id,name}")
	query.Set("filter", "stream")
	query.Set("limit", fmt.Sprint(commentsPageLength))
	query.Set("access_token", pageAccessToken)

	next := fmt.Sprintf("%s/%s/comments?%s", f.baseURL, url.PathEscape(postID), query.Encode())

	var comments []GraphComment
	for page := 0; next != "" && page < maxCommentPages; page++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return comments, err
		}

		result, err := f.getCommentsPage(ctx, next)
		if err != nil {
			return comments, err
		}

		comments = append(comments, result.Data...)
		next = result.Paging.Next
	}

	slog.Info("Fetched Facebook comments", "postID", postID, "count", len(comments))

	return comments, nil
}

func (f *FacebookClient) getCommentsPage(ctx context.Context, pageURL string) (*commentsPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("Failed to fetch comments", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("failed to fetch comments: %s", resp.Status)
	}

	var result commentsPage
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}
