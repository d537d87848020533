package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"feedback-sentiment/config"
	"feedback-sentiment/models"
)

const (
	claudeAPIURL      = "https://api.anthropic.com/v1/messages"
	sentimentToolName = "record_sentiment"
	testModeKey       = "TEST_MODE"
	maxThemes         = 5
)

var ErrAnalyzerNotConfigured = errors.New("claude API key not configured")

// ClaudeRequest represents the request to Claude API
type ClaudeRequest struct {
	Model      string      `json:"model"`
	MaxTokens  int         `json:"max_tokens"`
	Messages   []Message   `json:"messages"`
	Tools      []Tool      `json:"tools,omitempty"`
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`
	System     string      `json:"system,omitempty"`
}

// Message represents a message in the conversation
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// Tool represents a tool that Claude can use
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// ToolChoice forces Claude to answer with a specific tool
type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// InputSchema represents the schema for tool input
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Property represents a property in the input schema
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// ContentBlock represents a content block in Claude's response
type ContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ClaudeResponse represents the response from Claude API
type ClaudeResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// SentimentAnalyzer classifies feedback text with Claude tool use
type SentimentAnalyzer struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	limiter  *RateLimiter
}

func NewSentimentAnalyzer(apiKey, model string, limiter *RateLimiter) *SentimentAnalyzer {
	return &SentimentAnalyzer{
		apiKey:   apiKey,
		model:    model,
		endpoint: claudeAPIURL,
		client: &http.Client{
			Timeout: 45 * time.Second,
		},
		limiter: limiter,
	}
}

func sentimentTool() Tool {
	return Tool{
		Name:        sentimentToolName,
		Description: "Record the sentiment classification of a piece of customer feedback",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"sentiment": {
					Type:        "string",
					Description: "Overall sentiment of the feedback",
					Enum:        []string{models.SentimentPositive, models.SentimentNegative, models.SentimentNeutral, models.SentimentMixed},
				},
				"score": {
					Type:        "number",
					Description: "Sentiment score from -1 (very negative) to 1 (very positive)",
				},
				"themes": {
					Type:        "array",
					Description: "Short themes mentioned in the feedback",
					Items:       &Property{Type: "string"},
				},
			},
			Required: []string{"sentiment", "score", "themes"},
		},
	}
}

// Analyze returns the sentiment of text. organizationName and source only
// shape the prompt.
func (a *SentimentAnalyzer) Analyze(ctx context.Context, text, organizationName, source string) (*models.SentimentResult, error) {
	// Test mode: if API key is "TEST_MODE", return a fixed result
	if a.apiKey == testModeKey {
		slog.Info("Running in TEST_MODE - returning mock sentiment")
		return &models.SentimentResult{Sentiment: models.SentimentNeutral, Score: 0, Themes: []string{}}, nil
	}

	if a.apiKey == "" {
		return nil, ErrAnalyzerNotConfigured
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for claude rate limit: %w", err)
	}

	requestBody := ClaudeRequest{
		Model:     a.model,
		MaxTokens: 512,
		System:    config.GetSentimentSystemPrompt(organizationName, source),
		Messages: []Message{
			{
				Role:    "user",
				Content: "FEEDBACK:\n" + text,
			},
		},
		Tools:      []Tool{sentimentTool()},
		ToolChoice: &ToolChoice{Type: "tool", Name: sentimentToolName},
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		if os.IsTimeout(err) || strings.Contains(err.Error(), "deadline exceeded") {
			slog.Error("Claude API timeout", "error", err, "textLength", len(text))
			return nil, fmt.Errorf("claude API timeout: %w", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Claude API error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("claude API error: %s", resp.Status)
	}

	var claudeResp ClaudeResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return nil, err
	}

	slog.Info("Claude sentiment generated",
		"inputTokens", claudeResp.Usage.InputTokens,
		"outputTokens", claudeResp.Usage.OutputTokens,
	)

	return parseSentimentResponse(&claudeResp)
}

func parseSentimentResponse(resp *ClaudeResponse) (*models.SentimentResult, error) {
	for _, block := range resp.Content {
		if block.Type != "tool_use" || block.Name != sentimentToolName {
			continue
		}

		var result models.SentimentResult
		if err := json.Unmarshal(block.Input, &result); err != nil {
			return nil, fmt.Errorf("invalid sentiment tool input: %w", err)
		}
		return normalizeSentiment(&result)
	}

	return nil, fmt.Errorf("no sentiment tool call in Claude response")
}

func normalizeSentiment(result *models.SentimentResult) (*models.SentimentResult, error) {
	result.Sentiment = strings.ToLower(strings.TrimSpace(result.Sentiment))
	switch result.Sentiment {
	case models.SentimentPositive, models.SentimentNegative, models.SentimentNeutral, models.SentimentMixed:
	default:
		return nil, fmt.Errorf("unknown sentiment label %q", result.Sentiment)
	}

	if result.Score > 1 {
		result.Score = 1
	} else if result.Score < -1 {
		result.Score = -1
	}

	themes := make([]string, 0, len(result.Themes))
	for _, theme := range result.Themes {
		theme = strings.ToLower(strings.TrimSpace(theme))
		if theme != "" && len(themes) < maxThemes {
			themes = append(themes, theme)
		}
	}
	result.Themes = themes

	return result, nil
}
