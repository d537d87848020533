package config

import "strings"

// SentimentPromptTemplates contains the prompt text sent with every analysis request
type SentimentPromptTemplates struct {
	// SystemTemplate frames the analyst role
	SystemTemplate string

	// SourceHints adds context about where the feedback came from
	SourceHints map[string]string
}

// DefaultSentimentPrompts returns the default prompts for feedback analysis
func DefaultSentimentPrompts() SentimentPromptTemplates {
	return SentimentPromptTemplates{
		SystemTemplate: `You are a customer feedback analyst for {{ORGANIZATION}}.
Classify the overall sentiment of the feedback as positive, negative, neutral or mixed.
Give a score from -1 (very negative) to 1 (very positive).
List at most five short themes (two or three words each) that the customer talks about.
Always answer by calling the record_sentiment tool.`,

		SourceHints: map[string]string{
			"facebook": "The feedback is a public comment on the organization's Facebook page. Ignore emoji-only noise.",
			"csv":      "The feedback was imported from a survey export.",
			"api":      "The feedback was submitted through the organization's integration.",
			"manual":   "The feedback was entered by a team member on behalf of a customer.",
		},
	}
}

// GetSentimentSystemPrompt builds the system prompt for one analysis request
func GetSentimentSystemPrompt(organizationName, source string) string {
	prompts := DefaultSentimentPrompts()

	if organizationName == "" {
		organizationName = "the organization"
	}

	var prompt strings.Builder
	prompt.WriteString(strings.ReplaceAll(prompts.SystemTemplate, "{{ORGANIZATION}}", organizationName))

	if hint, ok := prompts.SourceHints[source]; ok {
		prompt.WriteString("\n\n")
		prompt.WriteString(hint)
	}

	return prompt.String()
}
