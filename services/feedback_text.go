package services

import "unicode/utf8"

// FeedbackLength counts the characters of text, not its bytes
func FeedbackLength(text string) int {
	return utf8.RuneCountInString(text)
}

// TruncateFeedback cuts text to MaxFeedbackLength characters on a rune boundary
func TruncateFeedback(text string) string {
	count := 0
	for i := range text {
		if count == MaxFeedbackLength {
			return text[:i]
		}
		count++
	}
	return text
}
