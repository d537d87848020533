package webhooks

// WebhookEvent is the body Facebook posts for page subscriptions
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes of one page
type Entry struct {
	ID      string   `json:"id"`
	Time    int64    `json:"time"`
	Changes []Change `json:"changes,omitempty"`
}

// Change represents a feed change event
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// Sender identifies the author of a comment
type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChangeValue represents the value of a change
type ChangeValue struct {
	Item        string  `json:"item"`
	Verb        string  `json:"verb"`
	CommentID   string  `json:"comment_id"`
	PostID      string  `json:"post_id"`
	ParentID    string  `json:"parent_id"`
	From        *Sender `json:"from,omitempty"`
	Message     string  `json:"message"`
	CreatedTime int64   `json:"created_time"` // Unix timestamp from Facebook
}
