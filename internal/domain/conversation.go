package domain

import (
	"errors"
	"time"
)

// ErrNotFound indicates the conversation does not exist or has no messages
// left after filtering. It is the only failure an analysis surfaces as a
// hard error.
var ErrNotFound = errors.New("conversation not found")

// ErrRateLimited marks an upstream 429-class rejection. Providers wrap it so
// the coordinator can report the rejection to the rate limiter.
var ErrRateLimited = errors.New("rate limited by upstream")

// Conversation is a chat thread attached to a task or team.
type Conversation struct {
	ID        string
	Title     string
	TeamID    string
	CreatedAt time.Time
}

// Message is a single entry in a conversation.
type Message struct {
	ID             string
	ConversationID string
	Sender         string
	Body           string
	System         bool
	SentAt         time.Time
}
