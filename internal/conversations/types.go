// Package conversations owns conversation state and the one-open-conversation
// per-sender resolution.
package conversations

import (
	"time"

	"github.com/flashbackhq/flashback/internal/senders"
)

// Status is the conversation lifecycle state.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
	StatusClosed  Status = "closed"
)

// ValidStatus reports whether the value is one of the known states.
func ValidStatus(value string) bool {
	switch Status(value) {
	case StatusWaiting, StatusActive, StatusClosed:
		return true
	default:
		return false
	}
}

// Conversation groups a sender's messages under one open thread.
type Conversation struct {
	ID             string    `json:"id"`
	TelegramUserID int64     `json:"telegram_user_id"`
	UserID         string    `json:"user_id,omitempty"`
	Status         Status    `json:"status"`
	LastMessageAt  time.Time `json:"last_message_at"`
	UnreadCount    int32     `json:"unread_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// WithSender pairs a conversation with its sender for list responses.
type WithSender struct {
	Conversation
	TelegramUser senders.Sender `json:"telegram_user"`
}

// ListFilter narrows the conversation list.
type ListFilter struct {
	Status        string
	UserID        string
	Search        string
	IncludeClosed bool
	Limit         int
	Offset        int
}

// ListResult is the paginated list response.
type ListResult struct {
	Conversations []WithSender `json:"conversations"`
	Total         int64        `json:"total"`
}
