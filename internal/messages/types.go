// Package messages stores conversation messages and their edit history.
package messages

import "time"

// Media describes an attachment carried by a message. Fields are populated
// best-effort from the transport; absent values stay empty.
type Media struct {
	Type     string `json:"type,omitempty"`
	URL      string `json:"url,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Duration int32  `json:"duration,omitempty"`
}

// IsZero reports whether the message carries no attachment.
func (m Media) IsZero() bool {
	return m == Media{}
}

// Message is a single entry in a conversation. FromUser marks
// operator-authored messages; sender-authored messages have it false.
type Message struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	FromUser          bool      `json:"from_user"`
	Content           string    `json:"content"`
	Read              bool      `json:"read"`
	TelegramMessageID int64     `json:"telegram_message_id,omitempty"`
	Media             Media     `json:"media,omitzero"`
	CreatedAt         time.Time `json:"created_at"`
}

// Edit is one entry in a message's audit trail.
type Edit struct {
	ID              string    `json:"id"`
	MessageID       string    `json:"message_id"`
	PreviousContent string    `json:"previous_content"`
	EditedByUserID  string    `json:"edited_by_user_id"`
	EditReason      string    `json:"edit_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// CreateParams is the input for storing a new message.
type CreateParams struct {
	ConversationID    string
	FromUser          bool
	Content           string
	Read              bool
	TelegramMessageID int64
	Media             Media
}

// SearchFilter narrows a content search.
type SearchFilter struct {
	Query          string
	ConversationID string
	Limit          int
}
