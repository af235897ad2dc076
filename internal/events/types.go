// Package events defines the real-time notifications fanned out to connected
// operator sessions and the websocket hub that delivers them.
package events

import "encoding/json"

// Type is the wire tag identifying an event variant.
type Type string

const (
	TypeMessageReceived           Type = "message.received"
	TypeMessageSent               Type = "message.sent"
	TypeConversationCreated       Type = "conversation.created"
	TypeConversationStatusChanged Type = "conversation.status_changed"
	TypeConversationAssigned      Type = "conversation.assigned"
	TypeConversationClosed        Type = "conversation.closed"
	TypeUserTyping                Type = "user.typing"
	TypeTelegramUserTyping        Type = "telegram_user.typing"
	TypeUserOnline                Type = "user.online"
	TypeUserOffline               Type = "user.offline"
	TypeMessageRead               Type = "message.read"
	TypeError                     Type = "error"
	TypeBotStatus                 Type = "bot.status"
)

// Event is the closed set of fan-out notifications. Each variant carries the
// minimal identifiers a client needs to update its view without a refetch.
type Event interface {
	EventType() Type
}

type MessageReceived struct {
	ConversationID   string `json:"conversation_id"`
	MessageID        string `json:"message_id"`
	Content          string `json:"content"`
	TelegramUserID   int64  `json:"telegram_user_id"`
	TelegramUserName string `json:"telegram_user_name"`
	MediaType        string `json:"media_type,omitempty"`
	MediaURL         string `json:"media_url,omitempty"`
	FileName         string `json:"file_name,omitempty"`
	FileSize         int64  `json:"file_size,omitempty"`
	MimeType         string `json:"mime_type,omitempty"`
	Duration         int32  `json:"duration,omitempty"`
}

type MessageSent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Content        string `json:"content"`
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name"`
}

type ConversationCreated struct {
	ConversationID   string `json:"conversation_id"`
	TelegramUserID   int64  `json:"telegram_user_id"`
	TelegramUserName string `json:"telegram_user_name"`
}

type ConversationStatusChanged struct {
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
}

type ConversationAssigned struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name"`
}

type ConversationClosed struct {
	ConversationID string `json:"conversation_id"`
}

type UserTyping struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name"`
}

type TelegramUserTyping struct {
	ConversationID string `json:"conversation_id"`
	TelegramUserID int64  `json:"telegram_user_id"`
}

type UserOnline struct {
	UserID string `json:"user_id"`
}

type UserOffline struct {
	UserID string `json:"user_id"`
}

type MessageRead struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type BotStatus struct {
	Status string `json:"status"`
}

func (MessageReceived) EventType() Type           { return TypeMessageReceived }
func (MessageSent) EventType() Type               { return TypeMessageSent }
func (ConversationCreated) EventType() Type       { return TypeConversationCreated }
func (ConversationStatusChanged) EventType() Type { return TypeConversationStatusChanged }
func (ConversationAssigned) EventType() Type      { return TypeConversationAssigned }
func (ConversationClosed) EventType() Type        { return TypeConversationClosed }
func (UserTyping) EventType() Type                { return TypeUserTyping }
func (TelegramUserTyping) EventType() Type        { return TypeTelegramUserTyping }
func (UserOnline) EventType() Type                { return TypeUserOnline }
func (UserOffline) EventType() Type               { return TypeUserOffline }
func (MessageRead) EventType() Type               { return TypeMessageRead }
func (Error) EventType() Type                     { return TypeError }
func (BotStatus) EventType() Type                 { return TypeBotStatus }

// Marshal renders an event as its wire JSON: the variant fields plus the
// "type" tag. This is the single point where the tag is derived.
func Marshal(event Event) ([]byte, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	tag, err := json.Marshal(event.EventType())
	if err != nil {
		return nil, err
	}
	fields["type"] = tag
	return json.Marshal(fields)
}
