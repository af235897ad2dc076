// Package bot bridges the telegram transport to the desk: the session
// lifecycle manager, the inbound ingestion pipeline and the outbound
// dispatcher.
package bot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flashbackhq/flashback/internal/conversations"
	"github.com/flashbackhq/flashback/internal/events"
	"github.com/flashbackhq/flashback/internal/messages"
	"github.com/flashbackhq/flashback/internal/senders"
	"github.com/flashbackhq/flashback/internal/users"
)

// Status is the lifecycle state of the transport session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// ErrBotNotConnected is returned when an operation needs a live transport
// session and none exists.
var ErrBotNotConnected = errors.New("bot is not connected")

// ErrRecipientUnreachable marks a send that failed because the sender
// blocked the bot, deactivated their account, or the chat is gone. Callers
// should stop retrying until the sender is unblocked.
var ErrRecipientUnreachable = errors.New("recipient unreachable")

// Transport is the telegram API surface the package depends on.
// *tgbotapi.BotAPI satisfies it.
type Transport interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetMe() (tgbotapi.User, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetUserProfilePhotos(config tgbotapi.UserProfilePhotosConfig) (tgbotapi.UserProfilePhotos, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// SenderStore persists telegram identities.
type SenderStore interface {
	Get(ctx context.Context, id int64) (senders.Sender, error)
	Upsert(ctx context.Context, id int64, profile senders.Profile) (senders.Sender, error)
	SetPhotoURL(ctx context.Context, id int64, photoURL string) error
	SetBlocked(ctx context.Context, id int64, blocked bool) (senders.Sender, error)
}

// ConversationStore resolves and updates conversations.
type ConversationStore interface {
	Resolve(ctx context.Context, telegramUserID int64) (conversations.Conversation, bool, error)
	Touch(ctx context.Context, id string) error
	TouchOutbound(ctx context.Context, id string) error
}

// MessageStore persists messages.
type MessageStore interface {
	Create(ctx context.Context, params messages.CreateParams) (messages.Message, error)
}

// OperatorStore lists accounts eligible for new-conversation notifications.
type OperatorStore interface {
	ListActiveOperators(ctx context.Context) ([]users.User, error)
}

// Broadcaster fans domain events out to operator sessions.
type Broadcaster interface {
	Broadcast(event events.Event)
}
