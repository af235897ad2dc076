package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flashbackhq/flashback/internal/conversations"
	"github.com/flashbackhq/flashback/internal/events"
	"github.com/flashbackhq/flashback/internal/messages"
)

// Dispatcher delivers operator replies to senders and records the outcome.
type Dispatcher struct {
	manager       *Manager
	conversations ConversationStore
	messages      MessageStore
	senders       SenderStore
	hub           Broadcaster
	logger        *slog.Logger
}

func NewDispatcher(
	log *slog.Logger,
	manager *Manager,
	conversationStore ConversationStore,
	messageStore MessageStore,
	senderStore SenderStore,
	hub Broadcaster,
) *Dispatcher {
	return &Dispatcher{
		manager:       manager,
		conversations: conversationStore,
		messages:      messageStore,
		senders:       senderStore,
		hub:           hub,
		logger:        log.With(slog.String("service", "dispatcher")),
	}
}

// Dispatch sends an operator reply to the conversation's sender. Delivery
// comes first: nothing is stored for a failed send. An unreachable recipient
// is flagged as blocked and reported to operator sessions as a USER_BLOCKED
// error event.
func (d *Dispatcher) Dispatch(ctx context.Context, conv conversations.Conversation, content, userID, userName string) (messages.Message, error) {
	bot, err := d.manager.Bot()
	if err != nil {
		return messages.Message{}, err
	}

	sent, err := bot.Send(tgbotapi.NewMessage(conv.TelegramUserID, content))
	if err != nil {
		if IsRecipientUnreachable(err) {
			if _, markErr := d.senders.SetBlocked(ctx, conv.TelegramUserID, true); markErr != nil {
				d.logger.Warn("flag sender blocked",
					slog.Int64("telegram_user_id", conv.TelegramUserID), slog.Any("error", markErr))
			}
			d.hub.Broadcast(events.Error{
				Code:    "USER_BLOCKED",
				Message: fmt.Sprintf("User %d has blocked the bot. Message was not delivered.", conv.TelegramUserID),
			})
			return messages.Message{}, ErrRecipientUnreachable
		}
		return messages.Message{}, fmt.Errorf("send telegram message: %w", err)
	}

	msg, err := d.messages.Create(ctx, messages.CreateParams{
		ConversationID:    conv.ID,
		FromUser:          true,
		Content:           content,
		Read:              true,
		TelegramMessageID: int64(sent.MessageID),
	})
	if err != nil {
		return messages.Message{}, fmt.Errorf("store message: %w", err)
	}

	if err := d.conversations.TouchOutbound(ctx, conv.ID); err != nil {
		d.logger.Warn("update conversation after send",
			slog.String("conversation_id", conv.ID), slog.Any("error", err))
	}

	d.hub.Broadcast(events.MessageSent{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		Content:        content,
		UserID:         userID,
		UserName:       userName,
	})
	return msg, nil
}

// Notify sends a one-off plain message outside any conversation, used for
// operator telegram notifications.
func (d *Dispatcher) Notify(chatID int64, text string) error {
	bot, err := d.manager.Bot()
	if err != nil {
		return err
	}
	_, err = bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// IsRecipientUnreachable reports whether a send failure means the recipient
// cannot be reached at all: they blocked the bot, deactivated their account,
// or the chat no longer exists.
func IsRecipientUnreachable(err error) bool {
	message := err.Error()
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		message = apiErr.Message
	}
	message = strings.ToLower(message)
	return strings.Contains(message, "blocked") ||
		strings.Contains(message, "deactivated") ||
		strings.Contains(message, "chat not found")
}
