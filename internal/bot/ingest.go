package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flashbackhq/flashback/internal/events"
	"github.com/flashbackhq/flashback/internal/l10n"
	"github.com/flashbackhq/flashback/internal/messages"
	"github.com/flashbackhq/flashback/internal/senders"
)

// notificationPreviewLimit caps the message excerpt in operator notifications.
const notificationPreviewLimit = 50

// Ingestor runs the inbound pipeline: classify, upsert the sender, resolve
// the conversation, store the message and fan events out. Failures before the
// message is stored get an apology reply in the sender's locale; failures
// after it are logged only.
type Ingestor struct {
	senders       SenderStore
	conversations ConversationStore
	messages      MessageStore
	operators     OperatorStore
	hub           Broadcaster
	locales       *l10n.Bundle
	logger        *slog.Logger
}

func NewIngestor(
	log *slog.Logger,
	locales *l10n.Bundle,
	senderStore SenderStore,
	conversationStore ConversationStore,
	messageStore MessageStore,
	operatorStore OperatorStore,
	hub Broadcaster,
) *Ingestor {
	return &Ingestor{
		senders:       senderStore,
		conversations: conversationStore,
		messages:      messageStore,
		operators:     operatorStore,
		hub:           hub,
		locales:       locales,
		logger:        log.With(slog.String("service", "ingest")),
	}
}

func (i *Ingestor) Ingest(ctx context.Context, bot Transport, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}

	locale := i.locales.ForCountry(senders.CountryCodeFromLanguageTag(msg.From.LanguageCode))

	if msg.IsCommand() && msg.Command() == "start" {
		if _, err := i.senders.Upsert(ctx, msg.From.ID, profileFromUser(msg.From)); err != nil {
			i.logger.Error("upsert sender",
				slog.Int64("telegram_user_id", msg.From.ID), slog.Any("error", err))
		}
		i.reply(bot, msg.Chat.ID, locale.Bot.Welcome)
		return
	}

	content, media, kind := classifyMessage(msg, bot, i.logger)
	if kind == contentUnsupported {
		i.reply(bot, msg.Chat.ID, locale.Bot.Unsupported)
		return
	}

	sender, err := i.senders.Upsert(ctx, msg.From.ID, profileFromUser(msg.From))
	if err != nil {
		i.logger.Error("upsert sender",
			slog.Int64("telegram_user_id", msg.From.ID), slog.Any("error", err))
		i.reply(bot, msg.Chat.ID, locale.Bot.Error)
		return
	}

	if sender.PhotoURL == "" {
		if photoURL := fetchAvatarURL(bot, sender.ID, i.logger); photoURL != "" {
			if err := i.senders.SetPhotoURL(ctx, sender.ID, photoURL); err != nil {
				i.logger.Warn("store sender photo",
					slog.Int64("telegram_user_id", sender.ID), slog.Any("error", err))
			}
		}
	}

	if sender.IsBlocked {
		i.reply(bot, msg.Chat.ID, locale.Bot.Error)
		return
	}

	conv, created, err := i.conversations.Resolve(ctx, sender.ID)
	if err != nil {
		i.logger.Error("resolve conversation",
			slog.Int64("telegram_user_id", sender.ID), slog.Any("error", err))
		i.reply(bot, msg.Chat.ID, locale.Bot.Error)
		return
	}

	if created {
		i.hub.Broadcast(events.ConversationCreated{
			ConversationID:   conv.ID,
			TelegramUserID:   sender.ID,
			TelegramUserName: sender.FullName(),
		})
		i.notifyOperators(ctx, bot, sender, content)
	}

	stored, err := i.messages.Create(ctx, messages.CreateParams{
		ConversationID:    conv.ID,
		Content:           content,
		Media:             media,
		TelegramMessageID: int64(msg.MessageID),
	})
	if err != nil {
		i.logger.Error("store message",
			slog.String("conversation_id", conv.ID), slog.Any("error", err))
		i.reply(bot, msg.Chat.ID, locale.Bot.Error)
		return
	}

	if err := i.conversations.Touch(ctx, conv.ID); err != nil {
		i.logger.Warn("bump conversation counters",
			slog.String("conversation_id", conv.ID), slog.Any("error", err))
	}

	if created {
		i.reply(bot, msg.Chat.ID, locale.Bot.Welcome)
	}

	i.hub.Broadcast(events.MessageReceived{
		ConversationID:   conv.ID,
		MessageID:        stored.ID,
		Content:          content,
		TelegramUserID:   sender.ID,
		TelegramUserName: senderWireName(sender),
		MediaType:        media.Type,
		MediaURL:         media.URL,
		FileName:         media.FileName,
		FileSize:         media.FileSize,
		MimeType:         media.MimeType,
		Duration:         media.Duration,
	})
}

// senderWireName is the label clients render next to an inbound message:
// the bare username when the sender has one, otherwise the first name.
func senderWireName(sender senders.Sender) string {
	if sender.Username != "" {
		return sender.Username
	}
	if sender.FirstName != "" {
		return sender.FirstName
	}
	return fmt.Sprintf("User %d", sender.ID)
}

// notifyOperators pings every active operator who opted into telegram
// notifications about a brand-new conversation. Individual failures are
// logged and never abort the pipeline.
func (i *Ingestor) notifyOperators(ctx context.Context, bot Transport, sender senders.Sender, content string) {
	operators, err := i.operators.ListActiveOperators(ctx)
	if err != nil {
		i.logger.Error("list operators for notification", slog.Any("error", err))
		return
	}

	preview := content
	if runes := []rune(content); len(runes) > notificationPreviewLimit {
		preview = string(runes[:notificationPreviewLimit]) + "..."
	}
	text := fmt.Sprintf(
		"🔔 New conversation\n\nFrom: %s\nMessage: %s\n\nPlease log in to the system to respond.",
		sender.FullName(), preview)

	for _, op := range operators {
		if op.Settings.TelegramNotificationsUserID == 0 {
			continue
		}
		notification := tgbotapi.NewMessage(op.Settings.TelegramNotificationsUserID, text)
		notification.ParseMode = tgbotapi.ModeHTML
		if _, err := bot.Send(notification); err != nil {
			i.logger.Warn("notify operator",
				slog.String("user_id", op.ID), slog.Any("error", err))
		}
	}
}

func (i *Ingestor) reply(bot Transport, chatID int64, text string) {
	if text == "" {
		return
	}
	if _, err := bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		i.logger.Warn("send bot reply", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}
}

func profileFromUser(user *tgbotapi.User) senders.Profile {
	return senders.Profile{
		Username:    user.UserName,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		CountryCode: senders.CountryCodeFromLanguageTag(user.LanguageCode),
	}
}
