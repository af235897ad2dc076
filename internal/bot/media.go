package bot

import (
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flashbackhq/flashback/internal/messages"
)

type contentKind int

const (
	contentSupported contentKind = iota
	contentUnsupported
)

type fileResolver interface {
	GetFileDirectURL(fileID string) (string, error)
}

// classifyMessage maps an inbound telegram message to the text and attachment
// we store. Media without a caption gets a fixed placeholder so the
// conversation log stays readable. File URL resolution is best-effort; a
// failed lookup leaves the URL empty and is only logged.
func classifyMessage(msg *tgbotapi.Message, files fileResolver, log *slog.Logger) (string, messages.Media, contentKind) {
	switch {
	case msg.Text != "":
		return msg.Text, messages.Media{}, contentSupported

	case len(msg.Photo) > 0:
		largest := msg.Photo[len(msg.Photo)-1]
		media := messages.Media{
			Type:     "photo",
			URL:      resolveFileURL(files, largest.FileID, log),
			FileSize: int64(largest.FileSize),
		}
		return captionOr(msg.Caption, "Photo"), media, contentSupported

	case msg.Voice != nil:
		media := messages.Media{
			Type:     "voice",
			URL:      resolveFileURL(files, msg.Voice.FileID, log),
			FileSize: int64(msg.Voice.FileSize),
			MimeType: msg.Voice.MimeType,
			Duration: int32(msg.Voice.Duration),
		}
		return "Voice message", media, contentSupported

	case msg.Document != nil:
		media := messages.Media{
			Type:     "document",
			URL:      resolveFileURL(files, msg.Document.FileID, log),
			FileName: msg.Document.FileName,
			FileSize: int64(msg.Document.FileSize),
			MimeType: msg.Document.MimeType,
		}
		return captionOr(msg.Caption, "Document"), media, contentSupported

	case msg.Video != nil:
		media := messages.Media{
			Type:     "video",
			URL:      resolveFileURL(files, msg.Video.FileID, log),
			FileName: msg.Video.FileName,
			FileSize: int64(msg.Video.FileSize),
			MimeType: msg.Video.MimeType,
			Duration: int32(msg.Video.Duration),
		}
		return captionOr(msg.Caption, "Video"), media, contentSupported

	case msg.Audio != nil:
		media := messages.Media{
			Type:     "audio",
			URL:      resolveFileURL(files, msg.Audio.FileID, log),
			FileName: msg.Audio.FileName,
			FileSize: int64(msg.Audio.FileSize),
			MimeType: msg.Audio.MimeType,
			Duration: int32(msg.Audio.Duration),
		}
		return captionOr(msg.Caption, "Audio"), media, contentSupported

	case msg.Animation != nil:
		media := messages.Media{
			Type:     "animation",
			URL:      resolveFileURL(files, msg.Animation.FileID, log),
			FileName: msg.Animation.FileName,
			FileSize: int64(msg.Animation.FileSize),
			MimeType: msg.Animation.MimeType,
			Duration: int32(msg.Animation.Duration),
		}
		return captionOr(msg.Caption, "Animation"), media, contentSupported

	case msg.Sticker != nil:
		media := messages.Media{
			Type:     "sticker",
			URL:      resolveFileURL(files, msg.Sticker.FileID, log),
			FileSize: int64(msg.Sticker.FileSize),
		}
		placeholder := "Sticker"
		if msg.Sticker.Emoji != "" {
			placeholder += " " + msg.Sticker.Emoji
		}
		return placeholder, media, contentSupported

	default:
		// Contact cards, locations, polls and anything else we cannot
		// render in the conversation log.
		return "", messages.Media{}, contentUnsupported
	}
}

func captionOr(caption, placeholder string) string {
	if caption != "" {
		return caption
	}
	return placeholder
}

func resolveFileURL(files fileResolver, fileID string, log *slog.Logger) string {
	url, err := files.GetFileDirectURL(fileID)
	if err != nil {
		log.Warn("resolve file url", slog.String("file_id", fileID), slog.Any("error", err))
		return ""
	}
	return url
}

// fetchAvatarURL looks up a sender's avatar: the chat photo first, then the
// first profile photo. Both lookups are best-effort.
func fetchAvatarURL(bot Transport, telegramUserID int64, log *slog.Logger) string {
	chat, err := bot.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: telegramUserID},
	})
	if err == nil && chat.Photo != nil && chat.Photo.BigFileID != "" {
		if url, err := bot.GetFileDirectURL(chat.Photo.BigFileID); err == nil {
			return url
		}
	}

	photos, err := bot.GetUserProfilePhotos(tgbotapi.NewUserProfilePhotos(telegramUserID))
	if err != nil {
		log.Debug("fetch profile photos", slog.Int64("telegram_user_id", telegramUserID), slog.Any("error", err))
		return ""
	}
	if len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return ""
	}
	sizes := photos.Photos[0]
	url, err := bot.GetFileDirectURL(sizes[len(sizes)-1].FileID)
	if err != nil {
		log.Debug("resolve profile photo url", slog.Int64("telegram_user_id", telegramUserID), slog.Any("error", err))
		return ""
	}
	return url
}
