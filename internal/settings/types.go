package settings

// KeyTelegramBotToken is the settings row holding the bot credential.
const KeyTelegramBotToken = "telegram_bot_token"

// Response exposes system settings to admins. The token itself never leaves
// the server; only a masked preview is returned.
type Response struct {
	TelegramBotTokenSet     bool   `json:"telegram_bot_token_set"`
	TelegramBotTokenPreview string `json:"telegram_bot_token_preview,omitempty"`
}

// UpdateRequest is the admin input for changing system settings.
type UpdateRequest struct {
	TelegramBotToken *string `json:"telegram_bot_token,omitempty"`
}

// ResponseFromToken builds the masked settings view.
func ResponseFromToken(token string) Response {
	if token == "" {
		return Response{}
	}
	return Response{
		TelegramBotTokenSet:     true,
		TelegramBotTokenPreview: maskToken(token),
	}
}

func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
