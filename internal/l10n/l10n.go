// Package l10n holds the localized bot-facing message bundles.
// The bundle is loaded once at startup and passed by reference; there is no
// process-wide mutable locale state.
package l10n

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed locales/*.json
var localesFS embed.FS

// BotMessages are the fixed plain-text replies sent to senders.
type BotMessages struct {
	Welcome            string `json:"welcome"`
	OperatorAssigned   string `json:"operator_assigned"`
	ConversationClosed string `json:"conversation_closed"`
	OperatorTyping     string `json:"operator_typing"`
	MessageSent        string `json:"message_sent"`
	Error              string `json:"error"`
	Unsupported        string `json:"unsupported"`
	Empty              string `json:"empty"`
}

// Locale is one language's message set.
type Locale struct {
	Bot BotMessages `json:"bot"`
}

// Bundle is the immutable set of loaded locales with an English fallback.
type Bundle struct {
	locales map[string]Locale
}

// Load reads the embedded locale files. English is required.
func Load() (*Bundle, error) {
	locales := make(map[string]Locale)
	for _, key := range []string{"en", "ru"} {
		raw, err := localesFS.ReadFile("locales/" + key + ".json")
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", key, err)
		}
		var locale Locale
		if err := json.Unmarshal(raw, &locale); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", key, err)
		}
		locales[key] = locale
	}
	if _, ok := locales["en"]; !ok {
		return nil, fmt.Errorf("default english locale missing")
	}
	return &Bundle{locales: locales}, nil
}

// ForCountry picks the locale for a sender's country code.
// Russia maps to Russian, everything else falls back to English.
func (b *Bundle) ForCountry(countryCode string) Locale {
	key := "en"
	if strings.EqualFold(strings.TrimSpace(countryCode), "RU") {
		key = "ru"
	}
	if locale, ok := b.locales[key]; ok {
		return locale
	}
	return b.locales["en"]
}

// Format substitutes {name} placeholders in a message template.
func Format(template string, vars map[string]string) string {
	result := template
	for key, value := range vars {
		result = strings.ReplaceAll(result, "{"+key+"}", value)
	}
	return result
}
