package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalAddsTypeTag(t *testing.T) {
	tests := []struct {
		event    Event
		wantType string
	}{
		{MessageReceived{ConversationID: "c1", MessageID: "m1", Content: "hi", TelegramUserID: 42, TelegramUserName: "@alice"}, "message.received"},
		{MessageSent{ConversationID: "c1", MessageID: "m2", Content: "hello", UserID: "u1", UserName: "op@example.com"}, "message.sent"},
		{ConversationCreated{ConversationID: "c1", TelegramUserID: 42, TelegramUserName: "@alice"}, "conversation.created"},
		{ConversationStatusChanged{ConversationID: "c1", Status: "active"}, "conversation.status_changed"},
		{ConversationAssigned{ConversationID: "c1", UserID: "u1", UserName: "op@example.com"}, "conversation.assigned"},
		{ConversationClosed{ConversationID: "c1"}, "conversation.closed"},
		{UserOnline{UserID: "u1"}, "user.online"},
		{UserOffline{UserID: "u1"}, "user.offline"},
		{Error{Code: "USER_BLOCKED", Message: "blocked"}, "error"},
		{BotStatus{Status: "connected"}, "bot.status"},
	}

	for _, tt := range tests {
		t.Run(tt.wantType, func(t *testing.T) {
			raw, err := Marshal(tt.event)
			require.NoError(t, err)

			var decoded map[string]any
			require.NoError(t, json.Unmarshal(raw, &decoded))
			assert.Equal(t, tt.wantType, decoded["type"])
		})
	}
}

func TestMarshalMessageReceivedFields(t *testing.T) {
	raw, err := Marshal(MessageReceived{
		ConversationID:   "c1",
		MessageID:        "m1",
		Content:          "Voice message",
		TelegramUserID:   42,
		TelegramUserName: "Alice Smith",
		MediaType:        "voice",
		MediaURL:         "https://example.org/file",
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "c1", decoded["conversation_id"])
	assert.Equal(t, float64(42), decoded["telegram_user_id"])
	assert.Equal(t, "voice", decoded["media_type"])
	_, hasFileName := decoded["file_name"]
	assert.False(t, hasFileName, "empty optional fields stay off the wire")
}
