package bot

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashbackhq/flashback/internal/conversations"
	"github.com/flashbackhq/flashback/internal/events"
	"github.com/flashbackhq/flashback/internal/senders"
	"github.com/flashbackhq/flashback/internal/users"
)

func inboundText(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 7,
		From: &tgbotapi.User{
			ID:           42,
			FirstName:    "Alice",
			UserName:     "alice",
			LanguageCode: "en-US",
		},
		Chat: &tgbotapi.Chat{ID: 42},
		Text: text,
	}
}

func TestIngestNewConversation(t *testing.T) {
	ingest, senderStore, conversationStore, messageStore, _, hub := newTestIngestor(t)
	transport := newFakeTransport()

	ingest.Ingest(context.Background(), transport, inboundText("I need help"))

	sender, err := senderStore.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "alice", sender.Username)
	assert.Equal(t, "US", sender.CountryCode)

	require.Len(t, messageStore.created, 1)
	stored := messageStore.created[0]
	assert.Equal(t, "conv-1", stored.ConversationID)
	assert.False(t, stored.FromUser)
	assert.Equal(t, "I need help", stored.Content)
	assert.Equal(t, int64(7), stored.TelegramMessageID)
	assert.Equal(t, []string{"conv-1"}, conversationStore.touched)

	created := hub.ofType(events.TypeConversationCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "Alice", created[0].(events.ConversationCreated).TelegramUserName)

	received := hub.ofType(events.TypeMessageReceived)
	require.Len(t, received, 1)
	assert.Equal(t, "I need help", received[0].(events.MessageReceived).Content)
	assert.Equal(t, "alice", received[0].(events.MessageReceived).TelegramUserName)

	// A first contact gets the welcome reply.
	replies := transport.sentTo(42)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Hello")
}

func TestIngestExistingConversation(t *testing.T) {
	ingest, _, conversationStore, messageStore, _, hub := newTestIngestor(t)
	transport := newFakeTransport()
	conversationStore.open[42] = conversations.Conversation{
		ID: "conv-9", TelegramUserID: 42, Status: conversations.StatusActive,
	}

	ingest.Ingest(context.Background(), transport, inboundText("still there?"))

	require.Len(t, messageStore.created, 1)
	assert.Equal(t, "conv-9", messageStore.created[0].ConversationID)
	assert.Empty(t, hub.ofType(events.TypeConversationCreated))
	assert.Empty(t, transport.sentTo(42))
}

func TestIngestRepliesInSenderLocale(t *testing.T) {
	ingest, _, _, _, _, _ := newTestIngestor(t)
	transport := newFakeTransport()
	msg := inboundText("помогите")
	msg.From.LanguageCode = "ru"

	ingest.Ingest(context.Background(), transport, msg)

	replies := transport.sentTo(42)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Здравствуйте")
}

func TestIngestUnsupportedMessage(t *testing.T) {
	ingest, _, _, messageStore, _, hub := newTestIngestor(t)
	transport := newFakeTransport()
	msg := inboundText("")
	msg.Contact = &tgbotapi.Contact{PhoneNumber: "+123"}

	ingest.Ingest(context.Background(), transport, msg)

	assert.Empty(t, messageStore.created)
	assert.Empty(t, hub.events)
	replies := transport.sentTo(42)
	require.Len(t, replies, 1)
	assert.Equal(t, "The message with this type is not supported yet.", replies[0])
}

func TestIngestBareMessage(t *testing.T) {
	ingest, _, _, messageStore, _, _ := newTestIngestor(t)
	transport := newFakeTransport()

	ingest.Ingest(context.Background(), transport, inboundText(""))

	assert.Empty(t, messageStore.created)
	replies := transport.sentTo(42)
	require.Len(t, replies, 1)
	assert.Equal(t, "The message with this type is not supported yet.", replies[0])
}

func TestIngestMediaEventCarriesDescriptor(t *testing.T) {
	ingest, _, _, _, _, hub := newTestIngestor(t)
	transport := newFakeTransport()
	msg := inboundText("")
	msg.Voice = &tgbotapi.Voice{FileID: "v1", FileSize: 2048, Duration: 12, MimeType: "audio/ogg"}

	ingest.Ingest(context.Background(), transport, msg)

	received := hub.ofType(events.TypeMessageReceived)
	require.Len(t, received, 1)
	event := received[0].(events.MessageReceived)
	assert.Equal(t, "voice", event.MediaType)
	assert.Equal(t, int64(2048), event.FileSize)
	assert.Equal(t, "audio/ogg", event.MimeType)
	assert.Equal(t, int32(12), event.Duration)
}

func TestIngestStartCommand(t *testing.T) {
	ingest, senderStore, _, messageStore, _, hub := newTestIngestor(t)
	transport := newFakeTransport()
	msg := inboundText("/start")
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}}

	ingest.Ingest(context.Background(), transport, msg)

	// The command registers the sender and greets without opening a conversation.
	_, err := senderStore.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, messageStore.created)
	assert.Empty(t, hub.ofType(events.TypeConversationCreated))
	replies := transport.sentTo(42)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Hello")
}

func TestIngestNotifiesOperators(t *testing.T) {
	ingest, _, _, _, operatorStore, _ := newTestIngestor(t)
	transport := newFakeTransport()
	operatorStore.operators = []users.User{
		{
			ID: "op-1",
			Settings: users.Settings{
				NotificationsEnabled:        true,
				TelegramNotificationsUserID: 999,
			},
		},
		{
			// The telegram channel works even with UI notifications off.
			ID: "op-2",
			Settings: users.Settings{
				NotificationsEnabled:        false,
				TelegramNotificationsUserID: 888,
			},
		},
		{
			ID:       "op-3",
			Settings: users.Settings{NotificationsEnabled: true},
		},
	}

	ingest.Ingest(context.Background(), transport, inboundText("I need help with my order, it never arrived and support is not answering"))

	pings := transport.sentTo(999)
	require.Len(t, pings, 1)
	assert.Contains(t, pings[0], "🔔 New conversation")
	assert.Contains(t, pings[0], "From: Alice")
	assert.Contains(t, pings[0], "...")
	assert.Contains(t, pings[0], "Please log in to the system to respond.")
	assert.Equal(t, pings, transport.sentTo(888))
}

func TestIngestBlockedSender(t *testing.T) {
	ingest, senderStore, _, messageStore, _, hub := newTestIngestor(t)
	transport := newFakeTransport()
	senderStore.senders[42] = senders.Sender{ID: 42, IsBlocked: true}

	ingest.Ingest(context.Background(), transport, inboundText("let me in"))

	// The pipeline stops at the blocked check: nothing stored, no events,
	// the flag untouched, only the error reply goes out.
	assert.Empty(t, messageStore.created)
	assert.Empty(t, hub.events)
	assert.Empty(t, senderStore.blockedCalls)
	replies := transport.sentTo(42)
	require.Len(t, replies, 1)
	assert.Equal(t, "Sorry, something went wrong. Please try again later.", replies[0])
}

func TestIngestIgnoresBots(t *testing.T) {
	ingest, _, _, messageStore, _, _ := newTestIngestor(t)
	transport := newFakeTransport()
	msg := inboundText("beep")
	msg.From.IsBot = true

	ingest.Ingest(context.Background(), transport, msg)

	assert.Empty(t, messageStore.created)
	assert.Empty(t, transport.sent)
}
