package bot

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashbackhq/flashback/internal/conversations"
	"github.com/flashbackhq/flashback/internal/events"
)

func TestIsRecipientUnreachable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "blocked by user",
			err:  &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"},
			want: true,
		},
		{
			name: "deactivated account",
			err:  &tgbotapi.Error{Code: 403, Message: "Forbidden: user is deactivated"},
			want: true,
		},
		{
			name: "chat not found",
			err:  &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"},
			want: true,
		},
		{
			name: "rate limited",
			err:  &tgbotapi.Error{Code: 429, Message: "Too Many Requests: retry after 5"},
			want: false,
		},
		{
			name: "plain network error",
			err:  errors.New("connection refused"),
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRecipientUnreachable(tt.err))
		})
	}
}

func newConnectedDispatcher(t *testing.T, transport *fakeTransport) (*Dispatcher, *fakeConversationStore, *fakeMessageStore, *fakeSenderStore, *fakeHub) {
	t.Helper()
	ingest, _, _, _, _, _ := newTestIngestor(t)
	hub := &fakeHub{}
	manager := NewManager(discardLogger(), hub, ingest)
	manager.connect = func(string) (Transport, error) { return transport, nil }
	require.NoError(t, manager.Start(context.Background(), "token"))
	t.Cleanup(manager.Stop)

	conversationStore := newFakeConversationStore()
	messageStore := &fakeMessageStore{}
	senderStore := newFakeSenderStore()
	dispatcher := NewDispatcher(discardLogger(), manager, conversationStore, messageStore, senderStore, hub)
	return dispatcher, conversationStore, messageStore, senderStore, hub
}

func TestDispatch(t *testing.T) {
	conv := conversations.Conversation{ID: "conv-1", TelegramUserID: 42, Status: conversations.StatusActive}

	t.Run("delivers then stores and broadcasts", func(t *testing.T) {
		transport := newFakeTransport()
		dispatcher, conversationStore, messageStore, _, hub := newConnectedDispatcher(t, transport)

		msg, err := dispatcher.Dispatch(context.Background(), conv, "on it", "user-1", "Bob")
		require.NoError(t, err)
		assert.True(t, msg.FromUser)
		assert.Equal(t, []string{"on it"}, transport.sentTo(42))

		require.Len(t, messageStore.created, 1)
		assert.True(t, messageStore.created[0].Read)
		assert.Equal(t, int64(1), messageStore.created[0].TelegramMessageID)
		assert.Equal(t, []string{"conv-1"}, conversationStore.touchedOutbound)

		sent := hub.ofType(events.TypeMessageSent)
		require.Len(t, sent, 1)
		assert.Equal(t, "Bob", sent[0].(events.MessageSent).UserName)
	})

	t.Run("blocked recipient is flagged and nothing is stored", func(t *testing.T) {
		transport := newFakeTransport()
		transport.sendErr = &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
		dispatcher, _, messageStore, senderStore, hub := newConnectedDispatcher(t, transport)

		_, err := dispatcher.Dispatch(context.Background(), conv, "hello?", "user-1", "Bob")
		require.ErrorIs(t, err, ErrRecipientUnreachable)
		assert.Empty(t, messageStore.created)
		assert.Equal(t, []blockedCall{{id: 42, blocked: true}}, senderStore.blockedCalls)

		errs := hub.ofType(events.TypeError)
		require.Len(t, errs, 1)
		event := errs[0].(events.Error)
		assert.Equal(t, "USER_BLOCKED", event.Code)
		assert.Equal(t, "User 42 has blocked the bot. Message was not delivered.", event.Message)
	})

	t.Run("transient send failure is not a block", func(t *testing.T) {
		transport := newFakeTransport()
		transport.sendErr = &tgbotapi.Error{Code: 429, Message: "Too Many Requests: retry after 5"}
		dispatcher, _, messageStore, senderStore, _ := newConnectedDispatcher(t, transport)

		_, err := dispatcher.Dispatch(context.Background(), conv, "hello?", "user-1", "Bob")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrRecipientUnreachable)
		assert.Empty(t, messageStore.created)
		assert.Empty(t, senderStore.blockedCalls)
	})

	t.Run("requires a connected bot", func(t *testing.T) {
		ingest, _, _, _, _, _ := newTestIngestor(t)
		hub := &fakeHub{}
		manager := NewManager(discardLogger(), hub, ingest)
		dispatcher := NewDispatcher(discardLogger(), manager,
			newFakeConversationStore(), &fakeMessageStore{}, newFakeSenderStore(), hub)

		_, err := dispatcher.Dispatch(context.Background(), conv, "hello?", "user-1", "Bob")
		assert.ErrorIs(t, err, ErrBotNotConnected)
	})
}
