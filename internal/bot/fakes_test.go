package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"github.com/flashbackhq/flashback/internal/conversations"
	"github.com/flashbackhq/flashback/internal/events"
	"github.com/flashbackhq/flashback/internal/l10n"
	"github.com/flashbackhq/flashback/internal/messages"
	"github.com/flashbackhq/flashback/internal/senders"
	"github.com/flashbackhq/flashback/internal/users"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustLoadBundle(t *testing.T) *l10n.Bundle {
	t.Helper()
	bundle, err := l10n.Load()
	require.NoError(t, err)
	return bundle
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	sendErr error
	updates chan tgbotapi.Update
	fileURL string
	stopped bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		updates: make(chan tgbotapi.Update, 16),
		fileURL: "https://api.telegram.org/file/bot123/",
	}
}

func (f *fakeTransport) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeTransport) GetMe() (tgbotapi.User, error) {
	return tgbotapi.User{UserName: "testbot"}, nil
}

func (f *fakeTransport) GetChat(tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error) {
	return tgbotapi.Chat{}, errors.New("chat not available")
}

func (f *fakeTransport) GetUserProfilePhotos(tgbotapi.UserProfilePhotosConfig) (tgbotapi.UserProfilePhotos, error) {
	return tgbotapi.UserProfilePhotos{}, nil
}

func (f *fakeTransport) GetFileDirectURL(fileID string) (string, error) {
	if f.fileURL == "" {
		return "", errors.New("file not available")
	}
	return f.fileURL + fileID, nil
}

func (f *fakeTransport) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeTransport) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.updates)
	}
}

func (f *fakeTransport) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// sentTo returns the plain-text messages delivered to one chat.
func (f *fakeTransport) sentTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var texts []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ChatID == chatID {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

type fakeHub struct {
	mu     sync.Mutex
	events []events.Event
}

func (h *fakeHub) Broadcast(event events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *fakeHub) ofType(eventType events.Type) []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var matched []events.Event
	for _, event := range h.events {
		if event.EventType() == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

type blockedCall struct {
	id      int64
	blocked bool
}

type fakeSenderStore struct {
	mu           sync.Mutex
	senders      map[int64]senders.Sender
	blockedCalls []blockedCall
	photoURLs    map[int64]string
}

func newFakeSenderStore() *fakeSenderStore {
	return &fakeSenderStore{
		senders:   make(map[int64]senders.Sender),
		photoURLs: make(map[int64]string),
	}
}

func (s *fakeSenderStore) Get(_ context.Context, id int64) (senders.Sender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sender, ok := s.senders[id]
	if !ok {
		return senders.Sender{}, errors.New("sender not found")
	}
	return sender, nil
}

func (s *fakeSenderStore) Upsert(_ context.Context, id int64, profile senders.Profile) (senders.Sender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sender := s.senders[id]
	sender.ID = id
	sender.Username = profile.Username
	sender.FirstName = profile.FirstName
	sender.LastName = profile.LastName
	if profile.CountryCode != "" {
		sender.CountryCode = profile.CountryCode
	}
	s.senders[id] = sender
	return sender, nil
}

func (s *fakeSenderStore) SetPhotoURL(_ context.Context, id int64, photoURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photoURLs[id] = photoURL
	sender := s.senders[id]
	sender.PhotoURL = photoURL
	s.senders[id] = sender
	return nil
}

func (s *fakeSenderStore) SetBlocked(_ context.Context, id int64, blocked bool) (senders.Sender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockedCalls = append(s.blockedCalls, blockedCall{id: id, blocked: blocked})
	sender := s.senders[id]
	sender.ID = id
	sender.IsBlocked = blocked
	s.senders[id] = sender
	return sender, nil
}

type fakeConversationStore struct {
	mu              sync.Mutex
	next            int
	open            map[int64]conversations.Conversation
	resolveErr      error
	touched         []string
	touchedOutbound []string
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{open: make(map[int64]conversations.Conversation)}
}

func (s *fakeConversationStore) Resolve(_ context.Context, telegramUserID int64) (conversations.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolveErr != nil {
		return conversations.Conversation{}, false, s.resolveErr
	}
	if conv, ok := s.open[telegramUserID]; ok {
		return conv, false, nil
	}
	s.next++
	conv := conversations.Conversation{
		ID:             fmt.Sprintf("conv-%d", s.next),
		TelegramUserID: telegramUserID,
		Status:         conversations.StatusWaiting,
	}
	s.open[telegramUserID] = conv
	return conv, true, nil
}

func (s *fakeConversationStore) Touch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, id)
	return nil
}

func (s *fakeConversationStore) TouchOutbound(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchedOutbound = append(s.touchedOutbound, id)
	return nil
}

type fakeMessageStore struct {
	mu      sync.Mutex
	created []messages.CreateParams
	err     error
}

func (s *fakeMessageStore) Create(_ context.Context, params messages.CreateParams) (messages.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return messages.Message{}, s.err
	}
	s.created = append(s.created, params)
	return messages.Message{
		ID:             fmt.Sprintf("msg-%d", len(s.created)),
		ConversationID: params.ConversationID,
		FromUser:       params.FromUser,
		Content:        params.Content,
		Read:           params.Read,
		Media:          params.Media,
	}, nil
}

type fakeOperatorStore struct {
	operators []users.User
	err       error
}

func (s *fakeOperatorStore) ListActiveOperators(context.Context) ([]users.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.operators, nil
}

func newTestIngestor(t *testing.T) (*Ingestor, *fakeSenderStore, *fakeConversationStore, *fakeMessageStore, *fakeOperatorStore, *fakeHub) {
	t.Helper()
	senderStore := newFakeSenderStore()
	conversationStore := newFakeConversationStore()
	messageStore := &fakeMessageStore{}
	operatorStore := &fakeOperatorStore{}
	hub := &fakeHub{}
	ingest := NewIngestor(discardLogger(), mustLoadBundle(t),
		senderStore, conversationStore, messageStore, operatorStore, hub)
	return ingest, senderStore, conversationStore, messageStore, operatorStore, hub
}
