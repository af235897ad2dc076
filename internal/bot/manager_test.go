package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashbackhq/flashback/internal/events"
)

func newTestManager(t *testing.T) (*Manager, *fakeMessageStore, *fakeHub) {
	t.Helper()
	ingest, _, _, messageStore, _, _ := newTestIngestor(t)
	hub := &fakeHub{}
	manager := NewManager(discardLogger(), hub, ingest)
	return manager, messageStore, hub
}

func TestManagerLifecycle(t *testing.T) {
	manager, messageStore, _ := newTestManager(t)
	transport := newFakeTransport()
	manager.connect = func(string) (Transport, error) { return transport, nil }

	require.NoError(t, manager.Start(context.Background(), "token"))
	assert.Equal(t, StatusConnected, manager.Status())

	bot, err := manager.Bot()
	require.NoError(t, err)
	assert.Same(t, Transport(transport), bot)

	transport.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: 42, FirstName: "Alice"},
		Chat:      &tgbotapi.Chat{ID: 42},
		Text:      "hi",
	}}
	assert.Eventually(t, func() bool {
		messageStore.mu.Lock()
		defer messageStore.mu.Unlock()
		return len(messageStore.created) == 1
	}, time.Second, 10*time.Millisecond)

	manager.Stop()
	assert.Equal(t, StatusDisconnected, manager.Status())
	_, err = manager.Bot()
	assert.ErrorIs(t, err, ErrBotNotConnected)

	// Stopping again is a no-op.
	manager.Stop()
	assert.Equal(t, StatusDisconnected, manager.Status())
}

func TestManagerStartFailures(t *testing.T) {
	t.Run("bad token", func(t *testing.T) {
		manager, _, _ := newTestManager(t)
		manager.connect = func(string) (Transport, error) {
			return nil, errors.New("Not Found")
		}
		err := manager.Start(context.Background(), "bad")
		require.Error(t, err)
		assert.Equal(t, StatusError, manager.Status())
		_, err = manager.Bot()
		assert.ErrorIs(t, err, ErrBotNotConnected)
	})

	t.Run("identity check timeout", func(t *testing.T) {
		manager, _, _ := newTestManager(t)
		manager.identityTimeout = 20 * time.Millisecond
		manager.connect = func(string) (Transport, error) {
			time.Sleep(200 * time.Millisecond)
			return newFakeTransport(), nil
		}
		err := manager.Start(context.Background(), "slow")
		require.Error(t, err)
		assert.Equal(t, StatusError, manager.Status())
	})
}

func TestManagerStreamSelfExit(t *testing.T) {
	manager, _, _ := newTestManager(t)
	transport := newFakeTransport()
	manager.connect = func(string) (Transport, error) { return transport, nil }

	require.NoError(t, manager.Start(context.Background(), "token"))

	// The transport dropping the stream moves the session to error.
	transport.StopReceivingUpdates()
	assert.Eventually(t, func() bool {
		return manager.Status() == StatusError
	}, time.Second, 10*time.Millisecond)
	_, err := manager.Bot()
	assert.ErrorIs(t, err, ErrBotNotConnected)
}

func TestManagerConcurrentStarts(t *testing.T) {
	manager, _, _ := newTestManager(t)

	var mu sync.Mutex
	var transports []*fakeTransport
	manager.connect = func(string) (Transport, error) {
		time.Sleep(10 * time.Millisecond)
		transport := newFakeTransport()
		mu.Lock()
		transports = append(transports, transport)
		mu.Unlock()
		return transport, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = manager.Start(context.Background(), "token")
		}()
	}
	wg.Wait()

	assert.Equal(t, StatusConnected, manager.Status())
	manager.Stop()

	// Every dialed session was torn down; no receive loop survives.
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transports, 2)
	for _, transport := range transports {
		assert.True(t, transport.isStopped())
	}
}

func TestManagerRestart(t *testing.T) {
	manager, _, hub := newTestManager(t)
	dials := 0
	manager.connect = func(string) (Transport, error) {
		dials++
		return newFakeTransport(), nil
	}

	require.NoError(t, manager.Start(context.Background(), "token"))
	require.NoError(t, manager.Restart(context.Background(), "token-2"))
	t.Cleanup(manager.Stop)

	assert.Equal(t, 2, dials)
	assert.Equal(t, StatusConnected, manager.Status())

	// Every transition was announced.
	var statuses []string
	for _, event := range hub.ofType(events.TypeBotStatus) {
		statuses = append(statuses, event.(events.BotStatus).Status)
	}
	assert.Equal(t, []string{
		"disconnected", "connecting", "connected",
		"disconnected", "disconnected", "connecting", "connected",
	}, statuses)
}
