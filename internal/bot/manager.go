package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flashbackhq/flashback/internal/events"
)

const (
	// identityCheckTimeout bounds the getMe round trip when connecting.
	identityCheckTimeout = 5 * time.Second

	// restartDelay gives telegram a moment to release the long poll before
	// the same token reconnects.
	restartDelay = 100 * time.Millisecond

	// updatePollTimeout is the long-poll window in seconds.
	updatePollTimeout = 30
)

// Manager owns the transport session: at most one is live at a time, and
// every state change is broadcast as a bot.status event.
type Manager struct {
	logger *slog.Logger
	hub    Broadcaster
	ingest *Ingestor

	// connect dials telegram and verifies the token. Swapped out in tests.
	connect func(token string) (Transport, error)

	identityTimeout time.Duration

	// startMu serializes whole start/stop sequences so two concurrent
	// restarts cannot both dial and install, orphaning a receive loop.
	startMu sync.Mutex

	mu     sync.Mutex
	status Status
	bot    Transport
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(log *slog.Logger, hub Broadcaster, ingest *Ingestor) *Manager {
	return &Manager{
		logger:          log.With(slog.String("service", "bot")),
		hub:             hub,
		ingest:          ingest,
		connect:         dialTelegram,
		identityTimeout: identityCheckTimeout,
		status:          StatusDisconnected,
	}
}

func dialTelegram(token string) (Transport, error) {
	// The client timeout must exceed the long-poll window.
	client := &http.Client{Timeout: (updatePollTimeout + 10) * time.Second}
	return tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
}

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Bot returns the live transport, or ErrBotNotConnected.
func (m *Manager) Bot() (Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bot == nil || m.status != StatusConnected {
		return nil, ErrBotNotConnected
	}
	return m.bot, nil
}

// Start stops any running session, verifies the token against getMe within
// the identity timeout, and launches the update loop. On failure the status
// ends at error and no session is kept.
func (m *Manager) Start(ctx context.Context, token string) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	m.stop()

	m.setStatus(StatusConnecting)

	type dialResult struct {
		bot Transport
		err error
	}
	dialed := make(chan dialResult, 1)
	go func() {
		bot, err := m.connect(token)
		dialed <- dialResult{bot: bot, err: err}
	}()

	var bot Transport
	select {
	case res := <-dialed:
		if res.err != nil {
			m.setStatus(StatusError)
			return fmt.Errorf("verify bot identity: %w", res.err)
		}
		bot = res.bot
	case <-time.After(m.identityTimeout):
		m.setStatus(StatusError)
		return fmt.Errorf("verify bot identity: timed out after %s", m.identityTimeout)
	case <-ctx.Done():
		m.setStatus(StatusError)
		return ctx.Err()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	m.bot = bot
	m.cancel = cancel
	m.done = done
	m.status = StatusConnected
	m.mu.Unlock()
	m.hub.Broadcast(events.BotStatus{Status: string(StatusConnected)})
	m.logger.Info("bot connected")

	go m.receiveLoop(runCtx, bot, done)
	return nil
}

// Stop tears down the session and waits for the update loop to drain.
// Safe to call repeatedly; the status always ends at disconnected.
func (m *Manager) Stop() {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	m.stop()
}

func (m *Manager) stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.bot = nil
	m.cancel = nil
	m.done = nil
	m.status = StatusDisconnected
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	m.hub.Broadcast(events.BotStatus{Status: string(StatusDisconnected)})
	m.logger.Info("bot stopped")
}

// AvatarURL resolves a sender's avatar through the live transport.
func (m *Manager) AvatarURL(telegramUserID int64) (string, error) {
	bot, err := m.Bot()
	if err != nil {
		return "", err
	}
	return fetchAvatarURL(bot, telegramUserID, m.logger), nil
}

// Restart cycles the session with a fresh token.
func (m *Manager) Restart(ctx context.Context, token string) error {
	m.Stop()
	time.Sleep(restartDelay)
	return m.Start(ctx, token)
}

func (m *Manager) setStatus(status Status) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
	m.hub.Broadcast(events.BotStatus{Status: string(status)})
}

func (m *Manager) receiveLoop(ctx context.Context, bot Transport, done chan struct{}) {
	defer close(done)

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = updatePollTimeout
	updates := bot.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			for range updates {
			}
			return
		case update, ok := <-updates:
			if !ok {
				m.loopExited(bot)
				return
			}
			if update.Message == nil {
				continue
			}
			m.ingest.Ingest(ctx, bot, update.Message)
		}
	}
}

// loopExited handles the update stream closing on its own. If a newer
// session has already replaced this one, there is nothing to do.
func (m *Manager) loopExited(bot Transport) {
	m.mu.Lock()
	if m.bot != bot {
		m.mu.Unlock()
		return
	}
	m.bot = nil
	m.cancel = nil
	m.done = nil
	m.status = StatusError
	m.mu.Unlock()
	m.hub.Broadcast(events.BotStatus{Status: string(StatusError)})
	m.logger.Error("update stream closed unexpectedly")
}
