package users

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flashbackhq/flashback/internal/events"
)

// PresenceSweeper tracks which operators currently count as online and emits
// user.offline once a heartbeat lapses past the online window. Online
// transitions are announced immediately from the heartbeat path.
type PresenceSweeper struct {
	service *Service
	hub     *events.Hub
	logger  *slog.Logger
	cron    *cron.Cron

	mu     sync.Mutex
	online map[string]struct{}
}

func NewPresenceSweeper(log *slog.Logger, service *Service, hub *events.Hub) *PresenceSweeper {
	return &PresenceSweeper{
		service: service,
		hub:     hub,
		logger:  log.With(slog.String("service", "presence")),
		online:  make(map[string]struct{}),
	}
}

// Start schedules the periodic sweep.
func (p *PresenceSweeper) Start() error {
	p.cron = cron.New()
	if _, err := p.cron.AddFunc("@every 1m", p.sweep); err != nil {
		return err
	}
	p.cron.Start()
	return nil
}

// Stop halts the sweep schedule.
func (p *PresenceSweeper) Stop() {
	if p.cron != nil {
		p.cron.Stop()
	}
}

// MarkOnline records a heartbeat and broadcasts user.online on the
// offline-to-online transition.
func (p *PresenceSweeper) MarkOnline(userID string) {
	p.mu.Lock()
	_, wasOnline := p.online[userID]
	p.online[userID] = struct{}{}
	p.mu.Unlock()
	if !wasOnline {
		p.hub.Broadcast(events.UserOnline{UserID: userID})
	}
}

func (p *PresenceSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	list, err := p.service.List(ctx)
	if err != nil {
		p.logger.Warn("presence sweep failed", slog.Any("error", err))
		return
	}
	now := time.Now()
	stillOnline := make(map[string]struct{}, len(list))
	for _, user := range list {
		if user.IsOnline(now) {
			stillOnline[user.ID] = struct{}{}
		}
	}

	p.mu.Lock()
	var lapsed []string
	for id := range p.online {
		if _, ok := stillOnline[id]; !ok {
			lapsed = append(lapsed, id)
			delete(p.online, id)
		}
	}
	p.mu.Unlock()

	for _, id := range lapsed {
		p.hub.Broadcast(events.UserOffline{UserID: id})
	}
}
