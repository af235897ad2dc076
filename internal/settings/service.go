// Package settings stores keyed system settings, currently the telegram bot
// credential managed by admins.
package settings

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "settings")),
	}
}

// Get returns the value for a key, or "" when unset.
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE id = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set creates or replaces the value for a key.
func (s *Service) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (id, value) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	return err
}

// BotToken returns the stored telegram bot credential, "" when unset.
func (s *Service) BotToken(ctx context.Context) (string, error) {
	return s.Get(ctx, KeyTelegramBotToken)
}
