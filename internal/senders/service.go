package senders

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const senderColumns = `id, username, first_name, last_name, photo_url, country_code, is_blocked, created_at`

type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "senders")),
	}
}

func (s *Service) Get(ctx context.Context, id int64) (Sender, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+senderColumns+` FROM telegram_users WHERE id = $1`, id)
	return scanSender(row)
}

func (s *Service) List(ctx context.Context) ([]Sender, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+senderColumns+` FROM telegram_users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Sender
	for rows.Next() {
		sender, err := scanSender(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, sender)
	}
	return list, rows.Err()
}

// Upsert creates the sender on first contact or refreshes the mutable
// profile fields on subsequent updates. The blocked flag and photo are
// never touched here.
func (s *Service) Upsert(ctx context.Context, id int64, profile Profile) (Sender, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO telegram_users (id, username, first_name, last_name, country_code)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			country_code = CASE
				WHEN EXCLUDED.country_code <> '' THEN EXCLUDED.country_code
				ELSE telegram_users.country_code
			END
		RETURNING `+senderColumns,
		id, profile.Username, profile.FirstName, profile.LastName, profile.CountryCode)
	return scanSender(row)
}

// SetPhotoURL persists a newly discovered avatar.
func (s *Service) SetPhotoURL(ctx context.Context, id int64, photoURL string) error {
	_, err := s.pool.Exec(ctx, `UPDATE telegram_users SET photo_url = $2 WHERE id = $1`, id, photoURL)
	return err
}

// SetBlocked flips the blocked flag, e.g. when outbound delivery reveals the
// sender is unreachable or an operator blocks them manually.
func (s *Service) SetBlocked(ctx context.Context, id int64, blocked bool) (Sender, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE telegram_users SET is_blocked = $2 WHERE id = $1 RETURNING `+senderColumns, id, blocked)
	return scanSender(row)
}

func scanSender(row pgx.Row) (Sender, error) {
	var sender Sender
	err := row.Scan(&sender.ID, &sender.Username, &sender.FirstName, &sender.LastName,
		&sender.PhotoURL, &sender.CountryCode, &sender.IsBlocked, &sender.CreatedAt)
	if err != nil {
		return Sender{}, err
	}
	return sender, nil
}
