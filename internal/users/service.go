package users

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/flashbackhq/flashback/internal/db"
)

const userColumns = `id, email, name, password_hash, is_operator, is_admin, is_active, last_seen_at, settings, created_at`

type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "users")),
	}
}

func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return User{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, pgID)
	return scanUser(row)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
	return scanUser(row)
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ListActiveOperators returns active accounts with desk access, used by the
// ingestion pipeline to deliver personal bot notifications.
func (s *Service) ListActiveOperators(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE is_active AND (is_operator OR is_admin)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&count)
	return count, err
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	settings, err := json.Marshal(DefaultSettings())
	if err != nil {
		return User{}, err
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, name, password_hash, is_operator, is_admin, is_active, settings)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		 RETURNING `+userColumns,
		db.NewUUID(), strings.TrimSpace(req.Email), strings.TrimSpace(req.Name), string(hashed), req.IsOperator, req.IsAdmin, settings)
	return scanUser(row)
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (User, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if req.Email != nil && strings.TrimSpace(*req.Email) != "" {
		current.Email = strings.TrimSpace(*req.Email)
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		current.Name = strings.TrimSpace(*req.Name)
	}
	if req.Password != nil && *req.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return User{}, fmt.Errorf("hash password: %w", err)
		}
		current.PasswordHash = string(hashed)
	}
	if req.IsOperator != nil {
		current.IsOperator = *req.IsOperator
	}
	if req.IsAdmin != nil {
		current.IsAdmin = *req.IsAdmin
	}
	if req.IsActive != nil {
		current.IsActive = *req.IsActive
	}

	pgID, err := db.ParseUUID(id)
	if err != nil {
		return User{}, err
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE users
		 SET email = $2, name = $3, password_hash = $4, is_operator = $5, is_admin = $6, is_active = $7
		 WHERE id = $1
		 RETURNING `+userColumns,
		pgID, current.Email, current.Name, current.PasswordHash, current.IsOperator, current.IsAdmin, current.IsActive)
	return scanUser(row)
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) (User, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return User{}, err
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE users SET is_active = $2 WHERE id = $1 RETURNING `+userColumns, pgID, active)
	return scanUser(row)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, pgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// VerifyPassword checks a plaintext password against the stored hash.
func (s *Service) VerifyPassword(user User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// ChangePassword verifies the current password before setting a new one.
func (s *Service) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.VerifyPassword(user, currentPassword) {
		return ErrWrongPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, pgID, string(hashed))
	return err
}

// UpdateSettings replaces the settings blob.
func (s *Service) UpdateSettings(ctx context.Context, id string, settings Settings) (User, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return User{}, err
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return User{}, err
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE users SET settings = $2 WHERE id = $1 RETURNING `+userColumns, pgID, raw)
	return scanUser(row)
}

// Heartbeat records operator activity for the presence window.
func (s *Service) Heartbeat(ctx context.Context, id string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `UPDATE users SET last_seen_at = now() WHERE id = $1`, pgID)
	return err
}

// Stats aggregates a single operator's workload.
func (s *Service) Stats(ctx context.Context, id string) (Stats, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	err = s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM conversations WHERE user_id = $1),
			(SELECT count(*) FROM conversations WHERE user_id = $1 AND status = 'active'),
			(SELECT count(*) FROM messages m JOIN conversations c ON c.id = m.conversation_id
			  WHERE c.user_id = $1 AND m.from_user)
	`, pgID).Scan(&stats.ConversationsHandled, &stats.ActiveConversations, &stats.MessagesSent)
	return stats, err
}

// ErrWrongPassword indicates a password change with a bad current password.
var ErrWrongPassword = fmt.Errorf("current password does not match")

func scanUser(row pgx.Row) (User, error) {
	var (
		user       User
		id         pgtype.UUID
		lastSeenAt pgtype.Timestamptz
		settings   []byte
	)
	err := row.Scan(&id, &user.Email, &user.Name, &user.PasswordHash,
		&user.IsOperator, &user.IsAdmin, &user.IsActive, &lastSeenAt, &settings, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	user.ID = db.UUIDString(id)
	if lastSeenAt.Valid {
		user.LastSeenAt = lastSeenAt.Time
	}
	user.Settings = ParseSettings(settings)
	return user, nil
}

func scanUsers(rows pgx.Rows) ([]User, error) {
	var list []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, user)
	}
	return list, rows.Err()
}
