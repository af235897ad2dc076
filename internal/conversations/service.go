package conversations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flashbackhq/flashback/internal/db"
)

const conversationColumns = `id, telegram_user_id, user_id, status, last_message_at, unread_count, created_at`

const uniqueViolation = "23505"

const defaultListLimit = 20

type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	// Per-sender locks serialize lookup-or-create so two near-simultaneous
	// updates from a new sender cannot both open a conversation. The partial
	// unique index backs this up across processes.
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "conversations")),
		locks:  make(map[int64]*sync.Mutex),
	}
}

// Resolve finds the sender's open conversation or opens a new one in
// waiting state. The returned flag reports whether it was newly created so
// callers can run first-contact side effects exactly once.
func (s *Service) Resolve(ctx context.Context, telegramUserID int64) (Conversation, bool, error) {
	lock := s.lockFor(telegramUserID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := s.findOpen(ctx, telegramUserID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, false, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, telegram_user_id, status, last_message_at, unread_count)
		VALUES ($1, $2, 'waiting', now(), 0)
		RETURNING `+conversationColumns,
		db.NewUUID(), telegramUserID)
	conv, err = scanConversation(row)
	if err == nil {
		return conv, true, nil
	}

	// Lost the cross-process race on the open-conversation index; the other
	// writer's row is the one to reuse.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		conv, findErr := s.findOpen(ctx, telegramUserID)
		if findErr != nil {
			return Conversation{}, false, findErr
		}
		return conv, false, nil
	}
	return Conversation{}, false, err
}

func (s *Service) Get(ctx context.Context, id string) (Conversation, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Conversation{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, pgID)
	return scanConversation(row)
}

// List returns conversations joined with their senders, filtered and
// paginated, newest activity first. Closed conversations are excluded
// unless asked for explicitly.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	where := []string{"TRUE"}
	args := []any{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("c.status = $%d", len(args)))
	} else if !filter.IncludeClosed {
		where = append(where, "c.status <> 'closed'")
	}
	if filter.UserID != "" {
		pgID, err := db.ParseUUID(filter.UserID)
		if err != nil {
			return ListResult{}, err
		}
		args = append(args, pgID)
		where = append(where, fmt.Sprintf("c.user_id = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		where = append(where, fmt.Sprintf(
			"(t.first_name ILIKE $%[1]d OR t.last_name ILIKE $%[1]d OR t.username ILIKE $%[1]d)", len(args)))
	}

	clause := strings.Join(where, " AND ")

	var total int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM conversations c
		JOIN telegram_users t ON t.id = c.telegram_user_id
		WHERE `+clause, args...).Scan(&total)
	if err != nil {
		return ListResult{}, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT c.id, c.telegram_user_id, c.user_id, c.status, c.last_message_at, c.unread_count, c.created_at,
		       t.id, t.username, t.first_name, t.last_name, t.photo_url, t.country_code, t.is_blocked, t.created_at
		FROM conversations c
		JOIN telegram_users t ON t.id = c.telegram_user_id
		WHERE %s
		ORDER BY c.last_message_at DESC
		LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return ListResult{}, err
	}
	defer rows.Close()

	list := make([]WithSender, 0)
	for rows.Next() {
		var (
			item   WithSender
			id     pgtype.UUID
			userID pgtype.UUID
		)
		err := rows.Scan(&id, &item.TelegramUserID, &userID, &item.Status, &item.LastMessageAt, &item.UnreadCount, &item.CreatedAt,
			&item.TelegramUser.ID, &item.TelegramUser.Username, &item.TelegramUser.FirstName, &item.TelegramUser.LastName,
			&item.TelegramUser.PhotoURL, &item.TelegramUser.CountryCode, &item.TelegramUser.IsBlocked, &item.TelegramUser.CreatedAt)
		if err != nil {
			return ListResult{}, err
		}
		item.ID = db.UUIDString(id)
		item.UserID = db.UUIDString(userID)
		list = append(list, item)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, err
	}
	return ListResult{Conversations: list, Total: total}, nil
}

// Assign hands the conversation to an operator and activates it.
func (s *Service) Assign(ctx context.Context, id, userID string) (Conversation, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Conversation{}, err
	}
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return Conversation{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE conversations SET user_id = $2, status = 'active'
		WHERE id = $1
		RETURNING `+conversationColumns, pgID, pgUserID)
	return scanConversation(row)
}

// UpdateStatus moves the conversation to the given state.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (Conversation, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Conversation{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE conversations SET status = $2 WHERE id = $1 RETURNING `+conversationColumns, pgID, string(status))
	return scanConversation(row)
}

// Close is terminal: a closed conversation is never reopened, a later
// message from the sender starts a fresh one.
func (s *Service) Close(ctx context.Context, id string) (Conversation, error) {
	return s.UpdateStatus(ctx, id, StatusClosed)
}

// MarkRead acknowledges all sender messages in the conversation.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	batch := &pgx.Batch{}
	batch.Queue(`UPDATE conversations SET unread_count = 0 WHERE id = $1`, pgID)
	batch.Queue(`UPDATE messages SET read = TRUE WHERE conversation_id = $1 AND NOT from_user`, pgID)
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *Service) Delete(ctx context.Context, id string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, pgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Touch records inbound activity: bumps last_message_at and the unread
// counter.
func (s *Service) Touch(ctx context.Context, id string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE conversations SET last_message_at = now(), unread_count = unread_count + 1 WHERE id = $1`, pgID)
	return err
}

// TouchOutbound records an operator reply: bumps last_message_at and resets
// the unread counter.
func (s *Service) TouchOutbound(ctx context.Context, id string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE conversations SET last_message_at = now(), unread_count = 0 WHERE id = $1`, pgID)
	return err
}

func (s *Service) findOpen(ctx context.Context, telegramUserID int64) (Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE telegram_user_id = $1 AND status <> 'closed'
		ORDER BY created_at
		LIMIT 1`, telegramUserID)
	return scanConversation(row)
}

func (s *Service) lockFor(telegramUserID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[telegramUserID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[telegramUserID] = lock
	}
	return lock
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var (
		conv   Conversation
		id     pgtype.UUID
		userID pgtype.UUID
	)
	err := row.Scan(&id, &conv.TelegramUserID, &userID, &conv.Status, &conv.LastMessageAt, &conv.UnreadCount, &conv.CreatedAt)
	if err != nil {
		return Conversation{}, err
	}
	conv.ID = db.UUIDString(id)
	conv.UserID = db.UUIDString(userID)
	return conv, nil
}
