package messages

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flashbackhq/flashback/internal/db"
)

const messageColumns = `id, conversation_id, from_user, content, read, telegram_message_id, media_type, media_url, file_name, file_size, mime_type, duration, created_at`

const defaultSearchLimit = 50

// ErrNotOperatorMessage rejects edits of sender-authored messages.
var ErrNotOperatorMessage = errors.New("only operator messages can be edited")

type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "messages")),
	}
}

func (s *Service) Create(ctx context.Context, params CreateParams) (Message, error) {
	pgConvID, err := db.ParseUUID(params.ConversationID)
	if err != nil {
		return Message{}, err
	}
	tgMessageID := pgtype.Int8{Int64: params.TelegramMessageID, Valid: params.TelegramMessageID != 0}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, from_user, content, read, telegram_message_id,
		                      media_type, media_url, file_name, file_size, mime_type, duration)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+messageColumns,
		db.NewUUID(), pgConvID, params.FromUser, params.Content, params.Read, tgMessageID,
		params.Media.Type, params.Media.URL, params.Media.FileName, params.Media.FileSize,
		params.Media.MimeType, params.Media.Duration)
	return scanMessage(row)
}

func (s *Service) Get(ctx context.Context, id string) (Message, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Message{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, pgID)
	return scanMessage(row)
}

func (s *Service) ListByConversation(ctx context.Context, conversationID string) ([]Message, error) {
	pgID, err := db.ParseUUID(conversationID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 ORDER BY created_at`, pgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Search finds messages by content substring, newest first.
func (s *Service) Search(ctx context.Context, filter SearchFilter) ([]Message, error) {
	query := strings.TrimSpace(filter.Query)
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var (
		rows pgx.Rows
		err  error
	)
	if filter.ConversationID != "" {
		pgConvID, parseErr := db.ParseUUID(filter.ConversationID)
		if parseErr != nil {
			return nil, parseErr
		}
		rows, err = s.pool.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE content ILIKE $1 AND conversation_id = $2
			ORDER BY created_at DESC
			LIMIT $3`, "%"+query+"%", pgConvID, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE content ILIKE $1
			ORDER BY created_at DESC
			LIMIT $2`, "%"+query+"%", limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MarkRead acknowledges a single message.
func (s *Service) MarkRead(ctx context.Context, id string) (Message, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Message{}, err
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE messages SET read = TRUE WHERE id = $1 RETURNING `+messageColumns, pgID)
	return scanMessage(row)
}

// Edit replaces an operator message's content, recording the previous text in
// the audit trail. Sender-authored messages are immutable.
func (s *Service) Edit(ctx context.Context, id, newContent, editorUserID, reason string) (Message, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Message{}, err
	}
	if !current.FromUser {
		return Message{}, ErrNotOperatorMessage
	}

	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Message{}, err
	}
	pgEditorID, err := db.ParseUUID(editorUserID)
	if err != nil {
		return Message{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Message{}, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO message_edits (id, message_id, previous_content, edited_by_user_id, edit_reason)
		VALUES ($1, $2, $3, $4, $5)`,
		db.NewUUID(), pgID, current.Content, pgEditorID, reason)
	if err != nil {
		return Message{}, err
	}

	row := tx.QueryRow(ctx,
		`UPDATE messages SET content = $2 WHERE id = $1 RETURNING `+messageColumns, pgID, newContent)
	updated, err := scanMessage(row)
	if err != nil {
		return Message{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Message{}, err
	}
	return updated, nil
}

// History lists a message's edit records, oldest first.
func (s *Service) History(ctx context.Context, messageID string) ([]Edit, error) {
	pgID, err := db.ParseUUID(messageID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, previous_content, edited_by_user_id, edit_reason, created_at
		FROM message_edits
		WHERE message_id = $1
		ORDER BY created_at`, pgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	edits := make([]Edit, 0)
	for rows.Next() {
		var (
			edit     Edit
			id       pgtype.UUID
			msgID    pgtype.UUID
			editorID pgtype.UUID
		)
		if err := rows.Scan(&id, &msgID, &edit.PreviousContent, &editorID, &edit.EditReason, &edit.CreatedAt); err != nil {
			return nil, err
		}
		edit.ID = db.UUIDString(id)
		edit.MessageID = db.UUIDString(msgID)
		edit.EditedByUserID = db.UUIDString(editorID)
		edits = append(edits, edit)
	}
	return edits, rows.Err()
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		msg         Message
		id          pgtype.UUID
		convID      pgtype.UUID
		tgMessageID pgtype.Int8
	)
	err := row.Scan(&id, &convID, &msg.FromUser, &msg.Content, &msg.Read, &tgMessageID,
		&msg.Media.Type, &msg.Media.URL, &msg.Media.FileName, &msg.Media.FileSize,
		&msg.Media.MimeType, &msg.Media.Duration, &msg.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	msg.ID = db.UUIDString(id)
	msg.ConversationID = db.UUIDString(convID)
	if tgMessageID.Valid {
		msg.TelegramMessageID = tgMessageID.Int64
	}
	return msg, nil
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	list := make([]Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, msg)
	}
	return list, rows.Err()
}
