package templates

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flashbackhq/flashback/internal/db"
)

const templateColumns = `id, title, content, category, user_id, usage_count, created_at`

type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "templates")),
	}
}

// List returns all templates, most used first.
func (s *Service) List(ctx context.Context) ([]Template, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+templateColumns+` FROM message_templates ORDER BY usage_count DESC, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]Template, 0)
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, tpl)
	}
	return list, rows.Err()
}

func (s *Service) Get(ctx context.Context, id string) (Template, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Template{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM message_templates WHERE id = $1`, pgID)
	return scanTemplate(row)
}

func (s *Service) Create(ctx context.Context, req CreateRequest, userID string) (Template, error) {
	var pgUserID pgtype.UUID
	if userID != "" {
		parsed, err := db.ParseUUID(userID)
		if err != nil {
			return Template{}, err
		}
		pgUserID = parsed
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO message_templates (id, title, content, category, user_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING `+templateColumns,
		db.NewUUID(), req.Title, req.Content, req.Category, pgUserID)
	return scanTemplate(row)
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (Template, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Template{}, err
	}
	if req.Title != nil {
		current.Title = *req.Title
	}
	if req.Content != nil {
		current.Content = *req.Content
	}
	if req.Category != nil {
		current.Category = *req.Category
	}

	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Template{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE message_templates SET title = $2, content = $3, category = NULLIF($4, '')
		WHERE id = $1
		RETURNING `+templateColumns,
		pgID, current.Title, current.Content, current.Category)
	return scanTemplate(row)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM message_templates WHERE id = $1`, pgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// IncrementUsage bumps the usage counter when an operator applies a template.
func (s *Service) IncrementUsage(ctx context.Context, id string) (Template, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Template{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE message_templates SET usage_count = usage_count + 1
		WHERE id = $1
		RETURNING `+templateColumns, pgID)
	return scanTemplate(row)
}

func scanTemplate(row pgx.Row) (Template, error) {
	var (
		tpl      Template
		id       pgtype.UUID
		category pgtype.Text
		userID   pgtype.UUID
	)
	err := row.Scan(&id, &tpl.Title, &tpl.Content, &category, &userID, &tpl.UsageCount, &tpl.CreatedAt)
	if err != nil {
		return Template{}, err
	}
	tpl.ID = db.UUIDString(id)
	tpl.Category = category.String
	tpl.UserID = db.UUIDString(userID)
	return tpl, nil
}
