// Package analytics computes aggregate statistics over conversations and
// messages with SQL aggregates.
package analytics

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flashbackhq/flashback/internal/db"
)

// OverallStats summarizes the whole desk.
type OverallStats struct {
	TotalConversations        int64    `json:"total_conversations"`
	ActiveConversations       int64    `json:"active_conversations"`
	ClosedConversations       int64    `json:"closed_conversations"`
	TotalMessages             int64    `json:"total_messages"`
	TotalTelegramUsers        int64    `json:"total_telegram_users"`
	AvgResponseTimeSeconds    *float64 `json:"average_response_time_seconds"`
	MedianResponseTimeSeconds *float64 `json:"median_response_time_seconds,omitempty"`
}

// UserStats summarizes one operator.
type UserStats struct {
	UserID                 string   `json:"user_id"`
	UserEmail              string   `json:"user_email"`
	ConversationsHandled   int64    `json:"conversations_handled"`
	MessagesSent           int64    `json:"messages_sent"`
	AvgResponseTimeSeconds *float64 `json:"average_response_time_seconds"`
}

// VolumePoint is one bucket of the message-volume series.
type VolumePoint struct {
	Bucket   string `json:"bucket"`
	Inbound  int64  `json:"inbound"`
	Outbound int64  `json:"outbound"`
}

// ResponseTimes is the distribution of first-reply latency.
type ResponseTimes struct {
	AverageSeconds *float64 `json:"average_seconds"`
	MedianSeconds  *float64 `json:"median_seconds"`
	P90Seconds     *float64 `json:"p90_seconds"`
}

type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "analytics")),
	}
}

// firstReplySeconds measures, per conversation, the gap between the first
// sender message and the first operator reply after it.
const firstReplySeconds = `
	SELECT inb.conversation_id,
	       EXTRACT(EPOCH FROM (op.first_reply - inb.first_message)) AS seconds
	FROM (
		SELECT conversation_id, min(created_at) AS first_message
		FROM messages WHERE NOT from_user GROUP BY conversation_id
	) inb
	JOIN (
		SELECT conversation_id, min(created_at) AS first_reply
		FROM messages WHERE from_user GROUP BY conversation_id
	) op ON op.conversation_id = inb.conversation_id
	WHERE op.first_reply >= inb.first_message
`

func (s *Service) Overall(ctx context.Context) (OverallStats, error) {
	var stats OverallStats
	var avg pgtype.Float8
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM conversations),
			(SELECT count(*) FROM conversations WHERE status IN ('waiting', 'active')),
			(SELECT count(*) FROM conversations WHERE status = 'closed'),
			(SELECT count(*) FROM messages),
			(SELECT count(*) FROM telegram_users),
			(SELECT avg(seconds) FROM (`+firstReplySeconds+`) r)
	`).Scan(&stats.TotalConversations, &stats.ActiveConversations, &stats.ClosedConversations,
		&stats.TotalMessages, &stats.TotalTelegramUsers, &avg)
	if err != nil {
		return OverallStats{}, err
	}
	if avg.Valid {
		stats.AvgResponseTimeSeconds = &avg.Float64
	}
	return stats, nil
}

func (s *Service) PerUser(ctx context.Context) ([]UserStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.email,
			(SELECT count(*) FROM conversations c WHERE c.user_id = u.id),
			(SELECT count(*) FROM messages m
			   JOIN conversations c ON c.id = m.conversation_id
			  WHERE c.user_id = u.id AND m.from_user),
			(SELECT avg(r.seconds) FROM (`+firstReplySeconds+`) r
			   JOIN conversations c ON c.id = r.conversation_id
			  WHERE c.user_id = u.id)
		FROM users u
		WHERE u.is_operator OR u.is_admin
		ORDER BY u.email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]UserStats, 0)
	for rows.Next() {
		var (
			stats UserStats
			id    pgtype.UUID
			avg   pgtype.Float8
		)
		if err := rows.Scan(&id, &stats.UserEmail, &stats.ConversationsHandled, &stats.MessagesSent, &avg); err != nil {
			return nil, err
		}
		stats.UserID = db.UUIDString(id)
		if avg.Valid {
			stats.AvgResponseTimeSeconds = &avg.Float64
		}
		list = append(list, stats)
	}
	return list, rows.Err()
}

func (s *Service) ResponseTimes(ctx context.Context) (ResponseTimes, error) {
	var result ResponseTimes
	var avg, median, p90 pgtype.Float8
	err := s.pool.QueryRow(ctx, `
		SELECT avg(seconds),
		       percentile_cont(0.5) WITHIN GROUP (ORDER BY seconds),
		       percentile_cont(0.9) WITHIN GROUP (ORDER BY seconds)
		FROM (`+firstReplySeconds+`) r`).Scan(&avg, &median, &p90)
	if err != nil {
		return ResponseTimes{}, err
	}
	if avg.Valid {
		result.AverageSeconds = &avg.Float64
	}
	if median.Valid {
		result.MedianSeconds = &median.Float64
	}
	if p90.Valid {
		result.P90Seconds = &p90.Float64
	}
	return result, nil
}

// MessageVolume buckets the last N days of messages by hour.
func (s *Service) MessageVolume(ctx context.Context, days int) ([]VolumePoint, error) {
	if days <= 0 {
		days = 7
	}
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(date_trunc('hour', created_at), 'YYYY-MM-DD"T"HH24:00:00"Z"'),
		       count(*) FILTER (WHERE NOT from_user),
		       count(*) FILTER (WHERE from_user)
		FROM messages
		WHERE created_at >= now() - make_interval(days => $1)
		GROUP BY 1
		ORDER BY 1`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	series := make([]VolumePoint, 0)
	for rows.Next() {
		var point VolumePoint
		if err := rows.Scan(&point.Bucket, &point.Inbound, &point.Outbound); err != nil {
			return nil, err
		}
		series = append(series, point)
	}
	return series, rows.Err()
}
