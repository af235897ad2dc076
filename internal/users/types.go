// Package users manages operator and admin accounts.
package users

import (
	"encoding/json"
	"time"
)

// OnlineWindow is how recent a heartbeat must be for a user to count as online.
const OnlineWindow = 5 * time.Minute

// Settings is the typed view of the per-user settings blob. Parse failures
// fall back to defaults and are never fatal.
type Settings struct {
	Theme                       string `json:"theme"`
	Language                    string `json:"language"`
	NotificationsEnabled        bool   `json:"notifications_enabled"`
	NotificationSoundEnabled    bool   `json:"notification_sound_enabled"`
	TelegramNotificationsUserID int64  `json:"telegram_notifications_user_id,omitempty"`
}

// DefaultSettings returns the settings applied to new users and used when a
// stored blob cannot be parsed.
func DefaultSettings() Settings {
	return Settings{
		Theme:                    "light",
		Language:                 "en",
		NotificationsEnabled:     true,
		NotificationSoundEnabled: true,
	}
}

// ParseSettings decodes a stored settings blob, defaulting on failure.
func ParseSettings(raw []byte) Settings {
	settings := DefaultSettings()
	if len(raw) == 0 {
		return settings
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return DefaultSettings()
	}
	if settings.Theme == "" {
		settings.Theme = "light"
	}
	if settings.Language == "" {
		settings.Language = "en"
	}
	return settings
}

// User is an operator or admin account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsOperator   bool      `json:"is_operator"`
	IsAdmin      bool      `json:"is_admin"`
	IsActive     bool      `json:"is_active"`
	LastSeenAt   time.Time `json:"last_seen_at,omitzero"`
	Settings     Settings  `json:"settings"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasOperatorAccess reports whether the user may log into the desk at all.
func (u User) HasOperatorAccess() bool {
	return u.IsOperator || u.IsAdmin
}

// IsOnline reports whether the user's heartbeat is within the online window.
func (u User) IsOnline(now time.Time) bool {
	if u.LastSeenAt.IsZero() {
		return false
	}
	return now.Sub(u.LastSeenAt) < OnlineWindow
}

// Response is the public DTO for a user.
type Response struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	IsOperator bool      `json:"is_operator"`
	IsAdmin    bool      `json:"is_admin"`
	IsActive   bool      `json:"is_active"`
	IsOnline   bool      `json:"is_online"`
	LastSeenAt time.Time `json:"last_seen_at,omitzero"`
	Settings   Settings  `json:"settings"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToResponse converts a user to its public DTO.
func (u User) ToResponse(now time.Time) Response {
	return Response{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		IsOperator: u.IsOperator,
		IsAdmin:    u.IsAdmin,
		IsActive:   u.IsActive,
		IsOnline:   u.IsOnline(now),
		LastSeenAt: u.LastSeenAt,
		Settings:   u.Settings,
		CreatedAt:  u.CreatedAt,
	}
}

// CreateRequest is the admin input for creating a user.
type CreateRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name" validate:"required"`
	Password   string `json:"password" validate:"required,min=8"`
	IsOperator bool   `json:"is_operator"`
	IsAdmin    bool   `json:"is_admin"`
}

// UpdateRequest is the admin input for updating a user. Nil fields are
// left unchanged.
type UpdateRequest struct {
	Email      *string `json:"email" validate:"omitempty,email"`
	Name       *string `json:"name"`
	Password   *string `json:"password" validate:"omitempty,min=8"`
	IsOperator *bool   `json:"is_operator"`
	IsAdmin    *bool   `json:"is_admin"`
	IsActive   *bool   `json:"is_active"`
}

// Stats summarizes one operator's workload.
type Stats struct {
	ConversationsHandled int64 `json:"conversations_handled"`
	ActiveConversations  int64 `json:"active_conversations"`
	MessagesSent         int64 `json:"messages_sent"`
}
