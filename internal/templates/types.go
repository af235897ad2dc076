// Package templates manages reusable operator reply snippets.
package templates

import "time"

// Template is a canned reply with usage tracking.
type Template struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Category   string    `json:"category,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	UsageCount int32     `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateRequest is the input for creating a template.
type CreateRequest struct {
	Title    string `json:"title" validate:"required"`
	Content  string `json:"content" validate:"required"`
	Category string `json:"category"`
}

// UpdateRequest is the input for updating a template. Nil fields are left
// unchanged.
type UpdateRequest struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	Category *string `json:"category"`
}
