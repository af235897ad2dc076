// Package senders manages external messaging identities (telegram users).
package senders

import (
	"strings"
	"time"
)

// Sender is a telegram-side identity. The id is assigned by the transport
// and stable for the account's lifetime.
type Sender struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username,omitempty"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	CountryCode string    `json:"country_code,omitempty"`
	IsBlocked   bool      `json:"is_blocked"`
	CreatedAt   time.Time `json:"created_at"`
}

// FullName joins the name parts.
func (s Sender) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(s.FirstName) + " " + strings.TrimSpace(s.LastName))
}

// DisplayName prefers the @username handle, falling back to the full name.
func (s Sender) DisplayName() string {
	if strings.TrimSpace(s.Username) != "" {
		return "@" + strings.TrimSpace(s.Username)
	}
	return s.FullName()
}

// Profile is the mutable identity snapshot taken from an inbound update.
type Profile struct {
	Username    string
	FirstName   string
	LastName    string
	CountryCode string
}

// CountryCodeFromLanguageTag derives a locale hint from a BCP-47-ish language
// tag: the region suffix when present ("en-US" -> "US"), otherwise the
// primary subtag uppercased ("ru" -> "RU").
func CountryCodeFromLanguageTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	if idx := strings.LastIndexAny(tag, "-_"); idx >= 0 && idx+1 < len(tag) {
		return strings.ToUpper(tag[idx+1:])
	}
	return strings.ToUpper(tag)
}
