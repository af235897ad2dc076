package senders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "@alice", Sender{Username: "alice", FirstName: "Alice"}.DisplayName())
	assert.Equal(t, "Alice Smith", Sender{FirstName: "Alice", LastName: "Smith"}.DisplayName())
	assert.Equal(t, "Alice", Sender{FirstName: "Alice"}.DisplayName())
	assert.Equal(t, "", Sender{}.DisplayName())
}

func TestCountryCodeFromLanguageTag(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"en-US", "US"},
		{"pt-BR", "BR"},
		{"ru", "RU"},
		{"de", "DE"},
		{"zh_CN", "CN"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CountryCodeFromLanguageTag(tt.tag), "tag %q", tt.tag)
	}
}
