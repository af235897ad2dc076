package l10n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForCountry(t *testing.T) {
	bundle, err := Load()
	require.NoError(t, err)

	ru := bundle.ForCountry("RU")
	assert.Contains(t, ru.Bot.Welcome, "Здравствуйте")

	en := bundle.ForCountry("US")
	assert.Contains(t, en.Bot.Welcome, "Hello")

	fallback := bundle.ForCountry("")
	assert.Equal(t, en, fallback)
}

func TestFormat(t *testing.T) {
	result := Format("Operator {operator_name} has joined.", map[string]string{
		"operator_name": "John",
	})
	assert.Equal(t, "Operator John has joined.", result)

	unchanged := Format("No placeholders here.", map[string]string{"x": "y"})
	assert.Equal(t, "No placeholders here.", unchanged)
}
