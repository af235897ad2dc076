package users

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseSettings(t *testing.T) {
	t.Run("empty blob uses defaults", func(t *testing.T) {
		settings := ParseSettings(nil)
		assert.Equal(t, DefaultSettings(), settings)
	})

	t.Run("malformed blob uses defaults", func(t *testing.T) {
		settings := ParseSettings([]byte(`{not json`))
		assert.Equal(t, DefaultSettings(), settings)
	})

	t.Run("stored values win", func(t *testing.T) {
		settings := ParseSettings([]byte(`{"theme":"dark","language":"ru","notifications_enabled":false,"notification_sound_enabled":true,"telegram_notifications_user_id":42}`))
		assert.Equal(t, "dark", settings.Theme)
		assert.Equal(t, "ru", settings.Language)
		assert.False(t, settings.NotificationsEnabled)
		assert.Equal(t, int64(42), settings.TelegramNotificationsUserID)
	})

	t.Run("missing strings are defaulted", func(t *testing.T) {
		settings := ParseSettings([]byte(`{"notifications_enabled":true}`))
		assert.Equal(t, "light", settings.Theme)
		assert.Equal(t, "en", settings.Language)
	})
}

func TestIsOnline(t *testing.T) {
	now := time.Now()

	assert.False(t, User{}.IsOnline(now), "never seen")
	assert.True(t, User{LastSeenAt: now.Add(-time.Minute)}.IsOnline(now))
	assert.False(t, User{LastSeenAt: now.Add(-6 * time.Minute)}.IsOnline(now))
}

func TestHasOperatorAccess(t *testing.T) {
	assert.True(t, User{IsOperator: true}.HasOperatorAccess())
	assert.True(t, User{IsAdmin: true}.HasOperatorAccess())
	assert.False(t, User{}.HasOperatorAccess())
}
