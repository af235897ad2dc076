package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseFromToken(t *testing.T) {
	t.Run("unset", func(t *testing.T) {
		resp := ResponseFromToken("")
		assert.False(t, resp.TelegramBotTokenSet)
		assert.Empty(t, resp.TelegramBotTokenPreview)
	})

	t.Run("short token is fully masked", func(t *testing.T) {
		resp := ResponseFromToken("abc")
		assert.True(t, resp.TelegramBotTokenSet)
		assert.Equal(t, "***", resp.TelegramBotTokenPreview)
	})

	t.Run("long token shows edges only", func(t *testing.T) {
		resp := ResponseFromToken("123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw")
		assert.True(t, resp.TelegramBotTokenSet)
		assert.Equal(t, "1234...Dsaw", resp.TelegramBotTokenPreview)
	})
}
