package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flashbackhq/flashback/internal/bot"
)

type BotStatusHandler struct {
	manager *bot.Manager
	logger  *slog.Logger
}

func NewBotStatusHandler(log *slog.Logger, manager *bot.Manager) *BotStatusHandler {
	return &BotStatusHandler{
		manager: manager,
		logger:  log.With(slog.String("handler", "bot_status")),
	}
}

func (h *BotStatusHandler) Register(e *echo.Echo) {
	e.GET("/api/bot/status", h.Status)
}

func (h *BotStatusHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": string(h.manager.Status()),
	})
}
