package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/flashbackhq/flashback/internal/bot"
	"github.com/flashbackhq/flashback/internal/senders"
)

type TelegramUsersHandler struct {
	senders *senders.Service
	manager *bot.Manager
	logger  *slog.Logger
}

func NewTelegramUsersHandler(log *slog.Logger, senderService *senders.Service, manager *bot.Manager) *TelegramUsersHandler {
	return &TelegramUsersHandler{
		senders: senderService,
		manager: manager,
		logger:  log.With(slog.String("handler", "telegram_users")),
	}
}

func (h *TelegramUsersHandler) Register(e *echo.Echo) {
	group := e.Group("/api/telegram-users")
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.POST("/:id/block", h.ToggleBlock)

	// Public: avatars are loaded by img tags, which cannot attach the
	// bearer token.
	e.GET("/api/telegram-photo/:user_id", h.Photo)
}

func (h *TelegramUsersHandler) List(c echo.Context) error {
	list, err := h.senders.List(c.Request().Context())
	if err != nil {
		return serviceError(err, "telegram users")
	}
	return c.JSON(http.StatusOK, list)
}

func (h *TelegramUsersHandler) Get(c echo.Context) error {
	id, err := h.senderID(c, "id")
	if err != nil {
		return err
	}
	sender, err := h.senders.Get(c.Request().Context(), id)
	if err != nil {
		return serviceError(err, "telegram user")
	}
	return c.JSON(http.StatusOK, sender)
}

// ToggleBlock flips the blocked flag. Messages to a blocked sender are
// rejected before reaching the transport.
func (h *TelegramUsersHandler) ToggleBlock(c echo.Context) error {
	id, err := h.senderID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	sender, err := h.senders.Get(ctx, id)
	if err != nil {
		return serviceError(err, "telegram user")
	}
	updated, err := h.senders.SetBlocked(ctx, id, !sender.IsBlocked)
	if err != nil {
		return serviceError(err, "telegram user")
	}
	return c.JSON(http.StatusOK, updated)
}

// Photo redirects to the sender's avatar on the telegram file API, fetching
// and caching the URL on first access.
func (h *TelegramUsersHandler) Photo(c echo.Context) error {
	id, err := h.senderID(c, "user_id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	sender, err := h.senders.Get(ctx, id)
	if err != nil {
		return serviceError(err, "telegram user")
	}
	if sender.PhotoURL != "" {
		return c.Redirect(http.StatusFound, sender.PhotoURL)
	}

	photoURL, err := h.manager.AvatarURL(id)
	if err != nil || photoURL == "" {
		return echo.NewHTTPError(http.StatusNotFound, "photo not found")
	}
	if err := h.senders.SetPhotoURL(ctx, id, photoURL); err != nil {
		h.logger.Warn("cache sender photo", slog.Int64("telegram_user_id", id), slog.Any("error", err))
	}
	return c.Redirect(http.StatusFound, photoURL)
}

func (h *TelegramUsersHandler) senderID(c echo.Context, param string) (int64, error) {
	raw, err := requireParam(c, param)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, param+" must be numeric")
	}
	return id, nil
}
