package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/flashbackhq/flashback/internal/auth"
	"github.com/flashbackhq/flashback/internal/bot"
	"github.com/flashbackhq/flashback/internal/settings"
	"github.com/flashbackhq/flashback/internal/users"
)

type AdminHandler struct {
	users    *users.Service
	settings *settings.Service
	manager  *bot.Manager
	logger   *slog.Logger
}

func NewAdminHandler(log *slog.Logger, userService *users.Service, settingsService *settings.Service, manager *bot.Manager) *AdminHandler {
	return &AdminHandler{
		users:    userService,
		settings: settingsService,
		manager:  manager,
		logger:   log.With(slog.String("handler", "admin")),
	}
}

func (h *AdminHandler) Register(e *echo.Echo) {
	group := e.Group("/api/admin")
	group.GET("/users", h.ListUsers)
	group.POST("/users", h.CreateUser)
	group.PATCH("/users/:id", h.UpdateUser)
	group.DELETE("/users/:id", h.DeleteUser)
	group.POST("/users/:id/toggle-active", h.ToggleActive)
	group.GET("/settings", h.GetSettings)
	group.PUT("/settings", h.UpdateSettings)
}

// requireAdmin loads the caller record and rejects non-admins. The role is
// checked against the database, not the token, so demotions apply instantly.
func (h *AdminHandler) requireAdmin(c echo.Context) (users.User, error) {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return users.User{}, err
	}
	caller, err := h.users.GetByID(c.Request().Context(), userID)
	if err != nil {
		return users.User{}, serviceError(err, "user")
	}
	if !caller.IsAdmin {
		return users.User{}, echo.NewHTTPError(http.StatusForbidden, "admin role required")
	}
	return caller, nil
}

func (h *AdminHandler) ListUsers(c echo.Context) error {
	if _, err := h.requireAdmin(c); err != nil {
		return err
	}
	list, err := h.users.List(c.Request().Context())
	if err != nil {
		return serviceError(err, "users")
	}
	now := time.Now()
	responses := make([]users.Response, 0, len(list))
	for _, user := range list {
		responses = append(responses, user.ToResponse(now))
	}
	return c.JSON(http.StatusOK, responses)
}

func (h *AdminHandler) CreateUser(c echo.Context) error {
	if _, err := h.requireAdmin(c); err != nil {
		return err
	}
	var req users.CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	user, err := h.users.Create(c.Request().Context(), req)
	if err != nil {
		return serviceError(err, "user")
	}
	h.logger.Info("user created", slog.String("user_id", user.ID))
	return c.JSON(http.StatusCreated, user.ToResponse(time.Now()))
}

func (h *AdminHandler) UpdateUser(c echo.Context) error {
	if _, err := h.requireAdmin(c); err != nil {
		return err
	}
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	var req users.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	user, err := h.users.Update(c.Request().Context(), id, req)
	if err != nil {
		return serviceError(err, "user")
	}
	return c.JSON(http.StatusOK, user.ToResponse(time.Now()))
}

func (h *AdminHandler) DeleteUser(c echo.Context) error {
	caller, err := h.requireAdmin(c)
	if err != nil {
		return err
	}
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	if id == caller.ID {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot delete your own account")
	}
	if err := h.users.Delete(c.Request().Context(), id); err != nil {
		return serviceError(err, "user")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) ToggleActive(c echo.Context) error {
	caller, err := h.requireAdmin(c)
	if err != nil {
		return err
	}
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	if id == caller.ID {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot deactivate your own account")
	}
	user, err := h.users.GetByID(c.Request().Context(), id)
	if err != nil {
		return serviceError(err, "user")
	}
	updated, err := h.users.SetActive(c.Request().Context(), id, !user.IsActive)
	if err != nil {
		return serviceError(err, "user")
	}
	return c.JSON(http.StatusOK, updated.ToResponse(time.Now()))
}

// GetSettings returns system settings with the bot token masked.
func (h *AdminHandler) GetSettings(c echo.Context) error {
	if _, err := h.requireAdmin(c); err != nil {
		return err
	}
	token, err := h.settings.BotToken(c.Request().Context())
	if err != nil {
		return serviceError(err, "settings")
	}
	return c.JSON(http.StatusOK, settings.ResponseFromToken(token))
}

// UpdateSettings stores a new bot token and hot-restarts the transport in the
// background so the request returns immediately.
func (h *AdminHandler) UpdateSettings(c echo.Context) error {
	if _, err := h.requireAdmin(c); err != nil {
		return err
	}
	var req settings.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.TelegramBotToken == nil {
		token, err := h.settings.BotToken(c.Request().Context())
		if err != nil {
			return serviceError(err, "settings")
		}
		return c.JSON(http.StatusOK, settings.ResponseFromToken(token))
	}

	token := *req.TelegramBotToken
	if err := h.settings.Set(c.Request().Context(), settings.KeyTelegramBotToken, token); err != nil {
		return serviceError(err, "settings")
	}

	if token == "" {
		h.manager.Stop()
	} else {
		go func() {
			if err := h.manager.Restart(context.Background(), token); err != nil {
				h.logger.Error("restart bot with new token", slog.Any("error", err))
			}
		}()
	}

	h.logger.Info("bot token updated")
	return c.JSON(http.StatusOK, settings.ResponseFromToken(token))
}
