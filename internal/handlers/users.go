package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/flashbackhq/flashback/internal/auth"
	"github.com/flashbackhq/flashback/internal/users"
)

type UsersHandler struct {
	users    *users.Service
	presence *users.PresenceSweeper
	logger   *slog.Logger
}

func NewUsersHandler(log *slog.Logger, userService *users.Service, presence *users.PresenceSweeper) *UsersHandler {
	return &UsersHandler{
		users:    userService,
		presence: presence,
		logger:   log.With(slog.String("handler", "users")),
	}
}

func (h *UsersHandler) Register(e *echo.Echo) {
	group := e.Group("/api/users")
	group.GET("/me", h.GetMe)
	group.PATCH("/me", h.UpdateMe)
	group.POST("/status", h.Heartbeat)
	group.PUT("/password", h.ChangePassword)
	group.PUT("/settings", h.UpdateSettings)
	group.GET("/stats", h.Stats)
}

func (h *UsersHandler) GetMe(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	user, err := h.users.GetByID(c.Request().Context(), userID)
	if err != nil {
		return serviceError(err, "user")
	}
	return c.JSON(http.StatusOK, user.ToResponse(time.Now()))
}

type updateMeRequest struct {
	Name string `json:"name" validate:"required"`
}

// UpdateMe changes the caller's display name. Role and status changes go
// through the admin API.
func (h *UsersHandler) UpdateMe(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	var req updateMeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	user, err := h.users.Update(c.Request().Context(), userID, users.UpdateRequest{Name: &req.Name})
	if err != nil {
		return serviceError(err, "user")
	}
	return c.JSON(http.StatusOK, user.ToResponse(time.Now()))
}

// Heartbeat refreshes the caller's last-seen timestamp. Clients post it
// periodically; a lapsed heartbeat moves the operator offline.
func (h *UsersHandler) Heartbeat(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	if err := h.users.Heartbeat(c.Request().Context(), userID); err != nil {
		return serviceError(err, "user")
	}
	h.presence.MarkOnline(userID)
	return c.JSON(http.StatusOK, map[string]string{"status": "online"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

func (h *UsersHandler) ChangePassword(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.users.ChangePassword(c.Request().Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, users.ErrWrongPassword) {
			return echo.NewHTTPError(http.StatusBadRequest, "current password does not match")
		}
		return serviceError(err, "user")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *UsersHandler) UpdateSettings(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	var settings users.Settings
	if err := c.Bind(&settings); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	user, err := h.users.UpdateSettings(c.Request().Context(), userID, settings)
	if err != nil {
		return serviceError(err, "user")
	}
	return c.JSON(http.StatusOK, user.ToResponse(time.Now()))
}

func (h *UsersHandler) Stats(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	stats, err := h.users.Stats(c.Request().Context(), userID)
	if err != nil {
		return serviceError(err, "user")
	}
	return c.JSON(http.StatusOK, stats)
}
