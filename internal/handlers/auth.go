package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/flashbackhq/flashback/internal/auth"
	"github.com/flashbackhq/flashback/internal/users"
)

type AuthHandler struct {
	users     *users.Service
	presence  *users.PresenceSweeper
	jwtSecret string
	expiresIn time.Duration
	logger    *slog.Logger
}

func NewAuthHandler(log *slog.Logger, userService *users.Service, presence *users.PresenceSweeper, jwtSecret string, expiresIn time.Duration) *AuthHandler {
	return &AuthHandler{
		users:     userService,
		presence:  presence,
		jwtSecret: jwtSecret,
		expiresIn: expiresIn,
		logger:    log.With(slog.String("handler", "auth")),
	}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/api/auth/login", h.Login)
	e.GET("/api/auth/me", h.Me)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      users.Response `json:"user"`
}

// Login checks credentials and issues a JWT. Only active accounts with
// operator access may log in.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
		}
		return serviceError(err, "user")
	}
	if !h.users.VerifyPassword(user, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	}
	if !user.HasOperatorAccess() {
		return echo.NewHTTPError(http.StatusForbidden, "operator access required")
	}
	if !user.IsActive {
		return echo.NewHTTPError(http.StatusForbidden, "account is disabled")
	}

	token, expiresAt, err := auth.GenerateToken(user.ID, user.Email, h.jwtSecret, h.expiresIn)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := h.users.Heartbeat(ctx, user.ID); err != nil {
		h.logger.Warn("update last seen on login", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	h.presence.MarkOnline(user.ID)

	h.logger.Info("user logged in", slog.String("user_id", user.ID))
	return c.JSON(http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.ToResponse(time.Now()),
	})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
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
