package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/flashbackhq/flashback/internal/analytics"
)

type AnalyticsHandler struct {
	analytics *analytics.Service
	logger    *slog.Logger
}

func NewAnalyticsHandler(log *slog.Logger, analyticsService *analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{
		analytics: analyticsService,
		logger:    log.With(slog.String("handler", "analytics")),
	}
}

func (h *AnalyticsHandler) Register(e *echo.Echo) {
	group := e.Group("/api/analytics")
	group.GET("/overall", h.Overall)
	group.GET("/users", h.PerUser)
	group.GET("/response-times", h.ResponseTimes)
	group.GET("/message-volume", h.MessageVolume)
}

func (h *AnalyticsHandler) Overall(c echo.Context) error {
	stats, err := h.analytics.Overall(c.Request().Context())
	if err != nil {
		return serviceError(err, "analytics")
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *AnalyticsHandler) PerUser(c echo.Context) error {
	stats, err := h.analytics.PerUser(c.Request().Context())
	if err != nil {
		return serviceError(err, "analytics")
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *AnalyticsHandler) ResponseTimes(c echo.Context) error {
	times, err := h.analytics.ResponseTimes(c.Request().Context())
	if err != nil {
		return serviceError(err, "analytics")
	}
	return c.JSON(http.StatusOK, times)
}

func (h *AnalyticsHandler) MessageVolume(c echo.Context) error {
	days := 0
	if raw := c.QueryParam("days"); raw != "" {
		days, _ = strconv.Atoi(raw)
	}
	series, err := h.analytics.MessageVolume(c.Request().Context(), days)
	if err != nil {
		return serviceError(err, "analytics")
	}
	return c.JSON(http.StatusOK, series)
}
