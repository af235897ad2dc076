package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flashbackhq/flashback/internal/auth"
	"github.com/flashbackhq/flashback/internal/templates"
)

type TemplatesHandler struct {
	templates *templates.Service
	logger    *slog.Logger
}

func NewTemplatesHandler(log *slog.Logger, templateService *templates.Service) *TemplatesHandler {
	return &TemplatesHandler{
		templates: templateService,
		logger:    log.With(slog.String("handler", "templates")),
	}
}

func (h *TemplatesHandler) Register(e *echo.Echo) {
	group := e.Group("/api/templates")
	group.GET("", h.List)
	group.POST("", h.Create)
	group.PUT("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
	group.PATCH("/:id/use", h.Use)
}

func (h *TemplatesHandler) List(c echo.Context) error {
	list, err := h.templates.List(c.Request().Context())
	if err != nil {
		return serviceError(err, "templates")
	}
	return c.JSON(http.StatusOK, list)
}

func (h *TemplatesHandler) Create(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	var req templates.CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	tpl, err := h.templates.Create(c.Request().Context(), req, userID)
	if err != nil {
		return serviceError(err, "template")
	}
	return c.JSON(http.StatusCreated, tpl)
}

func (h *TemplatesHandler) Update(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	var req templates.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tpl, err := h.templates.Update(c.Request().Context(), id, req)
	if err != nil {
		return serviceError(err, "template")
	}
	return c.JSON(http.StatusOK, tpl)
}

func (h *TemplatesHandler) Delete(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.templates.Delete(c.Request().Context(), id); err != nil {
		return serviceError(err, "template")
	}
	return c.NoContent(http.StatusNoContent)
}

// Use bumps the usage counter so frequently applied templates float to the
// top of the list.
func (h *TemplatesHandler) Use(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	tpl, err := h.templates.IncrementUsage(c.Request().Context(), id)
	if err != nil {
		return serviceError(err, "template")
	}
	return c.JSON(http.StatusOK, tpl)
}
