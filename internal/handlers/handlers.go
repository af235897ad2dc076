// Package handlers exposes the desk over REST. Each handler registers its
// routes on the shared echo instance and translates service errors to HTTP.
package handlers

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the wire shape for every error the API returns.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// serviceError maps store failures to HTTP errors: missing rows become 404,
// database faults become an opaque 500.
func serviceError(err error, resource string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return echo.NewHTTPError(http.StatusNotFound, resource+" not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return echo.NewHTTPError(http.StatusInternalServerError, "database error").SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func requireParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, name+" is required")
	}
	return value, nil
}
