package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashbackhq/flashback/internal/auth"
	"github.com/flashbackhq/flashback/internal/handlers"
)

const testSecret = "test-secret"

type stubHandler struct{}

func (stubHandler) Register(e *echo.Echo) {
	e.GET("/api/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "thing not found")
	})
	e.POST("/api/echo", func(c echo.Context) error {
		var req struct {
			Email string `json:"email" validate:"required,email"`
		}
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if err := c.Validate(&req); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, req)
	})
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(":0", testSecret, log, []Handler{
		handlers.NewHealthHandler(log),
		stubHandler{},
	})
}

func bearerToken(t *testing.T) string {
	t.Helper()
	token, _, err := auth.GenerateToken("user-1", "op@example.com", testSecret, time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handlers.ErrorResponse {
	t.Helper()
	var body handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/missing", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Error)
}

func TestErrorBodyShape(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/missing", nil)
	req.Header.Set(echo.HeaderAuthorization, bearerToken(t))
	rec := doRequest(s, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "not_found", body.Error)
	assert.Equal(t, "thing not found", body.Message)
}

func TestValidationErrorDetails(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/echo", strings.NewReader(`{"email":"not-an-email"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, bearerToken(t))
	rec := doRequest(s, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "validation_error", body.Error)
	details, ok := body.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "email", details["email"])
}

func TestKindForStatus(t *testing.T) {
	assert.Equal(t, "bad_request", kindForStatus(http.StatusBadRequest))
	assert.Equal(t, "unauthorized", kindForStatus(http.StatusUnauthorized))
	assert.Equal(t, "forbidden", kindForStatus(http.StatusForbidden))
	assert.Equal(t, "not_found", kindForStatus(http.StatusNotFound))
	assert.Equal(t, "conflict", kindForStatus(http.StatusConflict))
	assert.Equal(t, "internal_error", kindForStatus(http.StatusInternalServerError))
	assert.Equal(t, "internal_error", kindForStatus(http.StatusBadGateway))
}
