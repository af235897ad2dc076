// Package server assembles the echo instance: middleware, auth, validation,
// error rendering and route registration.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/flashbackhq/flashback/internal/auth"
	"github.com/flashbackhq/flashback/internal/handlers"
)

// Handler is anything that registers routes on the echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
}

func NewServer(addr, jwtSecret string, log *slog.Logger, routeHandlers []Handler) *Server {
	if addr == "" {
		addr = ":3000"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.HTTPErrorHandler = errorHandler(log)
	e.Use(middleware.Recover())
	e.Use(requestLogger(log))
	e.Use(auth.JWTMiddleware(jwtSecret, publicRoute))

	for _, h := range routeHandlers {
		if h != nil {
			h.Register(e)
		}
	}

	return &Server{
		echo:   e,
		addr:   addr,
		logger: log.With(slog.String("service", "server")),
	}
}

// publicRoute lists the endpoints reachable without a bearer token. The
// websocket endpoint authenticates itself via the subprotocol header.
func publicRoute(c echo.Context) bool {
	path := c.Request().URL.Path
	if path == "/health" || path == "/api/auth/login" || path == "/ws" {
		return true
	}
	return strings.HasPrefix(path, "/api/telegram-photo/")
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.addr))
	return s.echo.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogMethod: true,
		LogURI:    true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				log.Error("request",
					slog.String("method", v.Method),
					slog.String("uri", v.URI),
					slog.Int("status", v.Status),
					slog.Any("error", v.Error))
				return nil
			}
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status))
			return nil
		},
	})
}

// errorHandler renders every failure as {error, message, details?} with a
// stable error kind per status.
func errorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := http.StatusText(status)
		var details any

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if text, ok := he.Message.(string); ok {
				message = text
			} else {
				message = fmt.Sprintf("%v", he.Message)
			}
		} else {
			message = err.Error()
		}

		kind := kindForStatus(status)

		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			status = http.StatusBadRequest
			kind = "validation_error"
			message = "request validation failed"
			fields := make(map[string]string, len(validationErrs))
			for _, field := range validationErrs {
				fields[strings.ToLower(field.Field())] = field.Tag()
			}
			details = fields
		}

		var pgErr *pgconn.PgError
		if he != nil && errors.As(he.Internal, &pgErr) {
			kind = "database_error"
		}

		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				slog.String("uri", c.Request().RequestURI),
				slog.Any("error", err))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, handlers.ErrorResponse{
			Error:   kind,
			Message: message,
			Details: details,
		})
	}
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	default:
		if status >= http.StatusInternalServerError {
			return "internal_error"
		}
		return "bad_request"
	}
}
