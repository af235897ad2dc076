package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/flashbackhq/flashback/internal/auth"
	"github.com/flashbackhq/flashback/internal/events"
)

// WSHandler upgrades operator sessions onto the event hub. Browsers cannot
// set arbitrary headers on websocket dials, so the JWT travels in the
// Sec-WebSocket-Protocol header as "access_token, <token>" (or in the token
// query parameter as a fallback).
type WSHandler struct {
	hub       *events.Hub
	jwtSecret string
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

func NewWSHandler(log *slog.Logger, hub *events.Hub, jwtSecret string) *WSHandler {
	return &WSHandler{
		hub:       hub,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log.With(slog.String("handler", "ws")),
	}
}

func (h *WSHandler) Register(e *echo.Echo) {
	e.GET("/ws", h.Connect)
}

func (h *WSHandler) Connect(c echo.Context) error {
	request := c.Request()

	token := ""
	subprotocol := ""
	if header := request.Header.Get("Sec-WebSocket-Protocol"); header != "" {
		parsed, proto, err := auth.TokenFromWebSocketProtocol(header)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		token = parsed
		subprotocol = proto
	} else {
		token = c.QueryParam("token")
	}
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	claims, err := auth.VerifyToken(token, h.jwtSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
	}

	responseHeader := http.Header{}
	if subprotocol != "" {
		responseHeader.Set("Sec-WebSocket-Protocol", subprotocol)
	}
	conn, err := h.upgrader.Upgrade(c.Response(), request, responseHeader)
	if err != nil {
		h.logger.Warn("websocket upgrade", slog.Any("error", err))
		return err
	}

	h.logger.Info("websocket connected", slog.String("user_id", claims.UserID))
	h.hub.HandleConnection(conn, claims.UserID, claims.Email)
	return nil
}
