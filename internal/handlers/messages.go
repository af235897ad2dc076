package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/flashbackhq/flashback/internal/auth"
	"github.com/flashbackhq/flashback/internal/bot"
	"github.com/flashbackhq/flashback/internal/conversations"
	"github.com/flashbackhq/flashback/internal/events"
	"github.com/flashbackhq/flashback/internal/messages"
	"github.com/flashbackhq/flashback/internal/users"
)

type MessagesHandler struct {
	messages      *messages.Service
	conversations *conversations.Service
	users         *users.Service
	dispatcher    *bot.Dispatcher
	hub           *events.Hub
	logger        *slog.Logger
}

func NewMessagesHandler(
	log *slog.Logger,
	messageService *messages.Service,
	conversationService *conversations.Service,
	userService *users.Service,
	dispatcher *bot.Dispatcher,
	hub *events.Hub,
) *MessagesHandler {
	return &MessagesHandler{
		messages:      messageService,
		conversations: conversationService,
		users:         userService,
		dispatcher:    dispatcher,
		hub:           hub,
		logger:        log.With(slog.String("handler", "messages")),
	}
}

func (h *MessagesHandler) Register(e *echo.Echo) {
	group := e.Group("/api/messages")
	group.POST("/send", h.Send)
	group.GET("/search", h.Search)
	group.POST("/:id/read", h.MarkRead)
	group.PATCH("/:id", h.Edit)
	group.GET("/:id/history", h.History)
}

type sendRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	Content        string `json:"content" validate:"required"`
}

// Send delivers an operator reply through the dispatcher. Delivery precedes
// persistence, so a failed send stores nothing.
func (h *MessagesHandler) Send(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	conv, err := h.conversations.Get(ctx, req.ConversationID)
	if err != nil {
		return serviceError(err, "conversation")
	}
	caller, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return serviceError(err, "user")
	}

	msg, err := h.dispatcher.Dispatch(ctx, conv, req.Content, caller.ID, caller.Name)
	if err != nil {
		if errors.Is(err, bot.ErrBotNotConnected) {
			return echo.NewHTTPError(http.StatusInternalServerError,
				"Bot is not connected. Please configure bot token in settings.")
		}
		if errors.Is(err, bot.ErrRecipientUnreachable) {
			return echo.NewHTTPError(http.StatusBadRequest, "User has blocked the bot")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, msg)
}

// Search finds messages by content, optionally within one conversation.
func (h *MessagesHandler) Search(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	filter := messages.SearchFilter{
		Query:          query,
		ConversationID: c.QueryParam("conversation_id"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	list, err := h.messages.Search(c.Request().Context(), filter)
	if err != nil {
		return serviceError(err, "messages")
	}
	return c.JSON(http.StatusOK, list)
}

func (h *MessagesHandler) MarkRead(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	msg, err := h.messages.MarkRead(c.Request().Context(), id)
	if err != nil {
		return serviceError(err, "message")
	}
	h.hub.Broadcast(events.MessageRead{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
	})
	return c.JSON(http.StatusOK, msg)
}

type editRequest struct {
	Content string `json:"content" validate:"required"`
	Reason  string `json:"reason"`
}

// Edit rewrites an operator message and records the previous content in the
// audit trail. Sender messages are immutable.
func (h *MessagesHandler) Edit(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	var req editRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	msg, err := h.messages.Edit(c.Request().Context(), id, req.Content, userID, req.Reason)
	if err != nil {
		if errors.Is(err, messages.ErrNotOperatorMessage) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return serviceError(err, "message")
	}

	caller, err := h.users.GetByID(c.Request().Context(), userID)
	if err != nil {
		return serviceError(err, "user")
	}
	h.hub.Broadcast(events.MessageSent{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Content:        msg.Content,
		UserID:         caller.ID,
		UserName:       caller.Name,
	})
	return c.JSON(http.StatusOK, msg)
}

func (h *MessagesHandler) History(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.messages.Get(c.Request().Context(), id); err != nil {
		return serviceError(err, "message")
	}
	history, err := h.messages.History(c.Request().Context(), id)
	if err != nil {
		return serviceError(err, "message history")
	}
	return c.JSON(http.StatusOK, history)
}
