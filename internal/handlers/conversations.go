package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/flashbackhq/flashback/internal/auth"
	"github.com/flashbackhq/flashback/internal/bot"
	"github.com/flashbackhq/flashback/internal/conversations"
	"github.com/flashbackhq/flashback/internal/events"
	"github.com/flashbackhq/flashback/internal/l10n"
	"github.com/flashbackhq/flashback/internal/messages"
	"github.com/flashbackhq/flashback/internal/senders"
	"github.com/flashbackhq/flashback/internal/users"
)

type ConversationsHandler struct {
	conversations *conversations.Service
	messages      *messages.Service
	senders       *senders.Service
	users         *users.Service
	manager       *bot.Manager
	hub           *events.Hub
	locales       *l10n.Bundle
	logger        *slog.Logger
}

func NewConversationsHandler(
	log *slog.Logger,
	conversationService *conversations.Service,
	messageService *messages.Service,
	senderService *senders.Service,
	userService *users.Service,
	manager *bot.Manager,
	hub *events.Hub,
	locales *l10n.Bundle,
) *ConversationsHandler {
	return &ConversationsHandler{
		conversations: conversationService,
		messages:      messageService,
		senders:       senderService,
		users:         userService,
		manager:       manager,
		hub:           hub,
		locales:       locales,
		logger:        log.With(slog.String("handler", "conversations")),
	}
}

func (h *ConversationsHandler) Register(e *echo.Echo) {
	group := e.Group("/api/conversations")
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.GET("/:id/messages", h.ListMessages)
	group.GET("/:id/export", h.Export)
	group.POST("/:id/assign", h.Assign)
	group.POST("/:id/close", h.Close)
	group.POST("/:id/mark-read", h.MarkRead)
	group.PATCH("/:id/status", h.UpdateStatus)
	group.DELETE("/:id", h.Delete)
}

// List returns conversations newest-activity first. Closed conversations are
// excluded unless asked for, and non-admin operators only see their own.
func (h *ConversationsHandler) List(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	caller, err := h.users.GetByID(c.Request().Context(), userID)
	if err != nil {
		return serviceError(err, "user")
	}

	filter := conversations.ListFilter{
		Status: c.QueryParam("status"),
		Search: c.QueryParam("search"),
	}
	if filter.Status != "" && !conversations.ValidStatus(filter.Status) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status "+filter.Status)
	}
	if raw := c.QueryParam("include_closed"); raw != "" {
		filter.IncludeClosed, _ = strconv.ParseBool(raw)
	}
	if raw := c.QueryParam("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	if raw := c.QueryParam("offset"); raw != "" {
		filter.Offset, _ = strconv.Atoi(raw)
	}
	if caller.IsAdmin {
		filter.UserID = c.QueryParam("user_id")
	} else {
		filter.UserID = caller.ID
	}

	result, err := h.conversations.List(c.Request().Context(), filter)
	if err != nil {
		return serviceError(err, "conversations")
	}
	return c.JSON(http.StatusOK, result)
}

type conversationResponse struct {
	conversations.Conversation
	TelegramUser senders.Sender `json:"telegram_user"`
}

func (h *ConversationsHandler) Get(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	conv, err := h.conversations.Get(c.Request().Context(), id)
	if err != nil {
		return serviceError(err, "conversation")
	}
	sender, err := h.senders.Get(c.Request().Context(), conv.TelegramUserID)
	if err != nil {
		return serviceError(err, "telegram user")
	}
	return c.JSON(http.StatusOK, conversationResponse{Conversation: conv, TelegramUser: sender})
}

func (h *ConversationsHandler) ListMessages(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.conversations.Get(c.Request().Context(), id); err != nil {
		return serviceError(err, "conversation")
	}
	list, err := h.messages.ListByConversation(c.Request().Context(), id)
	if err != nil {
		return serviceError(err, "messages")
	}
	return c.JSON(http.StatusOK, list)
}

type assignRequest struct {
	UserID string `json:"user_id"`
}

// Assign hands the conversation to an operator (the caller unless another
// operator is named) and moves it to active.
func (h *ConversationsHandler) Assign(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	callerID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	assigneeID := req.UserID
	if assigneeID == "" {
		assigneeID = callerID
	}

	ctx := c.Request().Context()
	assignee, err := h.users.GetByID(ctx, assigneeID)
	if err != nil {
		return serviceError(err, "user")
	}
	conv, err := h.conversations.Assign(ctx, id, assigneeID)
	if err != nil {
		return serviceError(err, "conversation")
	}

	h.hub.Broadcast(events.ConversationAssigned{
		ConversationID: conv.ID,
		UserID:         assignee.ID,
		UserName:       assignee.Name,
	})
	h.hub.Broadcast(events.ConversationStatusChanged{
		ConversationID: conv.ID,
		Status:         string(conv.Status),
	})
	h.notifySender(ctx, conv.TelegramUserID, func(locale l10n.Locale) string {
		return l10n.Format(locale.Bot.OperatorAssigned, map[string]string{"name": assignee.Name})
	})

	return c.JSON(http.StatusOK, conv)
}

func (h *ConversationsHandler) Close(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	conv, err := h.conversations.Close(ctx, id)
	if err != nil {
		return serviceError(err, "conversation")
	}

	h.hub.Broadcast(events.ConversationClosed{ConversationID: conv.ID})
	h.hub.Broadcast(events.ConversationStatusChanged{
		ConversationID: conv.ID,
		Status:         string(conversations.StatusClosed),
	})
	h.notifySender(ctx, conv.TelegramUserID, func(locale l10n.Locale) string {
		return locale.Bot.ConversationClosed
	})

	return c.JSON(http.StatusOK, conv)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *ConversationsHandler) UpdateStatus(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if !conversations.ValidStatus(req.Status) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status "+req.Status)
	}

	conv, err := h.conversations.UpdateStatus(c.Request().Context(), id, conversations.Status(req.Status))
	if err != nil {
		return serviceError(err, "conversation")
	}

	h.hub.Broadcast(events.ConversationStatusChanged{
		ConversationID: conv.ID,
		Status:         string(conv.Status),
	})
	if conv.Status == conversations.StatusClosed {
		h.hub.Broadcast(events.ConversationClosed{ConversationID: conv.ID})
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *ConversationsHandler) MarkRead(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.conversations.Get(c.Request().Context(), id); err != nil {
		return serviceError(err, "conversation")
	}
	if err := h.conversations.MarkRead(c.Request().Context(), id); err != nil {
		return serviceError(err, "conversation")
	}
	h.hub.Broadcast(events.MessageRead{ConversationID: id})
	return c.NoContent(http.StatusNoContent)
}

// Delete removes a conversation and its messages. Admin only.
func (h *ConversationsHandler) Delete(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	callerID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	caller, err := h.users.GetByID(c.Request().Context(), callerID)
	if err != nil {
		return serviceError(err, "user")
	}
	if !caller.IsAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "admin role required")
	}
	if err := h.conversations.Delete(c.Request().Context(), id); err != nil {
		return serviceError(err, "conversation")
	}
	return c.NoContent(http.StatusNoContent)
}

type exportResponse struct {
	Conversation conversations.Conversation `json:"conversation"`
	TelegramUser senders.Sender             `json:"telegram_user"`
	Messages     []messages.Message         `json:"messages"`
	ExportedAt   time.Time                  `json:"exported_at"`
}

// Export returns the full transcript as a downloadable JSON document.
func (h *ConversationsHandler) Export(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	conv, err := h.conversations.Get(ctx, id)
	if err != nil {
		return serviceError(err, "conversation")
	}
	sender, err := h.senders.Get(ctx, conv.TelegramUserID)
	if err != nil {
		return serviceError(err, "telegram user")
	}
	list, err := h.messages.ListByConversation(ctx, id)
	if err != nil {
		return serviceError(err, "messages")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="conversation-%s.json"`, conv.ID))
	return c.JSON(http.StatusOK, exportResponse{
		Conversation: conv,
		TelegramUser: sender,
		Messages:     list,
		ExportedAt:   time.Now().UTC(),
	})
}

// notifySender sends a localized courtesy message to the conversation's
// sender. Best-effort: a disconnected bot or a failed send is only logged.
func (h *ConversationsHandler) notifySender(ctx context.Context, telegramUserID int64, message func(l10n.Locale) string) {
	transport, err := h.manager.Bot()
	if err != nil {
		return
	}
	countryCode := ""
	if sender, err := h.senders.Get(ctx, telegramUserID); err == nil {
		countryCode = sender.CountryCode
	}
	text := message(h.locales.ForCountry(countryCode))
	if text == "" {
		return
	}
	if _, err := transport.Send(tgbotapi.NewMessage(telegramUserID, text)); err != nil {
		h.logger.Warn("notify sender", slog.Int64("telegram_user_id", telegramUserID), slog.Any("error", err))
	}
}
