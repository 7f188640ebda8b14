package handler

import (
	"github.com/labstack/echo/v4"

	"petadopt/internal/adapter/api/middleware"
	"petadopt/internal/usecase"
	"petadopt/pkg/errors"
	"petadopt/pkg/response"
	"petadopt/pkg/utils"
)

type MessagingHandler struct {
	messaging usecase.MessagingService
}

func NewMessagingHandler(messaging usecase.MessagingService) *MessagingHandler {
	return &MessagingHandler{
		messaging: messaging,
	}
}

type createConversationRequest struct {
	OtherUserID string `json:"other_user_id" validate:"required"`
}

// Length limits are enforced by the messaging core so REST and WebSocket
// clients see the same messages.
type sendMessageRequest struct {
	Text string `json:"text"`
}

// CreateConversation returns the conversation between the caller and
// other_user_id, creating it on first contact.
func (h *MessagingHandler) CreateConversation(c echo.Context) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	conversationID, err := h.messaging.GetOrCreateConversation(c.Request().Context(), user.ID, req.OtherUserID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]string{"conversation_id": conversationID})
}

// GetUserConversations lists the caller's conversations, most recent first.
func (h *MessagingHandler) GetUserConversations(c echo.Context) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	conversations, err := h.messaging.ListConversations(c.Request().Context(), user.ID)
	if err != nil {
		return response.Error(c, err)
	}

	p := utils.GetPaginationParams(c)
	start, end := p.Window(len(conversations))
	return response.Paginated(c, conversations[start:end], int64(len(conversations)), p.Page, p.PageSize)
}

func (h *MessagingHandler) GetConversation(c echo.Context) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	conversation, err := h.messaging.GetConversation(c.Request().Context(), c.Param("id"), user.ID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conversation)
}

// GetConversationMessages lists messages oldest first.
func (h *MessagingHandler) GetConversationMessages(c echo.Context) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	ctx := c.Request().Context()
	conversationID := c.Param("id")
	if _, err := h.messaging.GetConversation(ctx, conversationID, user.ID); err != nil {
		return response.Error(c, err)
	}

	messages, err := h.messaging.ListConversationMessages(ctx, conversationID)
	if err != nil {
		return response.Error(c, err)
	}

	p := utils.GetPaginationParams(c)
	start, end := p.Window(len(messages))
	return response.Paginated(c, messages[start:end], int64(len(messages)), p.Page, p.PageSize)
}

func (h *MessagingHandler) SendMessage(c echo.Context) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}

	messageID, err := h.messaging.SendMessage(c.Request().Context(), usecase.SendMessageInput{
		ConversationID: c.Param("id"),
		SenderID:       user.ID,
		SenderName:     user.Name(),
		SenderType:     user.RoleOrDefault(),
		SenderAvatar:   user.AvatarURL,
		Text:           req.Text,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]string{"message_id": messageID})
}

// MarkConversationAsRead marks every message in the conversation as read by
// the caller. Receipt failures are not reported to the client.
func (h *MessagingHandler) MarkConversationAsRead(c echo.Context) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	ctx := c.Request().Context()
	conversationID := c.Param("id")
	if _, err := h.messaging.GetConversation(ctx, conversationID, user.ID); err != nil {
		return response.Error(c, err)
	}

	h.messaging.MarkConversationAsRead(ctx, conversationID, user.ID)

	return response.Success(c, map[string]string{"status": "ok"})
}

func (h *MessagingHandler) MarkMessageAsRead(c echo.Context) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	ctx := c.Request().Context()
	conversationID := c.Param("id")
	if _, err := h.messaging.GetConversation(ctx, conversationID, user.ID); err != nil {
		return response.Error(c, err)
	}

	h.messaging.MarkMessageAsRead(ctx, conversationID, c.Param("messageId"), user.ID)

	return response.Success(c, map[string]string{"status": "ok"})
}

// GetUnreadCount returns the caller's unread total across all conversations.
func (h *MessagingHandler) GetUnreadCount(c echo.Context) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	total := h.messaging.GetTotalUnreadMessages(c.Request().Context(), user.ID)

	return response.Success(c, map[string]int{"total": total})
}
