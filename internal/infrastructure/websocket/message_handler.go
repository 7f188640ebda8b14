package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"petadopt/internal/infrastructure/ratelimit"
	"petadopt/internal/metrics"
	"petadopt/pkg/errors"
)

// WebSocket Message Types
const (
	MessageTypePing               = "ping"
	MessageTypePong               = "pong"
	MessageTypeStartConversation  = "start_conversation"
	MessageTypeSelectConversation = "select_conversation"
	MessageTypeCloseConversation  = "close_conversation"
	MessageTypeSendMessage        = "send_message"
	MessageTypeState              = "state"
	MessageTypeError              = "error"
)

// WebSocket Message Structure
type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// Message Data Types
type StartConversationData struct {
	OtherUserID string `json:"other_user_id"`
}

type SelectConversationData struct {
	ConversationID string `json:"conversation_id"`
}

type SendMessageData struct {
	TempID string `json:"temp_id,omitempty"`
	Text   string `json:"text"`
}

type ErrorData struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	TempID     string `json:"temp_id,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// HandleClientMessage processes one incoming frame. Frames from a connection
// are handled in order; state changes reach the client as "state" frames.
func (m *Manager) HandleClientMessage(ctx context.Context, client *Client, messageBytes []byte) {
	var wsMessage WSMessage
	if err := json.Unmarshal(messageBytes, &wsMessage); err != nil {
		m.log.Warn().Err(err).Str("client", client.ID).Msg("failed to unmarshal frame")
		m.sendErrorToClient(client, errors.BadRequest("Invalid message format", err), "")
		return
	}

	m.log.Debug().Str("client", client.ID).Str("type", wsMessage.Type).Msg("frame received")

	switch wsMessage.Type {
	case MessageTypePing:
		m.handlePing(client)

	case MessageTypeStartConversation:
		m.handleStartConversation(ctx, client, wsMessage.Data)

	case MessageTypeSelectConversation:
		m.handleSelectConversation(ctx, client, wsMessage.Data)

	case MessageTypeCloseConversation:
		client.Session.CloseConversation()

	case MessageTypeSendMessage:
		m.handleSendMessage(ctx, client, wsMessage.Data)

	default:
		m.log.Warn().Str("client", client.ID).Str("type", wsMessage.Type).Msg("unknown frame type")
		m.sendErrorToClient(client, errors.BadRequest("Unknown message type", nil), "")
	}
}

func (m *Manager) handlePing(client *Client) {
	m.sendToClient(client, WSMessage{
		Type:      MessageTypePong,
		Data:      map[string]string{"status": "alive"},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (m *Manager) handleStartConversation(ctx context.Context, client *Client, data interface{}) {
	var req StartConversationData
	if err := decodeData(data, &req); err != nil || req.OtherUserID == "" {
		m.sendErrorToClient(client, errors.BadRequest("other_user_id is required", err), "")
		return
	}

	if !m.allow(client, ratelimit.ActionStartConversation, "") {
		return
	}

	if err := client.Session.StartConversation(ctx, req.OtherUserID); err != nil {
		m.sendErrorToClient(client, err, "")
	}
}

func (m *Manager) handleSelectConversation(ctx context.Context, client *Client, data interface{}) {
	var req SelectConversationData
	if err := decodeData(data, &req); err != nil || req.ConversationID == "" {
		m.sendErrorToClient(client, errors.BadRequest("conversation_id is required", err), "")
		return
	}

	if err := client.Session.SelectConversation(ctx, req.ConversationID); err != nil {
		m.sendErrorToClient(client, err, "")
	}
}

func (m *Manager) handleSendMessage(ctx context.Context, client *Client, data interface{}) {
	var req SendMessageData
	if err := decodeData(data, &req); err != nil {
		m.sendErrorToClient(client, errors.BadRequest("Invalid send message format", err), "")
		return
	}

	if !m.allow(client, ratelimit.ActionSendMessage, req.TempID) {
		return
	}

	if err := client.Session.SendMessage(ctx, req.Text); err != nil {
		m.sendErrorToClient(client, err, req.TempID)
	}
}

func (m *Manager) allow(client *Client, action, tempID string) bool {
	if m.limiter == nil {
		return true
	}

	allowed, wait := m.limiter.Allow(client.User.ID, action)
	if allowed {
		return true
	}

	metrics.RateLimitHits.WithLabelValues(action).Inc()
	m.log.Warn().Str("user", client.User.ID).Str("action", action).Dur("retry_after", wait).Msg("rate limited")
	m.sendToClient(client, WSMessage{
		Type: MessageTypeError,
		Data: ErrorData{
			Code:       errors.CodeTooManyRequests,
			Message:    fmt.Sprintf("Too many requests, retry in %d seconds", retrySeconds(wait)),
			TempID:     tempID,
			RetryAfter: retrySeconds(wait),
		},
		Timestamp: time.Now().Format(time.RFC3339),
	})
	return false
}

func (m *Manager) sendToClient(client *Client, message WSMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		m.log.Error().Err(err).Str("client", client.ID).Msg("failed to marshal frame")
		return
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if _, ok := m.clients[client.ID]; !ok {
		return
	}
	select {
	case client.Send <- messageBytes:
	default:
		m.log.Warn().Str("client", client.ID).Msg("send buffer full, dropping frame")
	}
}

func (m *Manager) sendErrorToClient(client *Client, err error, tempID string) {
	m.sendToClient(client, WSMessage{
		Type: MessageTypeError,
		Data: ErrorData{
			Code:    errors.CodeOf(err),
			Message: errors.Message(err),
			TempID:  tempID,
		},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// decodeData re-decodes a generic frame payload into a typed struct.
func decodeData(data interface{}, v interface{}) error {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(dataBytes, v)
}

func retrySeconds(wait time.Duration) int {
	s := int((wait + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
