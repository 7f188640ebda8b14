package usecase

import (
	"context"

	"petadopt/internal/domain/entity"
	"petadopt/internal/domain/repository"
)

// MessagingService is the messaging core as seen by sessions and handlers.
type MessagingService interface {
	GetOrCreateConversation(ctx context.Context, userA, userB string) (string, error)
	GetConversation(ctx context.Context, conversationID, userID string) (*entity.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*entity.Conversation, error)
	ListConversationMessages(ctx context.Context, conversationID string) ([]*entity.Message, error)
	SendMessage(ctx context.Context, input SendMessageInput) (string, error)
	MarkMessageAsRead(ctx context.Context, conversationID, messageID, userID string)
	MarkMessagesAsRead(ctx context.Context, conversationID string, messageIDs []string, userID string)
	MarkConversationAsRead(ctx context.Context, conversationID, userID string)
	GetTotalUnreadMessages(ctx context.Context, userID string) int
	OnUserConversationsChange(ctx context.Context, userID string, onChange func([]*entity.Conversation)) repository.Subscription
	OnConversationMessagesChange(ctx context.Context, conversationID string, onChange func([]*entity.Message)) repository.Subscription
}

// TokenVerifier resolves a bearer token to the identity a session acts as.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*entity.User, error)
}

var _ MessagingService = (*MessagingUseCase)(nil)
