package router

import (
	"github.com/labstack/echo/v4"

	"petadopt/internal/adapter/api/handler"
	"petadopt/internal/adapter/api/middleware"
	"petadopt/internal/infrastructure/ratelimit"
)

func SetupMessagingRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	messagingHandler := handler.GetMessagingHandler()

	conversations := e.Group("/v1/conversations")
	conversations.Use(authMiddleware.Authenticate)

	conversations.POST("", messagingHandler.CreateConversation,
		middleware.RateLimit(limiter, ratelimit.ActionStartConversation))
	conversations.GET("", messagingHandler.GetUserConversations)
	conversations.GET("/:id", messagingHandler.GetConversation)
	conversations.PUT("/:id/read", messagingHandler.MarkConversationAsRead)

	conversations.POST("/:id/messages", messagingHandler.SendMessage,
		middleware.RateLimit(limiter, ratelimit.ActionSendMessage))
	conversations.GET("/:id/messages", messagingHandler.GetConversationMessages)
	conversations.PUT("/:id/messages/:messageId/read", messagingHandler.MarkMessageAsRead)

	messages := e.Group("/v1/messages")
	messages.Use(authMiddleware.Authenticate)
	messages.GET("/unread-count", messagingHandler.GetUnreadCount)
}
