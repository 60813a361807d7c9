package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-realtime/internal/middleware"
	"chat-realtime/internal/observability"
)

func requestIDFromContext(c *gin.Context) string {
	if id := observability.RequestID(c); id != "" {
		return id
	}
	if id := observability.RequestIDFromRequest(c.Request); id != "" {
		return id
	}
	return uuid.NewString()
}

func userIDFromContext(c *gin.Context) *int64 {
	userID := middleware.UserID(c)
	if userID == 0 {
		return nil
	}
	value := int64(userID)
	return &value
}
