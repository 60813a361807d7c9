package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"chat-realtime/internal/middleware"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
)

// ConversationOpener finds or creates a direct conversation and marks it read.
type ConversationOpener interface {
	OpenDirectConversation(ctx context.Context, actorID, otherID int) (models.DirectConversation, error)
}

// ConversationHandler serves the conversation list and direct history.
type ConversationHandler struct {
	conversations repositories.ConversationRepository
	opener        ConversationOpener
	log           *slog.Logger
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(conversations repositories.ConversationRepository, opener ConversationOpener, log *slog.Logger) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, opener: opener, log: log}
}

type conversationResponse struct {
	ID            int       `json:"id"`
	UserIDs       []int     `json:"user_ids,omitempty"`
	GroupID       *int      `json:"group_id,omitempty"`
	LastMessageID *int      `json:"last_message_id,omitempty"`
	Unread        int       `json:"unread"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type participantResponse struct {
	ID       int        `json:"id"`
	Name     string     `json:"name"`
	Avatar   string     `json:"avatar"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

func toConversationResponse(conv models.Conversation, userID int) conversationResponse {
	return conversationResponse{
		ID:            conv.ID,
		UserIDs:       conv.Participants(),
		GroupID:       conv.GroupID,
		LastMessageID: conv.LastMessageID,
		Unread:        conv.Unread(userID),
		UpdatedAt:     conv.UpdatedAt,
	}
}

// ListConversations handles GET /conversations.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := middleware.UserID(c)

	convs, err := h.conversations.ListForUser(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("list conversations failed", "user_id", userID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	responses := lo.Map(convs, func(conv models.Conversation, _ int) conversationResponse {
		return toConversationResponse(conv, userID)
	})
	c.JSON(http.StatusOK, gin.H{"conversations": responses})
}

// OpenConversation handles GET /conversations/with/:user_id.
func (h *ConversationHandler) OpenConversation(c *gin.Context) {
	otherID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil || otherID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	userID := middleware.UserID(c)
	opened, err := h.opener.OpenDirectConversation(c.Request.Context(), userID, otherID)
	switch {
	case errors.Is(err, repositories.ErrSelfConversation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open a conversation with yourself"})
		return
	case errors.Is(err, repositories.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	case err != nil:
		h.log.Error("open conversation failed", "user_id", userID, "other_id", otherID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open conversation"})
		return
	}

	msgs := opened.Messages
	if msgs == nil {
		msgs = []models.PopulatedMessage{}
	}
	other := opened.Other
	c.JSON(http.StatusOK, gin.H{
		"conversation": toConversationResponse(opened.Conversation, userID),
		"user": participantResponse{
			ID:       other.ID,
			Name:     other.Name,
			Avatar:   other.Avatar,
			Status:   other.Status,
			LastSeen: other.LastSeen,
		},
		"messages": msgs,
	})
}
