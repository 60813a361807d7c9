package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/middleware"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
)

const searchLimit = 10

// UserHandler serves user lookups.
type UserHandler struct {
	users repositories.UserRepository
	log   *slog.Logger
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users repositories.UserRepository, log *slog.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

// Search handles GET /users/search?term=. An empty term matches nobody.
func (h *UserHandler) Search(c *gin.Context) {
	var query struct {
		Term string `form:"term" binding:"max=100"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "term is too long"})
		return
	}
	if strings.TrimSpace(query.Term) == "" {
		c.JSON(http.StatusOK, gin.H{"users": []models.User{}})
		return
	}

	userID := middleware.UserID(c)
	users, err := h.users.Search(c.Request.Context(), query.Term, userID, searchLimit)
	if err != nil {
		h.log.Error("user search failed", "user_id", userID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search users"})
		return
	}
	if users == nil {
		users = []models.User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
