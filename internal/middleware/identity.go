package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the user the upstream gateway authenticated.
const HeaderUserID = "X-User-ID"

const ctxUserID = "userID"

var ErrInvalidUserID = errors.New("invalid user id")

// ParseUserID parses a positive numeric user id.
func ParseUserID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, ErrInvalidUserID
	}
	return id, nil
}

// Identity requires X-User-ID and stores it on the context.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(HeaderUserID)
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}

		userID, err := ParseUserID(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user identity"})
			return
		}

		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// UserID returns the id stored by Identity.
func UserID(c *gin.Context) int {
	return c.GetInt(ctxUserID)
}
