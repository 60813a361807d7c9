package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Identity(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c)})
	})
	return r
}

func TestIdentityStoresUserID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "42")
	w := httptest.NewRecorder()

	newRouter().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":42}`, w.Body.String())
}

func TestIdentityRejectsMissingOrInvalidHeader(t *testing.T) {
	for _, header := range []string{"", "abc", "0", "-3"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set(HeaderUserID, header)
		}
		w := httptest.NewRecorder()

		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestParseUserID(t *testing.T) {
	id, err := ParseUserID(" 7 ")
	require.NoError(t, err)
	assert.Equal(t, 7, id)

	_, err = ParseUserID("7x")
	assert.ErrorIs(t, err, ErrInvalidUserID)
}
