package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/auth"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
)

func newAuthRouter(meta *mocks.MetadataServiceMock) (*gin.Engine, *auth.Session) {
	gin.SetMode(gin.TestMode)
	captured := &auth.Session{}
	router := gin.New()
	router.GET("/protected", AuthMiddleware(meta), func(c *gin.Context) {
		session, ok := SessionFromContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		*captured = session
		c.Status(http.StatusOK)
	})
	return router, captured
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	router, _ := newAuthRouter(&mocks.MetadataServiceMock{})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareMalformedHeader(t *testing.T) {
	router, _ := newAuthRouter(&mocks.MetadataServiceMock{})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "token-without-scheme")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareRejectedToken(t *testing.T) {
	meta := &mocks.MetadataServiceMock{}
	meta.On("Me", mock.Anything, "bad-token").Return(nil, errors.New("unauthorized"))
	router, _ := newAuthRouter(meta)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareInstallsSession(t *testing.T) {
	meta := &mocks.MetadataServiceMock{}
	meta.On("Me", mock.Anything, "good-token").Return(models.Participant{ID: "alice", Username: "alice"}, nil)
	router, captured := newAuthRouter(meta)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, auth.Session{UserID: "alice", Token: "good-token"}, *captured)
}
