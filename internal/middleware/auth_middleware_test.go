package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"research-portal/project-portal-backend/internal/auth"
)

func newTestRouter(tokens *auth.TokenManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Logger(zap.NewNop()))
	r.GET("/me", AuthMiddleware(tokens), func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, actor)
	})
	return r
}

func TestAuthMiddlewareAcceptsBearerToken(t *testing.T) {
	tokens := auth.NewTokenManager("secret", time.Hour)
	actor := auth.Actor{ID: primitive.NewObjectID(), Role: auth.RoleLeader, FullName: "Laura Ruiz"}
	token, err := tokens.Issue(actor, "authorized")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	newTestRouter(tokens).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), actor.ID.Hex())
	assert.Contains(t, w.Body.String(), `"role":"LEADER"`)
	_, err = uuid.Parse(w.Header().Get("X-Request-ID"))
	assert.NoError(t, err)
}

func TestAuthMiddlewareAcceptsCookie(t *testing.T) {
	tokens := auth.NewTokenManager("secret", time.Hour)
	token, err := tokens.Issue(auth.Actor{ID: primitive.NewObjectID(), Role: auth.RoleStudent}, "authorized")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	w := httptest.NewRecorder()
	newTestRouter(tokens).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddlewareRejectsMissingAndInvalidTokens(t *testing.T) {
	router := newTestRouter(auth.NewTokenManager("secret", time.Hour))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "access token required")

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid access token")
}

func TestRequestIDKeepsValidClientID(t *testing.T) {
	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Request-ID", id)
	w := httptest.NewRecorder()
	newTestRouter(auth.NewTokenManager("secret", time.Hour)).ServeHTTP(w, req)

	assert.Equal(t, id, w.Header().Get("X-Request-ID"))
}
