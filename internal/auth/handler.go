package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"research-portal/project-portal-backend/internal/apperrors"
)

const tokenCookie = "token"

// Session is the result of a successful sign in.
type Session struct {
	Token string `json:"token"`
	Actor Actor  `json:"user"`
}

// Authenticator checks credentials. Implemented by the users service.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*Session, error)
}

type Handler struct {
	accounts Authenticator
	tokens   *TokenManager
	logger   *zap.Logger
	// actor reads the caller set by the auth middleware
	actor func(c *gin.Context) (Actor, bool)
}

func NewHandler(accounts Authenticator, tokens *TokenManager, logger *zap.Logger, actor func(c *gin.Context) (Actor, bool)) *Handler {
	return &Handler{accounts: accounts, tokens: tokens, logger: logger, actor: actor}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login answers the token in the body and as an http only cookie.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required", "code": "VALIDATION_ERROR"})
		return
	}

	session, err := h.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		status := apperrors.HTTPStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("Login failed", zap.Error(err))
		}
		c.JSON(status, gin.H{"error": apperrors.PublicMessage(err), "code": apperrors.Code(err)})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(tokenCookie, session.Token, int(h.tokens.TTL().Seconds()), "/api", "", false, true)
	c.JSON(http.StatusOK, session)
}

// Logout clears the token cookie. Bearer tokens stay valid until they expire.
func (h *Handler) Logout(c *gin.Context) {
	c.SetCookie(tokenCookie, "", -1, "/api", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *Handler) Me(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "code": "UNAUTHORIZED"})
		return
	}
	c.JSON(http.StatusOK, actor)
}
