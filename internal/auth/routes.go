package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes registers Auth routes. protected must run the auth middleware.
func RegisterRoutes(public, protected *gin.RouterGroup, handler *Handler) {
	authGroup := public.Group("/auth")
	{
		authGroup.POST("/login", handler.Login)
		authGroup.POST("/logout", handler.Logout)
	}

	protected.GET("/auth/me", handler.Me)
}
