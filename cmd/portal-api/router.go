package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"research-portal/project-portal-backend/internal/auth"
	"research-portal/project-portal-backend/internal/config"
	"research-portal/project-portal-backend/internal/middleware"
	"research-portal/project-portal-backend/internal/projects"
	"research-portal/project-portal-backend/internal/users"
)

type routerDeps struct {
	cfg      *config.Config
	logger   *zap.Logger
	tokens   *auth.TokenManager
	users    *users.Service
	projects *projects.Service
}

func newRouter(d routerDeps) http.Handler {
	if d.cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(d.logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "research-portal-api",
			"time":    time.Now().UTC(),
		})
	})

	public := router.Group("/api/v1")
	protected := router.Group("/api/v1")
	protected.Use(middleware.AuthMiddleware(d.tokens))

	auth.RegisterRoutes(public, protected, auth.NewHandler(d.users, d.tokens, d.logger, middleware.ActorFromContext))
	users.NewHandler(d.users, d.logger).RegisterRoutes(public, protected)
	projects.NewHandler(d.projects, d.logger).RegisterRoutes(protected)

	return cors.New(cors.Options{
		AllowedOrigins:   d.cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler(router)
}
