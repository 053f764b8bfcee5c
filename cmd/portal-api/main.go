package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"research-portal/project-portal-backend/internal/auth"
	"research-portal/project-portal-backend/internal/config"
	"research-portal/project-portal-backend/internal/database"
	"research-portal/project-portal-backend/internal/logging"
	"research-portal/project-portal-backend/internal/projects"
	"research-portal/project-portal-backend/internal/users"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Connect to database
	logger.Info("Connecting to MongoDB", zap.String("database", cfg.Mongo.Database))
	mongoClient, err := database.ConnectMongoDB(ctx, cfg.Mongo)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.Mongo.Database)

	redisClient, err := database.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	var cache projects.Cache = projects.NopCache{}
	if redisClient != nil {
		defer redisClient.Close()
		cache = projects.NewRedisCache(redisClient, cfg.Redis.TTL)
		logger.Info("Active projects cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	projectsRepo := projects.NewMongoRepository(db, cfg.Mongo.Timeout)
	usersRepo := users.NewMongoRepository(db, cfg.Mongo.Timeout)
	if err := projectsRepo.EnsureIndexes(ctx); err != nil {
		logger.Fatal("Failed to create project indexes", zap.Error(err))
	}
	if err := usersRepo.EnsureIndexes(ctx); err != nil {
		logger.Fatal("Failed to create user indexes", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.JWTExpiration)
	propagator := users.NewPropagator(usersRepo, projectsRepo, logger)
	usersService := users.NewService(usersRepo, propagator, tokens, logger)
	projectsService := projects.NewService(projectsRepo, cache, logger)

	handler := newRouter(routerDeps{
		cfg:      cfg,
		logger:   logger,
		tokens:   tokens,
		users:    usersService,
		projects: projectsService,
	})

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.json"
}
