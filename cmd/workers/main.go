// Command workers runs the background jobs of the portal. Today that is the
// reconciler that rewrites the user name snapshots held inside projects.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"research-portal/project-portal-backend/internal/config"
	"research-portal/project-portal-backend/internal/database"
	"research-portal/project-portal-backend/internal/logging"
	"research-portal/project-portal-backend/internal/projects"
	"research-portal/project-portal-backend/internal/scheduler"
	"research-portal/project-portal-backend/internal/users"
)

const snapshotSyncJob = "snapshot-sync"

func main() {
	cfgPath := "config.json"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoClient, err := database.ConnectMongoDB(ctx, cfg.Mongo)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.Mongo.Database)

	propagator := users.NewPropagator(
		users.NewMongoRepository(db, cfg.Mongo.Timeout),
		projects.NewMongoRepository(db, cfg.Mongo.Timeout),
		logger,
	)

	manager := scheduler.NewScheduleManager(logger, scheduler.DefaultScheduleManagerConfig())
	if err := manager.AddJob(snapshotSyncJob, cfg.Workers.SnapshotSyncSchedule, propagator.SyncAll); err != nil {
		logger.Fatal("Failed to schedule snapshot sync", zap.Error(err))
	}
	if err := manager.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// a failed first run is logged by the manager; the schedule retries
	_ = manager.RunNow(ctx, snapshotSyncJob)

	<-ctx.Done()
	logger.Info("Shutting down workers...")
	manager.Stop()
	logger.Info("Workers exiting")
}
