package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"asso-manager/internal/adapters/persistence/models"
	"asso-manager/internal/app"
	"asso-manager/internal/config"
	"asso-manager/internal/core/services"
	"asso-manager/internal/pkg/logger"
	"asso-manager/internal/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Fatalf("❌ Failed to set up tracing: %v", err)
	}

	// Connect to database
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}

	// Auto migrate (creates tables if not exist)
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("❌ Failed to auto migrate: %v", err)
	}
	log.Println("✅ Database migration completed")

	if err := config.HealthCheck(ctx, db); err != nil {
		log.Fatalf("❌ Database health check failed: %v", err)
	}

	if err := config.NewSeeder(db, cfg).Run(ctx); err != nil {
		log.Printf("⚠️ Warning: Failed to seed data: %v", err)
	}

	container, err := app.New(cfg, db, appLogger)
	if err != nil {
		log.Fatalf("❌ Failed to build services: %v", err)
	}

	// Start scheduled maintenance
	var cronService *services.CronService
	if cfg.Scheduler.Enabled {
		cronService, err = container.NewCron()
		if err != nil {
			log.Fatalf("❌ Failed to schedule maintenance jobs: %v", err)
		}
		cronService.Start(ctx)
	} else {
		log.Println("⏸️ Scheduler disabled (SCHEDULER_ENABLED=false)")
	}

	log.Printf("🚀 Association backend running [MODE: %s, TZ: %s]", cfg.AppMode, cfg.Timezone)
	<-ctx.Done()
	gracefulShutdown(cronService, shutdownTracing, container)

	if err := config.CloseDatabase(db); err != nil {
		log.Printf("❌ Error closing database: %v", err)
	}
	log.Println("✅ Stopped gracefully")
}

// gracefulShutdown waits for running jobs, then flushes traces
func gracefulShutdown(cronService *services.CronService, shutdownTracing telemetry.ShutdownFunc, container *app.Container) {
	log.Println("🛑 Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cronService != nil {
		if err := cronService.Stop(ctx); err != nil {
			log.Printf("⚠️ Maintenance jobs still running at shutdown: %v", err)
		}
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Printf("❌ Error flushing traces: %v", err)
	}
	container.Logger.Info("shutdown complete")
}
