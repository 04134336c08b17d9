package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"platform-core/internal/audit"
	"platform-core/internal/cache"
	"platform-core/internal/config"
	"platform-core/internal/configstore"
	"platform-core/internal/core"
	"platform-core/internal/flags"
	"platform-core/internal/health"
	"platform-core/internal/logging"
	"platform-core/internal/notifications"
	"platform-core/internal/storage"
	"platform-core/internal/store"
	"platform-core/internal/webhooks"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db driver: %s)", cfg.Server.Port, cfg.Database.Driver)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap platform tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap platform tables: %v", err)
	}

	// 4. Connect to Redis (optional)
	redisCache, err := cache.New(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()
	if redisCache.Enabled() {
		log.Println("Redis connected")
	} else {
		log.Println("Redis disabled, cache and pub-sub are no-ops")
	}

	// 5. Wire services
	deliverer := webhooks.NewDeliverer(db, cfg.Webhooks)
	webhookSvc := webhooks.NewService(db, deliverer)
	auditSvc := audit.NewService(db, webhookSvc)
	recorder := audit.NewRecorder(auditSvc)
	configSvc := configstore.NewService(db, redisCache, recorder, webhookSvc)
	flagSvc := flags.NewService(db, redisCache, recorder, webhookSvc)
	logSvc := logging.NewService(db, storage.NewArchive(cfg.Storage.ExportPath))
	notificationSvc := notifications.NewService(db, redisCache)

	// 6. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: core.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 7. Health checks
	health.RegisterRoutes(app, health.NewHandler(db, redisCache))

	// 8. API routes
	api := app.Group("/api/v1")
	configstore.RegisterRoutes(api, configstore.NewHandler(configSvc))
	audit.RegisterRoutes(api, audit.NewHandler(auditSvc))
	flags.RegisterRoutes(api, flags.NewHandler(flagSvc))
	logging.RegisterRoutes(api, logging.NewHandler(logSvc))
	notifications.RegisterRoutes(api, notifications.NewHandler(notificationSvc))
	webhooks.RegisterRoutes(api, webhooks.NewHandler(webhookSvc))

	// 9. Start webhook retry scheduler
	scheduler := webhooks.NewScheduler(webhookSvc, time.Duration(cfg.Webhooks.RetrySweepSeconds)*time.Second)
	scheduler.Start()
	defer scheduler.Stop()

	// 10. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}
