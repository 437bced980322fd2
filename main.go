package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/applens/privacy-backend/config"
	"github.com/applens/privacy-backend/database"
	"github.com/applens/privacy-backend/handlers"
	"github.com/applens/privacy-backend/jobs"
	"github.com/applens/privacy-backend/models"
	"github.com/applens/privacy-backend/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load config
	cfg := config.LoadConfig()

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	// Connect to database; without one the pipeline still runs on an
	// in-memory record store, losing persistence across restarts.
	var recordStore services.RecordStore
	if cfg.DatabaseURL != "" {
		if err := database.Connect(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := database.Bootstrap(ctx); err != nil {
			cancel()
			log.Fatalf("Failed to bootstrap database schema: %v", err)
		}
		cancel()

		recordStore = services.NewPostgresRecordStore(database.DB)
	} else {
		logrus.Warn("DATABASE_URL not set, caching privacy records in memory only")
		recordStore = services.NewMemoryRecordStore()
	}

	// Initialize pipeline services
	chartConfig := services.NewDefaultChartServiceConfig()
	chartConfig.Country = cfg.FeedCountry
	chartConfig.ChartSize = cfg.GetChartSize()
	chartService := services.NewChartService(chartConfig)

	extractorConfig := services.NewDefaultLabelExtractorConfig()
	extractorConfig.Country = cfg.FeedCountry
	labelExtractor := services.NewPrivacyLabelExtractor(extractorConfig)

	recordService := services.NewRecordService(recordStore, labelExtractor, cfg.GetRecordTTL())
	recordService.SetDeveloperSiteLookup(chartService)
	scorer := services.NewIntensityScorer()
	mergeService := services.NewMergeService(scorer)
	iconService := services.NewIconService()

	logrus.Info("Privacy pipeline services initialized:")
	logrus.Infof("  - Label extractor (page timeout: %v, retry timeout: %v)",
		extractorConfig.PageLoadTimeout, extractorConfig.RetryTimeout)
	logrus.Infof("  - Record service (TTL: %v)", cfg.GetRecordTTL())
	logrus.Infof("  - Chart service (country: %s, size: %d)", chartConfig.Country, chartConfig.ChartSize)

	// Initialize jobs
	refreshJob := jobs.NewBoardRefreshJob(chartService, recordService, mergeService, iconService,
		models.DefaultBoards, cfg.GetExtractionConcurrency(), cfg.SnapshotPath)
	cleanupJob := jobs.NewCacheCleanupJob(recordService)

	// Initialize handlers
	chartsHandler := handlers.NewChartsHandler(refreshJob)
	privacyHandler := handlers.NewPrivacyHandler(recordService, scorer)
	adminHandler := handlers.NewAdminHandler(refreshJob, chartService, recordService)

	// Start background jobs
	refreshJob.Start(cfg.GetRefreshInterval())
	go func() {
		cleanupTicker := time.NewTicker(12 * time.Hour)
		for range cleanupTicker.C {
			cleanupJob.Run()
		}
	}()

	// Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	// Routes
	api := app.Group("/api/v1")

	api.Get("/charts", chartsHandler.GetCharts)
	api.Get("/snapshot", chartsHandler.GetSnapshot)
	api.Get("/apps/:id/score", privacyHandler.GetAppScore)
	api.Get("/apps/:id", privacyHandler.GetApp)

	// Admin Routes
	admin := api.Group("/admin")
	if cfg.AdminToken != "" {
		admin.Use(func(c *fiber.Ctx) error {
			if c.Get("X-Admin-Token") != cfg.AdminToken {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"success": false,
					"error":   "unauthorized",
				})
			}
			return c.Next()
		})
	}
	admin.Post("/refresh", adminHandler.TriggerRefresh)
	admin.Get("/metrics", adminHandler.GetMetrics)

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logrus.Info("Shutdown signal received")
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("Server shutdown failed: %v", err)
		}
	}()

	// Start server
	log.Printf("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}

	// Final metrics summaries and connection cleanup
	chartService.Shutdown()
	recordService.Metrics().LogSummary()
	labelExtractor.Metrics().LogSummary()
}
