package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aqi-platform/internal/config"
	"aqi-platform/internal/forecast"
	"aqi-platform/internal/handlers"
	"aqi-platform/internal/openaq"
	"aqi-platform/internal/repository"
	"aqi-platform/internal/scheduler"
	"aqi-platform/internal/services"
	"aqi-platform/pkg/database"
	"aqi-platform/pkg/logging"
	"aqi-platform/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewStructuredLogger("aqi-api", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting air quality platform API server", logging.Fields{
		"version":     "1.0.0",
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_host":     cfg.Database.Host,
		"db_name":     cfg.Database.Database,
		"cities":      len(cfg.Cities),
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("aqi_platform")

	// Initialize database
	dbConfig := &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}

	db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	// Initialize store and model registry
	st := repository.NewReadingRepository(db, logger, metricsCollector)
	registry := forecast.NewRegistry()

	// Initialize services
	provider := openaq.NewClient(cfg.OpenAQ, logger, metricsCollector)
	ingestionService := services.NewIngestionService(cfg, provider, st, logger, metricsCollector)
	trainingService := services.NewTrainingService(cfg, st, registry, logger, metricsCollector)
	readingService := services.NewReadingService(cfg, st, logger)
	forecastService := services.NewForecastService(cfg, registry, logger, metricsCollector)

	// Restore persisted models so forecasts serve immediately
	if err := trainingService.RestoreModels(ctx); err != nil {
		logger.Error(ctx, "[STARTUP_ERROR] Failed to restore persisted models", logging.Fields{}, err)
	}

	// Start the periodic ingest-and-retrain cycle
	sched := scheduler.New(cfg, ingestionService, trainingService, logger)
	if err := sched.Start(); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to start scheduler", logging.Fields{}, err)
	}
	defer sched.Stop()

	// Initialize handlers
	aqiHandler := handlers.NewAQIHandler(readingService, forecastService, db, logger, metricsCollector)

	// Setup router
	router := mux.NewRouter()
	aqiHandler.RegisterRoutes(router)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
