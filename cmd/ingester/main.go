package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"aqi-platform/internal/config"
	"aqi-platform/internal/forecast"
	"aqi-platform/internal/openaq"
	"aqi-platform/internal/repository"
	"aqi-platform/internal/scheduler"
	"aqi-platform/internal/services"
	"aqi-platform/pkg/database"
	"aqi-platform/pkg/logging"
	"aqi-platform/pkg/metrics"
)

func main() {
	// Parse command-line flags
	windowDays := flag.Int("window-days", 0, "Trailing window to fetch in days (default: configured window)")
	train := flag.Bool("train", false, "Train forecast models after ingestion")
	schedule := flag.Bool("schedule", false, "Keep running and repeat on the configured interval")
	flag.Parse()

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

	if *windowDays <= 0 {
		*windowDays = cfg.OpenAQ.WindowDays
	}

	// Initialize logger
	logger := logging.NewStructuredLogger("aqi-ingester", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[INGESTER_START] Starting air quality ingestion", logging.Fields{
		"version":     "1.0.0",
		"window_days": *windowDays,
		"train":       *train,
		"schedule":    *schedule,
		"cities":      len(cfg.Cities),
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("aqi_ingester")

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
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	// Initialize store, provider, and services
	st := repository.NewReadingRepository(db, logger, metricsCollector)
	registry := forecast.NewRegistry()
	provider := openaq.NewClient(cfg.OpenAQ, logger, metricsCollector)
	ingestionService := services.NewIngestionService(cfg, provider, st, logger, metricsCollector)
	trainingService := services.NewTrainingService(cfg, st, registry, logger, metricsCollector)

	if *schedule {
		sched := scheduler.New(cfg, ingestionService, trainingService, logger)
		if err := sched.Start(); err != nil {
			logger.Fatal(ctx, "[INGESTER_ERROR] Failed to start scheduler", logging.Fields{}, err)
		}
		defer sched.Stop()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info(ctx, "[INGESTER_STOP] Scheduler stopped", logging.Fields{})
		return
	}

	// One-shot ingestion
	result, err := ingestionService.IngestAll(ctx, *windowDays)
	if err != nil {
		logger.Fatal(ctx, "[INGESTION_ERROR] Ingestion failed", logging.Fields{}, err)
	}

	// Print results
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Total Stored:  %d\n", result.TotalStored)
	fmt.Printf("Failed Cities: %d\n", result.FailedCities)
	fmt.Printf("Duration:      %v\n", result.Duration)
	for _, r := range result.Cities {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		}
		fmt.Printf("  %-12s sensors=%-3d fetched=%-6d stored=%-6d %s\n",
			r.City, r.Sensors, r.Fetched, r.Stored, status)
	}

	// Train models if requested
	if *train {
		fmt.Println("\n" + strings.Repeat("=", 80))
		fmt.Println("TRAINING FORECAST MODELS")
		fmt.Println(strings.Repeat("=", 80))

		training := trainingService.TrainAll(ctx)
		fmt.Printf("Trained: %v\n", training.Trained)
		if len(training.Skipped) > 0 {
			fmt.Printf("Skipped: %v\n", training.Skipped)
		}
	}

	logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion completed", logging.Fields{
		"total_stored":     result.TotalStored,
		"failed_cities":    result.FailedCities,
		"duration_seconds": result.Duration.Seconds(),
	})
}
