package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aqi-platform/internal/config"
	"aqi-platform/internal/models"
	"aqi-platform/internal/openaq"
	"aqi-platform/internal/store"
	"aqi-platform/pkg/logging"
	"aqi-platform/pkg/metrics"
)

// IngestionService pulls hourly PM2.5 readings from the external provider
// and appends them to the store, one independent run per configured city.
type IngestionService struct {
	cfg      *config.Config
	provider openaq.Provider
	store    store.Store
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// CityIngestionResult contains per-city ingestion statistics
type CityIngestionResult struct {
	City     string
	Sensors  int
	Fetched  int
	Stored   int
	Duration time.Duration
	Err      error
}

// IngestionResult contains statistics for one full ingestion run
type IngestionResult struct {
	Cities       []CityIngestionResult
	TotalStored  int
	FailedCities int
	Duration     time.Duration
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(cfg *config.Config, provider openaq.Provider, st store.Store, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		cfg:      cfg,
		provider: provider,
		store:    st,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// IngestAll runs one ingestion pass over every configured city. Cities run
// concurrently and fail independently; one city's provider outage never
// blocks the others.
func (s *IngestionService) IngestAll(ctx context.Context, windowDays int) (*IngestionResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[INGEST_START] Starting ingestion run", logging.Fields{
		"cities":      len(s.cfg.Cities),
		"window_days": windowDays,
	})

	results := make([]CityIngestionResult, len(s.cfg.Cities))
	var wg sync.WaitGroup

	for i, city := range s.cfg.Cities {
		wg.Add(1)
		go func(i int, city string) {
			defer wg.Done()
			results[i] = s.ingestCity(ctx, city, windowDays)
		}(i, city)
	}
	wg.Wait()

	result := &IngestionResult{
		Cities:   results,
		Duration: time.Since(startTime),
	}
	for _, r := range results {
		result.TotalStored += r.Stored
		if r.Err != nil {
			result.FailedCities++
		}
	}

	s.logger.Info(ctx, "[INGEST_COMPLETE] Ingestion run completed", logging.Fields{
		"total_stored":     result.TotalStored,
		"failed_cities":    result.FailedCities,
		"duration_seconds": result.Duration.Seconds(),
	})

	if result.FailedCities == len(s.cfg.Cities) {
		return result, fmt.Errorf("ingestion failed for all %d cities", len(s.cfg.Cities))
	}
	return result, nil
}

// ingestCity fetches and stores the window for one city. Any failure is
// wrapped in an IngestionError and confined to this city's result.
func (s *IngestionService) ingestCity(ctx context.Context, city string, windowDays int) CityIngestionResult {
	startTime := time.Now()
	result := CityIngestionResult{City: city}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -windowDays)

	sensors, err := s.provider.Sensors(ctx, city)
	if err != nil {
		result.Err = &models.IngestionError{City: city, Attempts: 1, Err: err}
		result.Duration = time.Since(startTime)
		s.logger.Error(ctx, "[INGEST_CITY_ERROR] Sensor discovery failed", logging.Fields{
			"city": city,
		}, err)
		return result
	}
	result.Sensors = len(sensors)

	if len(sensors) == 0 {
		s.logger.Warn(ctx, "[INGEST_CITY_EMPTY] No matching sensors for city", logging.Fields{
			"city": city,
		})
		result.Duration = time.Since(startTime)
		return result
	}

	for _, sensor := range sensors {
		err := s.provider.Measurements(ctx, city, sensor.ID, from, to, func(page []models.SensorReading) error {
			result.Fetched += len(page)
			stored, appendErr := s.store.Append(ctx, city, page)
			if appendErr != nil {
				return appendErr
			}
			result.Stored += stored
			return nil
		})
		if err != nil {
			result.Err = &models.IngestionError{City: city, Attempts: 1, Err: err}
			s.logger.Error(ctx, "[INGEST_CITY_ERROR] Measurement fetch failed", logging.Fields{
				"city":      city,
				"sensor_id": sensor.ID,
			}, err)
			break
		}
	}

	result.Duration = time.Since(startTime)
	s.metrics.IngestionDuration.WithLabelValues(city).Observe(result.Duration.Seconds())

	if result.Err == nil {
		s.logger.Info(ctx, "[INGEST_CITY_SUCCESS] City ingested", logging.Fields{
			"city":             city,
			"sensors":          result.Sensors,
			"fetched":          result.Fetched,
			"stored":           result.Stored,
			"duration_seconds": result.Duration.Seconds(),
		})
	}
	return result
}
