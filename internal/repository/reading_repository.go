package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"aqi-platform/internal/aqi"
	"aqi-platform/internal/models"
	"aqi-platform/internal/store"
	"aqi-platform/pkg/database"
	"aqi-platform/pkg/logging"
	"aqi-platform/pkg/metrics"
)

// readingRepository implements store.Store on PostgreSQL. Readings are
// append-only; the (city, ts) unique constraint makes re-ingestion of an
// overlapping window a no-op for rows already present.
type readingRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewReadingRepository creates a PostgreSQL-backed reading store
func NewReadingRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) store.Store {
	return &readingRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Append inserts the batch in a single transaction and returns the number of
// rows actually added. Rows that fail validation are dropped individually;
// rows whose (city, ts) already exists are skipped by the conflict clause so
// the first stored value wins.
func (r *readingRepository) Append(ctx context.Context, city string, readings []models.SensorReading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	timer := time.Now()
	defer func() {
		r.metrics.IngestionBatchSize.Observe(float64(len(readings)))
		r.logger.Debug(ctx, "[REPO_APPEND] Batch append completed", logging.Fields{
			"city":        city,
			"count":       len(readings),
			"duration_ms": time.Since(timer).Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pm25_readings (city, sensor_id, ts, pm25)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (city, ts) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, reading := range readings {
		reading = reading.Normalize()
		if err := reading.Validate(); err != nil {
			r.metrics.RecordRejectedReading("invalid_concentration")
			r.logger.Warn(ctx, "[REPO_APPEND] Dropping invalid reading", logging.Fields{
				"city":      city,
				"timestamp": reading.Timestamp,
				"pm25":      reading.PM25,
			})
			continue
		}

		result, err := stmt.ExecContext(ctx,
			city,
			reading.SensorID,
			reading.Timestamp,
			reading.PM25,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert reading: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read rows affected: %w", err)
		}
		added += int(rows)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.IngestionReadingsTotal.Add(float64(added))

	return added, nil
}

// Query returns readings for a city in [from, to], ordered by timestamp
func (r *readingRepository) Query(ctx context.Context, city string, from, to time.Time) ([]models.SensorReading, error) {
	query := `
		SELECT city, sensor_id, ts, pm25
		FROM pm25_readings
		WHERE city = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
	`

	var readings []models.SensorReading
	err := r.db.SelectContext(ctx, "query_readings", &readings, query, city, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}

	return readings, nil
}

// Latest returns the most recent reading for a city
func (r *readingRepository) Latest(ctx context.Context, city string) (models.SensorReading, error) {
	query := `
		SELECT city, sensor_id, ts, pm25
		FROM pm25_readings
		WHERE city = $1
		ORDER BY ts DESC
		LIMIT 1
	`

	var reading models.SensorReading
	err := r.db.GetContext(ctx, "latest_reading", &reading, query, city)

	if err == sql.ErrNoRows {
		return models.SensorReading{}, store.ErrNotFound
	}
	if err != nil {
		return models.SensorReading{}, fmt.Errorf("failed to get latest reading: %w", err)
	}

	return reading, nil
}

// Stats aggregates the full stored series for a city. Concentration bounds
// come from SQL; the AQI figures are classified per row in Go so they always
// reflect the current breakpoint table.
func (r *readingRepository) Stats(ctx context.Context, city string) (models.CityStats, error) {
	query := `
		SELECT pm25
		FROM pm25_readings
		WHERE city = $1
		ORDER BY ts ASC
	`

	var values []float64
	err := r.db.SelectContext(ctx, "city_stats", &values, query, city)
	if err != nil {
		return models.CityStats{}, fmt.Errorf("failed to load readings for stats: %w", err)
	}
	if len(values) == 0 {
		return models.CityStats{}, store.ErrNotFound
	}

	stats := models.CityStats{
		City:                 city,
		MinAQI:               aqi.MaxAQI + 1,
		MinPM25:              values[0],
		MaxPM25:              values[0],
		TotalReadings:        len(values),
		CategoryDistribution: make(map[aqi.Category]int),
	}

	var aqiSum, pm25Sum float64
	for _, pm25 := range values {
		value, category := aqi.Classify(pm25)

		aqiSum += float64(value)
		pm25Sum += pm25
		stats.CategoryDistribution[category]++

		if value > stats.MaxAQI {
			stats.MaxAQI = value
		}
		if value < stats.MinAQI {
			stats.MinAQI = value
		}
		if pm25 > stats.MaxPM25 {
			stats.MaxPM25 = pm25
		}
		if pm25 < stats.MinPM25 {
			stats.MinPM25 = pm25
		}
	}

	stats.AvgAQI = aqiSum / float64(len(values))
	stats.AvgPM25 = pm25Sum / float64(len(values))

	return stats, nil
}

// SaveArtifact stores or replaces the trained model artifact for a city
func (r *readingRepository) SaveArtifact(ctx context.Context, artifact models.ModelArtifact) error {
	query := `
		INSERT INTO model_artifacts (city, trained_at, window_start, window_end, state)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (city) DO UPDATE SET
			trained_at = EXCLUDED.trained_at,
			window_start = EXCLUDED.window_start,
			window_end = EXCLUDED.window_end,
			state = EXCLUDED.state
	`

	_, err := r.db.ExecContext(ctx, "save_artifact", query,
		artifact.City,
		artifact.TrainedAt,
		artifact.WindowStart,
		artifact.WindowEnd,
		artifact.State,
	)
	if err != nil {
		return fmt.Errorf("failed to save model artifact: %w", err)
	}

	r.logger.Info(ctx, "[REPO_SAVE_ARTIFACT] Model artifact stored", logging.Fields{
		"city":       artifact.City,
		"trained_at": artifact.TrainedAt,
	})

	return nil
}

// Artifact returns the stored model artifact for a city
func (r *readingRepository) Artifact(ctx context.Context, city string) (models.ModelArtifact, error) {
	query := `
		SELECT city, trained_at, window_start, window_end, state
		FROM model_artifacts
		WHERE city = $1
	`

	var artifact models.ModelArtifact
	err := r.db.GetContext(ctx, "get_artifact", &artifact, query, city)

	if err == sql.ErrNoRows {
		return models.ModelArtifact{}, store.ErrNotFound
	}
	if err != nil {
		return models.ModelArtifact{}, fmt.Errorf("failed to get model artifact: %w", err)
	}

	return artifact, nil
}

// Artifacts returns all stored model artifacts
func (r *readingRepository) Artifacts(ctx context.Context) ([]models.ModelArtifact, error) {
	query := `
		SELECT city, trained_at, window_start, window_end, state
		FROM model_artifacts
		ORDER BY city
	`

	var artifacts []models.ModelArtifact
	err := r.db.SelectContext(ctx, "list_artifacts", &artifacts, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list model artifacts: %w", err)
	}

	return artifacts, nil
}
