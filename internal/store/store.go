package store

import (
	"context"
	"errors"
	"time"

	"aqi-platform/internal/models"
)

// ErrNotFound is returned when no data exists for the requested city.
var ErrNotFound = errors.New("not found")

// Store is the contract for per-city time series and model artifact
// persistence. Series are append-only: entries are never mutated, only
// appended or rejected during overlapping ingestion (idempotent merge on the
// (city, timestamp) key). Range reads observe a consistent snapshot.
type Store interface {
	// Append merges readings into the city's series and returns how many
	// were actually added. Duplicate timestamps are silently ignored;
	// readings with out-of-range concentrations are rejected individually
	// without aborting the batch.
	Append(ctx context.Context, city string, readings []models.SensorReading) (int, error)

	// Query returns the readings in [from, to], ascending by timestamp.
	Query(ctx context.Context, city string, from, to time.Time) ([]models.SensorReading, error)

	// Latest returns the newest reading for the city, or ErrNotFound.
	Latest(ctx context.Context, city string) (models.SensorReading, error)

	// Stats summarizes the full stored series for the city, or ErrNotFound.
	Stats(ctx context.Context, city string) (models.CityStats, error)

	// SaveArtifact atomically replaces the city's model artifact.
	SaveArtifact(ctx context.Context, artifact models.ModelArtifact) error

	// Artifact returns the current model artifact for the city, or ErrNotFound.
	Artifact(ctx context.Context, city string) (models.ModelArtifact, error)

	// Artifacts returns all persisted model artifacts.
	Artifacts(ctx context.Context) ([]models.ModelArtifact, error)
}
