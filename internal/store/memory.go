package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"aqi-platform/internal/aqi"
	"aqi-platform/internal/models"
)

// series holds one city's time-ordered readings plus a timestamp index for
// O(1) duplicate checks.
type series struct {
	readings []models.SensorReading
	byTS     map[int64]struct{}
}

// MemoryStore is a concurrency-safe in-memory Store. It backs tests and
// database-less runs; production uses the Postgres implementation.
type MemoryStore struct {
	mu        sync.RWMutex
	data      map[string]*series
	artifacts map[string]models.ModelArtifact
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:      make(map[string]*series),
		artifacts: make(map[string]models.ModelArtifact),
	}
}

// Append merges readings into the city's series. Writes for one city are
// serialized by the store lock; readers never observe a partial batch.
func (s *MemoryStore) Append(ctx context.Context, city string, readings []models.SensorReading) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ser, ok := s.data[city]
	if !ok {
		ser = &series{byTS: make(map[int64]struct{})}
		s.data[city] = ser
	}

	added := 0
	for _, r := range readings {
		r = r.Normalize()
		if err := r.Validate(); err != nil {
			// One bad row must not abort the batch.
			continue
		}

		key := r.Timestamp.Unix()
		if _, dup := ser.byTS[key]; dup {
			continue
		}
		ser.byTS[key] = struct{}{}

		// Pages usually arrive in order; fall back to a sorted insert when
		// overlapping windows deliver an older timestamp.
		n := len(ser.readings)
		if n == 0 || ser.readings[n-1].Timestamp.Before(r.Timestamp) {
			ser.readings = append(ser.readings, r)
		} else {
			i := sort.Search(n, func(j int) bool {
				return ser.readings[j].Timestamp.After(r.Timestamp)
			})
			ser.readings = append(ser.readings, models.SensorReading{})
			copy(ser.readings[i+1:], ser.readings[i:])
			ser.readings[i] = r
		}
		added++
	}

	return added, nil
}

// Query returns a copy of the readings in [from, to], ascending.
func (s *MemoryStore) Query(ctx context.Context, city string, from, to time.Time) ([]models.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.data[city]
	if !ok || len(ser.readings) == 0 {
		return []models.SensorReading{}, nil
	}

	lo := sort.Search(len(ser.readings), func(i int) bool {
		return !ser.readings[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(ser.readings), func(i int) bool {
		return ser.readings[i].Timestamp.After(to)
	})

	if lo >= hi {
		return []models.SensorReading{}, nil
	}

	out := make([]models.SensorReading, hi-lo)
	copy(out, ser.readings[lo:hi])
	return out, nil
}

// Latest returns the newest reading for the city.
func (s *MemoryStore) Latest(ctx context.Context, city string) (models.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.data[city]
	if !ok || len(ser.readings) == 0 {
		return models.SensorReading{}, ErrNotFound
	}
	return ser.readings[len(ser.readings)-1], nil
}

// Stats summarizes the city's full series, classifying each reading.
func (s *MemoryStore) Stats(ctx context.Context, city string) (models.CityStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.data[city]
	if !ok || len(ser.readings) == 0 {
		return models.CityStats{}, ErrNotFound
	}

	stats := models.CityStats{
		City:                 city,
		TotalReadings:        len(ser.readings),
		CategoryDistribution: make(map[aqi.Category]int),
		MinPM25:              ser.readings[0].PM25,
	}

	var sumAQI, sumPM25 float64
	first := true
	for _, r := range ser.readings {
		value, category := aqi.Classify(r.PM25)
		stats.CategoryDistribution[category]++
		sumAQI += float64(value)
		sumPM25 += r.PM25

		if first {
			stats.MinAQI, stats.MaxAQI = value, value
			stats.MinPM25, stats.MaxPM25 = r.PM25, r.PM25
			first = false
			continue
		}
		if value > stats.MaxAQI {
			stats.MaxAQI = value
		}
		if value < stats.MinAQI {
			stats.MinAQI = value
		}
		if r.PM25 > stats.MaxPM25 {
			stats.MaxPM25 = r.PM25
		}
		if r.PM25 < stats.MinPM25 {
			stats.MinPM25 = r.PM25
		}
	}

	n := float64(stats.TotalReadings)
	stats.AvgAQI = sumAQI / n
	stats.AvgPM25 = sumPM25 / n
	return stats, nil
}

// SaveArtifact atomically replaces the city's artifact.
func (s *MemoryStore) SaveArtifact(ctx context.Context, artifact models.ModelArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[artifact.City] = artifact
	return nil
}

// Artifact returns the current artifact for the city.
func (s *MemoryStore) Artifact(ctx context.Context, city string) (models.ModelArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifact, ok := s.artifacts[city]
	if !ok {
		return models.ModelArtifact{}, ErrNotFound
	}
	return artifact, nil
}

// Artifacts returns all persisted artifacts.
func (s *MemoryStore) Artifacts(ctx context.Context) ([]models.ModelArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ModelArtifact, 0, len(s.artifacts))
	for _, artifact := range s.artifacts {
		out = append(out, artifact)
	}
	return out, nil
}
