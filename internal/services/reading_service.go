package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"aqi-platform/internal/config"
	"aqi-platform/internal/models"
	"aqi-platform/internal/store"
	"aqi-platform/pkg/logging"
)

// ReadingService serves stored readings: current values, history windows,
// and per-city statistics. AQI classification happens here, on the way out.
type ReadingService struct {
	cfg    *config.Config
	store  store.Store
	logger *logging.StructuredLogger
}

// NewReadingService creates a new reading service
func NewReadingService(cfg *config.Config, st store.Store, logger *logging.StructuredLogger) *ReadingService {
	return &ReadingService{
		cfg:    cfg,
		store:  st,
		logger: logger,
	}
}

// Cities returns the configured city set in sorted order
func (s *ReadingService) Cities() []string {
	cities := make([]string, len(s.cfg.Cities))
	copy(cities, s.cfg.Cities)
	sort.Strings(cities)
	return cities
}

// resolve maps a request city to its canonical configured name
func (s *ReadingService) resolve(city string) (string, error) {
	canonical, ok := s.cfg.KnownCity(city)
	if !ok {
		return "", &models.UnknownCityError{City: city}
	}
	return canonical, nil
}

// Current returns the latest classified reading for a city
func (s *ReadingService) Current(ctx context.Context, city string) (models.CurrentReading, error) {
	canonical, err := s.resolve(city)
	if err != nil {
		return models.CurrentReading{}, err
	}

	latest, err := s.store.Latest(ctx, canonical)
	if errors.Is(err, store.ErrNotFound) {
		return models.CurrentReading{}, &models.NoDataError{City: canonical}
	}
	if err != nil {
		return models.CurrentReading{}, err
	}

	return models.ClassifyReading(latest), nil
}

// History returns classified readings for the trailing window, anchored at
// the city's latest reading. At most limit points are returned, keeping the
// most recent when truncating.
func (s *ReadingService) History(ctx context.Context, city string, hours, limit int) ([]models.HistoryPoint, error) {
	canonical, err := s.resolve(city)
	if err != nil {
		return nil, err
	}

	latest, err := s.store.Latest(ctx, canonical)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &models.NoDataError{City: canonical}
	}
	if err != nil {
		return nil, err
	}

	from := latest.Timestamp.Add(-time.Duration(hours) * time.Hour)

	readings, err := s.store.Query(ctx, canonical, from, latest.Timestamp)
	if err != nil {
		return nil, err
	}
	if len(readings) > limit {
		readings = readings[len(readings)-limit:]
	}

	points := make([]models.HistoryPoint, len(readings))
	for i, r := range readings {
		c := models.ClassifyReading(r)
		points[i] = models.HistoryPoint{
			Datetime:    c.Datetime,
			PM25Value:   c.PM25Value,
			AQIValue:    c.AQIValue,
			AQICategory: c.AQICategory,
		}
	}
	return points, nil
}

// Stats returns aggregate statistics over a city's full stored series
func (s *ReadingService) Stats(ctx context.Context, city string) (models.CityStats, error) {
	canonical, err := s.resolve(city)
	if err != nil {
		return models.CityStats{}, err
	}

	stats, err := s.store.Stats(ctx, canonical)
	if errors.Is(err, store.ErrNotFound) {
		return models.CityStats{}, &models.NoDataError{City: canonical}
	}
	if err != nil {
		return models.CityStats{}, err
	}
	return stats, nil
}

// AllCurrent returns the latest classified reading for every configured
// city that has data. Cities without data are omitted rather than failing
// the whole response.
func (s *ReadingService) AllCurrent(ctx context.Context) ([]models.CurrentReading, error) {
	readings := make([]models.CurrentReading, 0, len(s.cfg.Cities))

	for _, city := range s.Cities() {
		current, err := s.Current(ctx, city)
		if err != nil {
			var noData *models.NoDataError
			if errors.As(err, &noData) {
				continue
			}
			return nil, err
		}
		readings = append(readings, current)
	}
	return readings, nil
}
