package services

import (
	"fmt"

	"aqi-platform/internal/config"
	"aqi-platform/internal/forecast"
	"aqi-platform/internal/models"
	"aqi-platform/pkg/logging"
	"aqi-platform/pkg/metrics"
)

// ForecastService serves hourly forecasts from published models. Forecasts
// are computed per request and never persisted.
type ForecastService struct {
	cfg      *config.Config
	registry *forecast.Registry
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// DaysOutOfRangeError reports a forecast horizon outside the allowed range
type DaysOutOfRangeError struct {
	Days int
	Max  int
}

func (e *DaysOutOfRangeError) Error() string {
	return fmt.Sprintf("forecast horizon %d days out of range [1, %d]", e.Days, e.Max)
}

// NewForecastService creates a new forecast service
func NewForecastService(cfg *config.Config, registry *forecast.Registry, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ForecastService {
	return &ForecastService{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// Forecast returns days*24 hourly points for a city, starting one hour
// after the model's last training observation.
func (s *ForecastService) Forecast(city string, days int) ([]models.ForecastPoint, error) {
	canonical, ok := s.cfg.KnownCity(city)
	if !ok {
		s.metrics.ForecastRequestsTotal.WithLabelValues(city, "unknown_city").Inc()
		return nil, &models.UnknownCityError{City: city}
	}

	if days < 1 || days > s.cfg.Forecast.MaxDays {
		s.metrics.ForecastRequestsTotal.WithLabelValues(canonical, "bad_horizon").Inc()
		return nil, &DaysOutOfRangeError{Days: days, Max: s.cfg.Forecast.MaxDays}
	}

	model, err := s.registry.Load(canonical)
	if err != nil {
		s.metrics.ForecastRequestsTotal.WithLabelValues(canonical, "not_trained").Inc()
		return nil, err
	}

	points := model.Horizon(days)
	s.metrics.ForecastRequestsTotal.WithLabelValues(canonical, "ok").Inc()
	return points, nil
}

// DefaultDays returns the horizon used when a request does not specify one
func (s *ForecastService) DefaultDays() int {
	return s.cfg.Forecast.DefaultDays
}

// ModelCount returns the number of cities with a published model
func (s *ForecastService) ModelCount() int {
	return s.registry.Count()
}
