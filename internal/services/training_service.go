package services

import (
	"context"
	"time"

	"aqi-platform/internal/config"
	"aqi-platform/internal/forecast"
	"aqi-platform/internal/models"
	"aqi-platform/internal/store"
	"aqi-platform/pkg/logging"
	"aqi-platform/pkg/metrics"
)

// TrainingService fits forecast models from stored history and publishes
// them to the registry. Training failures are soft: a city that cannot be
// retrained keeps serving forecasts from its previous model.
type TrainingService struct {
	cfg      *config.Config
	store    store.Store
	registry *forecast.Registry
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// TrainingResult contains statistics for one training run
type TrainingResult struct {
	Trained  []string
	Skipped  []string
	Duration time.Duration
}

// NewTrainingService creates a new training service
func NewTrainingService(cfg *config.Config, st store.Store, registry *forecast.Registry, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *TrainingService {
	return &TrainingService{
		cfg:      cfg,
		store:    st,
		registry: registry,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// TrainCity fits, persists, and publishes a model for one city
func (s *TrainingService) TrainCity(ctx context.Context, city string) error {
	startTime := time.Now()

	to := time.Now().UTC().Add(time.Hour)
	from := to.AddDate(0, 0, -s.cfg.OpenAQ.WindowDays)

	history, err := s.store.Query(ctx, city, from, to)
	if err != nil {
		s.metrics.TrainingFailuresTotal.WithLabelValues("query_error").Inc()
		return err
	}
	if len(history) < s.cfg.Forecast.MinTrainingHours {
		s.metrics.TrainingFailuresTotal.WithLabelValues("insufficient_data").Inc()
		s.logger.Warn(ctx, "[TRAIN_SKIP] Insufficient history for city", logging.Fields{
			"city":     city,
			"readings": len(history),
			"required": s.cfg.Forecast.MinTrainingHours,
		})
		return &models.ModelNotTrainedError{City: city}
	}

	model, err := forecast.Fit(city, history)
	if err != nil {
		s.metrics.TrainingFailuresTotal.WithLabelValues("fit_error").Inc()
		return err
	}

	artifact, err := model.Marshal()
	if err != nil {
		s.metrics.TrainingFailuresTotal.WithLabelValues("marshal_error").Inc()
		return err
	}
	if err := s.store.SaveArtifact(ctx, artifact); err != nil {
		s.metrics.TrainingFailuresTotal.WithLabelValues("persist_error").Inc()
		return err
	}

	s.registry.Publish(model)
	s.metrics.ModelsPublished.Set(float64(s.registry.Count()))
	s.metrics.TrainingDuration.WithLabelValues(city).Observe(time.Since(startTime).Seconds())

	s.logger.Info(ctx, "[TRAIN_SUCCESS] Model trained and published", logging.Fields{
		"city":         city,
		"samples":      model.Samples,
		"window_start": model.WindowStart,
		"window_end":   model.WindowEnd,
	})

	return nil
}

// TrainAll trains every configured city. A city that fails keeps its
// previously published model and is reported as skipped.
func (s *TrainingService) TrainAll(ctx context.Context) *TrainingResult {
	startTime := time.Now()
	result := &TrainingResult{}

	for _, city := range s.cfg.Cities {
		if err := s.TrainCity(ctx, city); err != nil {
			result.Skipped = append(result.Skipped, city)
			s.logger.Error(ctx, "[TRAIN_CITY_ERROR] Training failed, keeping previous model", logging.Fields{
				"city": city,
			}, err)
			continue
		}
		result.Trained = append(result.Trained, city)
	}

	result.Duration = time.Since(startTime)
	s.logger.Info(ctx, "[TRAIN_COMPLETE] Training run completed", logging.Fields{
		"trained":          len(result.Trained),
		"skipped":          len(result.Skipped),
		"duration_seconds": result.Duration.Seconds(),
	})

	return result
}

// RestoreModels loads persisted artifacts into the registry at startup so
// forecasts survive a restart without waiting for the next training run.
func (s *TrainingService) RestoreModels(ctx context.Context) error {
	artifacts, err := s.store.Artifacts(ctx)
	if err != nil {
		return err
	}

	restored := 0
	for _, artifact := range artifacts {
		model, err := forecast.Unmarshal(artifact)
		if err != nil {
			s.logger.Error(ctx, "[TRAIN_RESTORE_ERROR] Discarding unreadable artifact", logging.Fields{
				"city": artifact.City,
			}, err)
			continue
		}
		s.registry.Publish(model)
		restored++
	}

	s.metrics.ModelsPublished.Set(float64(s.registry.Count()))
	s.logger.Info(ctx, "[TRAIN_RESTORE] Restored persisted models", logging.Fields{
		"restored": restored,
	})

	return nil
}
