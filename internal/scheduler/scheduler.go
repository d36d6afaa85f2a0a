// Package scheduler drives the periodic ingest-then-retrain cycle.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"aqi-platform/internal/config"
	"aqi-platform/internal/services"
	"aqi-platform/pkg/logging"
)

// Scheduler runs ingestion followed by model training on a fixed interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cfg       *config.Config
	ingestion *services.IngestionService
	training  *services.TrainingService
	logger    *logging.StructuredLogger
}

// New creates a new scheduler
func New(cfg *config.Config, ingestion *services.IngestionService, training *services.TrainingService, logger *logging.StructuredLogger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		cfg:       cfg,
		ingestion: ingestion,
		training:  training,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// Each cycle ingests the trailing window for every city, then retrains
// whatever models it can; a failed cycle leaves previous state serving.
func (s *Scheduler) Start() error {
	interval := s.cfg.Scheduler.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	_, err := s.scheduler.Every(interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()

		s.logger.Info(ctx, "[SCHED_CYCLE_START] Running ingest and retrain cycle", logging.Fields{
			"cities": len(s.cfg.Cities),
		})

		result, err := s.ingestion.IngestAll(ctx, s.cfg.OpenAQ.WindowDays)
		if err != nil {
			s.logger.Error(ctx, "[SCHED_INGEST_ERROR] Ingestion cycle failed", logging.Fields{}, err)
			return
		}

		training := s.training.TrainAll(ctx)

		s.logger.Info(ctx, "[SCHED_CYCLE_COMPLETE] Cycle completed", logging.Fields{
			"stored":  result.TotalStored,
			"trained": len(training.Trained),
			"skipped": len(training.Skipped),
		})
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info(context.Background(), "[SCHED_START] Scheduler started", logging.Fields{
		"interval": interval.String(),
	})
	return nil
}

// Stop stops the scheduler and cancels any future jobs
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
