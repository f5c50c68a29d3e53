package server

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/snowfall-analytics/snowfall-ingest/internal/ingest"
	"github.com/snowfall-analytics/snowfall-ingest/pkg/config"
	"go.uber.org/zap"
)

// Refresher periodically re-ingests the trailing window so the served
// tables stay current. Re-running over already-ingested days is safe
// because day writes are idempotent upserts.
type Refresher struct {
	scheduler    *gocron.Scheduler
	orchestrator *ingest.Orchestrator
	stations     []config.StationData
	interval     time.Duration
	days         int
	logger       *zap.SugaredLogger
}

// NewRefresher creates a refresher for the given stations
func NewRefresher(orchestrator *ingest.Orchestrator, stations []config.StationData, cfg config.ServerData, logger *zap.SugaredLogger) *Refresher {
	return &Refresher{
		scheduler:    gocron.NewScheduler(time.UTC),
		orchestrator: orchestrator,
		stations:     stations,
		interval:     cfg.RefreshInterval,
		days:         cfg.RefreshDays,
		logger:       logger,
	}
}

// Start schedules the periodic refresh job and starts the scheduler
func (r *Refresher) Start() error {
	if r.interval <= 0 {
		r.logger.Info("no refresh interval configured; serving static data")
		return nil
	}

	_, err := r.scheduler.Every(r.interval).Do(func() {
		end := time.Now().UTC().Truncate(24 * time.Hour)
		window := config.WindowData{
			StartDate: end.AddDate(0, 0, -r.days),
			EndDate:   end,
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()

		summary, err := r.orchestrator.Run(ctx, r.stations, window)
		if err != nil {
			r.logger.Errorf("refresh run failed: %v", err)
			return
		}
		if !summary.OK() {
			r.logger.Warnf("refresh run %s: %d of %d units failed",
				summary.RunID, len(summary.Failed), len(summary.Failed)+len(summary.Succeeded))
		}
	})
	if err != nil {
		return err
	}

	r.scheduler.StartAsync()
	r.logger.Infof("scheduled refresh of trailing %d days every %s", r.days, r.interval)
	return nil
}

// Stop stops the scheduler and cancels any future jobs
func (r *Refresher) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
}
