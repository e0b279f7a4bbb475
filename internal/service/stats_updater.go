package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StatsUpdater periodically refreshes dashboard summaries and prunes old
// delivered/resolved rows.
type StatsUpdater struct {
	monitoringService *MonitoringService
	logger            *zap.Logger
	retentionDays     int
	ticker            *time.Ticker
	done              chan bool
}

func NewStatsUpdater(monitoringService *MonitoringService, logger *zap.Logger, interval time.Duration, retentionDays int) *StatsUpdater {
	return &StatsUpdater{
		monitoringService: monitoringService,
		logger:            logger,
		retentionDays:     retentionDays,
		ticker:            time.NewTicker(interval),
		done:              make(chan bool),
	}
}

// Start begins the periodic stats update process
func (s *StatsUpdater) Start(ctx context.Context) {
	go func() {
		s.logger.Info("Starting stats updater")
		for {
			select {
			case <-s.done:
				s.logger.Info("Stats updater stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Stats updater stopped due to context cancellation")
				return
			case <-s.ticker.C:
				s.updateStats(ctx)
			}
		}
	}()
}

// Stop stops the stats updater
func (s *StatsUpdater) Stop() {
	s.ticker.Stop()
	close(s.done)
}

func (s *StatsUpdater) updateStats(ctx context.Context) {
	s.logger.Debug("Updating dashboard summaries")

	if err := s.monitoringService.UpdateDashboardSummaries(ctx); err != nil {
		s.logger.Error("Failed to update dashboard summaries", zap.Error(err))
	}

	if err := s.monitoringService.CleanupOldData(s.retentionDays); err != nil {
		s.logger.Error("Failed to cleanup old data", zap.Error(err))
	}

	s.logger.Debug("Dashboard summaries updated")
}
