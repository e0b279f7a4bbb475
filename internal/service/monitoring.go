package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/oshitechglobal/creatordeck/internal/models"
)

// MonitoringService records failures and maintains the per-owner dashboard
// summary rows.
type MonitoringService struct {
	db       *gorm.DB
	logger   *zap.Logger
	content  *ContentService
	progress *ProgressService
}

func NewMonitoringService(db *gorm.DB, logger *zap.Logger) *MonitoringService {
	return &MonitoringService{
		db:     db,
		logger: logger,
	}
}

// Bind wires the services the summary refresh reads through. Set once at
// server construction; avoids a construction cycle with JobService.
func (m *MonitoringService) Bind(content *ContentService, progress *ProgressService) {
	m.content = content
	m.progress = progress
}

// ErrorLogOption customizes a recorded error entry.
type ErrorLogOption func(*models.ErrorLog)

func WithOwner(ownerID string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.OwnerID = ownerID
	}
}

func WithItem(itemID string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.ItemID = itemID
	}
}

func WithJob(jobID string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.JobID = jobID
	}
}

func WithContext(context map[string]interface{}) ErrorLogOption {
	return func(e *models.ErrorLog) {
		if contextBytes, err := json.Marshal(context); err == nil {
			e.Context = string(contextBytes)
		}
	}
}

func (m *MonitoringService) RecordError(level, source, title, message string, options ...ErrorLogOption) error {
	errorLog := &models.ErrorLog{
		Level:   level,
		Source:  source,
		Title:   title,
		Message: message,
	}

	for _, option := range options {
		option(errorLog)
	}

	return m.db.Create(errorLog).Error
}

func (m *MonitoringService) ResolveError(id string) error {
	now := time.Now()
	return m.db.Model(&models.ErrorLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_at": now,
		}).Error
}

func (m *MonitoringService) Summary(ctx context.Context, ownerID string) (*models.DashboardSummary, error) {
	var summary models.DashboardSummary
	err := m.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		First(&summary).Error
	if err == gorm.ErrRecordNotFound {
		// first visit before the refresher has run, compute on the spot
		if err := m.refreshOwner(ctx, ownerID); err != nil {
			return nil, err
		}
		err = m.db.WithContext(ctx).
			Where("owner_id = ?", ownerID).
			First(&summary).Error
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// UpdateDashboardSummaries recomputes every known owner's summary row.
func (m *MonitoringService) UpdateDashboardSummaries(ctx context.Context) error {
	owners, err := m.distinctOwners(ctx)
	if err != nil {
		return err
	}

	for _, ownerID := range owners {
		if err := m.refreshOwner(ctx, ownerID); err != nil {
			m.logger.Error("Failed to refresh dashboard summary",
				zap.String("owner_id", ownerID),
				zap.Error(err))
		}
	}
	return nil
}

func (m *MonitoringService) distinctOwners(ctx context.Context) ([]string, error) {
	var owners []string
	err := m.db.WithContext(ctx).
		Raw("SELECT DISTINCT owner_id FROM content_items UNION SELECT DISTINCT owner_id FROM daily_progress").
		Scan(&owners).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	return owners, nil
}

func (m *MonitoringService) refreshOwner(ctx context.Context, ownerID string) error {
	counts, err := m.content.StageCounts(ctx, ownerID)
	if err != nil {
		return err
	}
	stageCounts := make(map[string]interface{}, len(counts))
	totalItems := 0
	for stage, count := range counts {
		stageCounts[string(stage)] = count
		totalItems += int(count)
	}

	stats, err := m.progress.Stats(ctx, ownerID)
	if err != nil {
		return err
	}

	loc := m.progress.Location()
	y, mo, d := time.Now().In(loc).Date()
	today := time.Date(y, mo, d, 0, 0, 0, 0, loc)
	var pendingJobs, jobsToday, failedJobsToday int64
	for _, table := range models.JobTables {
		var pending, created, failed int64
		m.db.WithContext(ctx).Table(table).
			Where("owner_id = ? AND status = ?", ownerID, models.JobPending).
			Count(&pending)
		m.db.WithContext(ctx).Table(table).
			Where("owner_id = ? AND created_at >= ?", ownerID, today).
			Count(&created)
		m.db.WithContext(ctx).Table(table).
			Where("owner_id = ? AND status = ? AND updated_at >= ?", ownerID, models.JobFailed, today).
			Count(&failed)
		pendingJobs += pending
		jobsToday += created
		failedJobsToday += failed
	}

	var unresolvedErrors int64
	m.db.WithContext(ctx).Model(&models.ErrorLog{}).
		Where("owner_id = ? AND resolved = ?", ownerID, false).
		Count(&unresolvedErrors)

	var lastEntry models.DailyProgress
	var lastEntryAt *time.Time
	if err := m.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("date desc").
		First(&lastEntry).Error; err == nil {
		lastEntryAt = &lastEntry.Date
	}

	var summary models.DashboardSummary
	result := m.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		First(&summary)

	if result.Error == gorm.ErrRecordNotFound {
		summary = models.DashboardSummary{
			OwnerID:          ownerID,
			StageCounts:      stageCounts,
			TotalItems:       totalItems,
			PendingJobs:      int(pendingJobs),
			JobsToday:        int(jobsToday),
			FailedJobsToday:  int(failedJobsToday),
			CurrentStreak:    stats.CurrentStreak,
			LongestStreak:    stats.LongestStreak,
			CompletionRate:   stats.CompletionRate,
			UnresolvedErrors: int(unresolvedErrors),
			LastEntryAt:      lastEntryAt,
		}
		return m.db.WithContext(ctx).Create(&summary).Error
	} else if result.Error != nil {
		return result.Error
	}

	updates := map[string]interface{}{
		"stage_counts":      stageCounts,
		"total_items":       totalItems,
		"pending_jobs":      pendingJobs,
		"jobs_today":        jobsToday,
		"failed_jobs_today": failedJobsToday,
		"current_streak":    stats.CurrentStreak,
		"longest_streak":    stats.LongestStreak,
		"completion_rate":   stats.CompletionRate,
		"unresolved_errors": unresolvedErrors,
	}
	if lastEntryAt != nil {
		updates["last_entry_at"] = *lastEntryAt
	}
	return m.db.WithContext(ctx).Model(&summary).Updates(updates).Error
}

// CleanupOldData drops delivered outbox events and resolved errors older
// than the retention window.
func (m *MonitoringService) CleanupOldData(retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	if err := m.db.
		Where("status = ? AND updated_at < ?", models.OutboxDelivered, cutoff).
		Delete(&models.OutboxEvent{}).Error; err != nil {
		return err
	}

	return m.db.
		Where("resolved = ? AND resolved_at < ?", true, cutoff).
		Delete(&models.ErrorLog{}).Error
}
