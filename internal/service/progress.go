package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oshitechglobal/creatordeck/internal/config"
	"github.com/oshitechglobal/creatordeck/internal/models"
)

// ProgressService owns the daily metrics tracker. Dates are normalized to
// midnight in the configured timezone before they hit storage, so the
// (owner, date, platform) unique index gives one row per day per platform.
type ProgressService struct {
	db        *gorm.DB
	logger    *zap.Logger
	feed      Feed
	threshold int
	loc       *time.Location
}

func NewProgressService(db *gorm.DB, logger *zap.Logger, feed Feed, cfg *config.ProgressConfig) *ProgressService {
	threshold := cfg.CompletionThreshold
	if threshold <= 0 {
		threshold = DefaultCompletionThreshold
	}

	loc := time.Local
	if cfg.Timezone != "" && cfg.Timezone != "Local" {
		if parsed, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = parsed
		} else {
			logger.Warn("Invalid progress timezone, using local",
				zap.String("timezone", cfg.Timezone), zap.Error(err))
		}
	}

	return &ProgressService{
		db:        db,
		logger:    logger,
		feed:      feed,
		threshold: threshold,
		loc:       loc,
	}
}

func (s *ProgressService) now() time.Time {
	return time.Now().In(s.loc)
}

// ParseDay interprets a YYYY-MM-DD string as midnight in the tracker's
// timezone. Parsing in UTC and converting afterwards would shift the entry
// onto the previous calendar day for any timezone west of UTC.
func (s *ProgressService) ParseDay(raw string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", raw, s.loc)
}

// Location is the timezone all calendar-day comparisons run in.
func (s *ProgressService) Location() *time.Location {
	return s.loc
}

func (s *ProgressService) normalizeDate(date time.Time) time.Time {
	y, m, d := date.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

func (s *ProgressService) List(ctx context.Context, ownerID string) ([]models.DailyProgress, error) {
	var entries []models.DailyProgress
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("date desc, platform").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list progress entries: %w", err)
	}
	return entries, nil
}

// SaveEntry upserts the (owner, date, platform) row: the second save for
// the same pair wins. The unique index closes the insert race between two
// concurrent saves; a conflicting insert falls back to an update.
func (s *ProgressService) SaveEntry(ctx context.Context, ownerID string, date time.Time, platform string, metrics datatypes.JSONMap) (*models.DailyProgress, error) {
	if !models.ValidPlatform(platform) {
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
	day := s.normalizeDate(date)

	existing, err := s.entryFor(ctx, ownerID, day, platform)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query progress entry: %w", err)
	}

	if existing != nil {
		return s.updateEntry(ctx, existing, metrics)
	}

	entry := &models.DailyProgress{
		OwnerID:  ownerID,
		Date:     day,
		Platform: platform,
		Metrics:  metrics,
		Version:  1,
	}
	err = s.db.WithContext(ctx).Create(entry).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost the race against another save, update the winner's row
		existing, err = s.entryFor(ctx, ownerID, day, platform)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read progress entry: %w", err)
		}
		return s.updateEntry(ctx, existing, metrics)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create progress entry: %w", err)
	}

	s.publish(ctx, ChangeInsert, entry)
	return entry, nil
}

func (s *ProgressService) entryFor(ctx context.Context, ownerID string, day time.Time, platform string) (*models.DailyProgress, error) {
	var entry models.DailyProgress
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND date = ? AND platform = ?", ownerID, day, platform).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *ProgressService) updateEntry(ctx context.Context, entry *models.DailyProgress, metrics datatypes.JSONMap) (*models.DailyProgress, error) {
	err := s.db.WithContext(ctx).Model(entry).Updates(map[string]interface{}{
		"metrics": metrics,
		"version": gorm.Expr("version + 1"),
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update progress entry: %w", err)
	}

	err = s.db.WithContext(ctx).
		Where("id = ?", entry.ID).
		First(entry).Error
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ChangeUpdate, entry)
	return entry, nil
}

func (s *ProgressService) Delete(ctx context.Context, ownerID, id string) error {
	var entry models.DailyProgress
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", ownerID, id).
		First(&entry).Error
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", ownerID, id).
		Delete(&models.DailyProgress{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete progress entry: %w", err)
	}

	s.publish(ctx, ChangeDelete, &entry)
	return nil
}

// Stats loads the owner's full entry history and aggregates it.
func (s *ProgressService) Stats(ctx context.Context, ownerID string) (ProgressStats, error) {
	entries, err := s.List(ctx, ownerID)
	if err != nil {
		return ProgressStats{}, err
	}
	return ComputeStats(entries, s.now(), s.threshold), nil
}

// Growth produces the dense trailing-window chart series.
func (s *ProgressService) Growth(ctx context.Context, ownerID string, days int) ([]GrowthPoint, error) {
	entries, err := s.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return ComputeGrowthSeries(entries, days, s.now()), nil
}

func (s *ProgressService) publish(ctx context.Context, typ ChangeType, entry *models.DailyProgress) {
	ev := NewChangeEvent(typ, "daily_progress", entry.OwnerID, entry.Version, entry)
	if err := s.feed.Publish(ctx, ev); err != nil {
		s.logger.Warn("Failed to publish progress change",
			zap.String("entry_id", entry.ID),
			zap.Error(err))
	}
}
