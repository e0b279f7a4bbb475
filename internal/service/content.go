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

// ContentService owns the Kanban pipeline: item CRUD, drag transitions and
// "save & advance". Stage changes enqueue a notification event in the same
// transaction as the write; webhook delivery never affects the transition.
type ContentService struct {
	db     *gorm.DB
	logger *zap.Logger
	feed   Feed
}

func NewContentService(db *gorm.DB, logger *zap.Logger, feed Feed) *ContentService {
	return &ContentService{
		db:     db,
		logger: logger,
		feed:   feed,
	}
}

func (s *ContentService) List(ctx context.Context, ownerID string) ([]models.ContentItem, error) {
	var items []models.ContentItem
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("stage, position, created_at").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list content items: %w", err)
	}
	return items, nil
}

func (s *ContentService) Get(ctx context.Context, ownerID, id string) (*models.ContentItem, error) {
	var item models.ContentItem
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", ownerID, id).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Create inserts a new item into the stage the add was issued on,
// appended after the stage's current last position.
func (s *ContentService) Create(ctx context.Context, item *models.ContentItem) (*models.ContentItem, error) {
	if item.Stage == "" {
		item.Stage = models.StageIdea
	}
	if !models.ValidStage(item.Stage) {
		return nil, fmt.Errorf("unknown stage %q", item.Stage)
	}

	var maxPosition float64
	s.db.WithContext(ctx).Model(&models.ContentItem{}).
		Where("owner_id = ? AND stage = ?", item.OwnerID, item.Stage).
		Select("COALESCE(MAX(position), 0)").
		Scan(&maxPosition)
	item.Position = maxPosition + 1
	item.Version = 1

	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, fmt.Errorf("failed to create content item: %w", err)
	}

	s.publish(ctx, ChangeInsert, item)
	return item, nil
}

// Update applies a field patch and bumps the row version.
func (s *ContentService) Update(ctx context.Context, ownerID, id string, patch map[string]interface{}) (*models.ContentItem, error) {
	item, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	patch["version"] = gorm.Expr("version + 1")
	err = s.db.WithContext(ctx).Model(&models.ContentItem{}).
		Where("owner_id = ? AND id = ?", ownerID, id).
		Updates(patch).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update content item: %w", err)
	}

	item, err = s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ChangeUpdate, item)
	return item, nil
}

func (s *ContentService) Delete(ctx context.Context, ownerID, id string) error {
	item, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", ownerID, id).
		Delete(&models.ContentItem{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete content item: %w", err)
	}

	s.publish(ctx, ChangeDelete, item)
	return nil
}

// Move is the drag transition. Dropping an item at its current
// (stage, position) is a no-op with no write. A stage change enqueues
// exactly one stage_changed notification, transactionally with the update;
// same-stage repositioning enqueues nothing.
func (s *ContentService) Move(ctx context.Context, ownerID, id string, toStage models.Stage, position float64) (*models.ContentItem, bool, error) {
	if !models.ValidStage(toStage) {
		return nil, false, fmt.Errorf("unknown stage %q", toStage)
	}

	item, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, false, err
	}

	if item.Stage == toStage && item.Position == position {
		return item, false, nil
	}

	fromStage := item.Stage
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"stage":    toStage,
			"position": position,
			"version":  gorm.Expr("version + 1"),
		}
		if err := tx.Model(&models.ContentItem{}).
			Where("owner_id = ? AND id = ?", ownerID, id).
			Updates(updates).Error; err != nil {
			return err
		}

		if fromStage != toStage {
			if err := tx.Where("owner_id = ? AND id = ?", ownerID, id).
				First(item).Error; err != nil {
				return err
			}
			return enqueueStageChange(tx, item, fromStage, toStage)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to move content item: %w", err)
	}

	item, err = s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, false, err
	}

	s.publish(ctx, ChangeUpdate, item)
	return item, true, nil
}

// Advance is the form-level shortcut: save the patch and step the item to
// the next stage in one write. At the last stage it saves without moving.
func (s *ContentService) Advance(ctx context.Context, ownerID, id string, patch map[string]interface{}) (*models.ContentItem, error) {
	item, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	fromStage := item.Stage
	toStage := models.NextStage(fromStage)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := make(map[string]interface{}, len(patch)+2)
		for k, v := range patch {
			updates[k] = v
		}
		updates["stage"] = toStage
		updates["version"] = gorm.Expr("version + 1")

		if err := tx.Model(&models.ContentItem{}).
			Where("owner_id = ? AND id = ?", ownerID, id).
			Updates(updates).Error; err != nil {
			return err
		}

		if fromStage != toStage {
			if err := tx.Where("owner_id = ? AND id = ?", ownerID, id).
				First(item).Error; err != nil {
				return err
			}
			return enqueueStageChange(tx, item, fromStage, toStage)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to advance content item: %w", err)
	}

	item, err = s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ChangeUpdate, item)
	return item, nil
}

// StageCounts reports every stage with its item count, zeros included.
func (s *ContentService) StageCounts(ctx context.Context, ownerID string) (map[models.Stage]int64, error) {
	counts := make(map[models.Stage]int64, len(models.StageOrder))
	for _, stage := range models.StageOrder {
		counts[stage] = 0
	}

	rows := []struct {
		Stage models.Stage
		Count int64
	}{}
	err := s.db.WithContext(ctx).Model(&models.ContentItem{}).
		Select("stage, COUNT(*) as count").
		Where("owner_id = ?", ownerID).
		Group("stage").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count stages: %w", err)
	}

	for _, row := range rows {
		if _, known := counts[row.Stage]; known {
			counts[row.Stage] = row.Count
		}
	}
	return counts, nil
}

func enqueueStageChange(tx *gorm.DB, item *models.ContentItem, from, to models.Stage) error {
	payload, err := json.Marshal(map[string]interface{}{
		"owner_id": item.OwnerID,
		"item":     item,
		"from":     from,
		"to":       to,
	})
	if err != nil {
		return err
	}

	event := models.OutboxEvent{
		OwnerID:       item.OwnerID,
		Kind:          models.EventStageChanged,
		Payload:       payload,
		Status:        models.OutboxPending,
		NextAttemptAt: time.Now(),
	}
	return tx.Create(&event).Error
}

func (s *ContentService) publish(ctx context.Context, typ ChangeType, item *models.ContentItem) {
	ev := NewChangeEvent(typ, "content_items", item.OwnerID, item.Version, item)
	if err := s.feed.Publish(ctx, ev); err != nil {
		s.logger.Warn("Failed to publish content change",
			zap.String("item_id", item.ID),
			zap.Error(err))
	}
}
