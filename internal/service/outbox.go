package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/oshitechglobal/creatordeck/internal/config"
	"github.com/oshitechglobal/creatordeck/internal/models"
)

const dispatchBatchSize = 20

// OutboxDispatcher delivers queued webhook notifications. Domain writes
// enqueue events transactionally; delivery happens here with retry and
// backoff so webhook availability never couples to the transition itself.
type OutboxDispatcher struct {
	db          *gorm.DB
	logger      *zap.Logger
	webhook     *WebhookClient
	monitor     *MonitoringService
	urls        map[string]string
	interval    time.Duration
	maxAttempts int
	enabled     bool
	ticker      *time.Ticker
	stopCh      chan struct{}
}

func NewOutboxDispatcher(db *gorm.DB, logger *zap.Logger, webhook *WebhookClient, monitor *MonitoringService, cfg *config.OutboxConfig, webhooks *config.WebhookConfig) *OutboxDispatcher {
	interval, err := time.ParseDuration(cfg.DispatchInterval)
	if err != nil {
		logger.Warn("Invalid outbox dispatch interval, using 30s",
			zap.String("interval", cfg.DispatchInterval), zap.Error(err))
		interval = 30 * time.Second
	}

	return &OutboxDispatcher{
		db:      db,
		logger:  logger,
		webhook: webhook,
		monitor: monitor,
		urls: map[string]string{
			models.EventStageChanged: webhooks.StageChange,
		},
		interval:    interval,
		maxAttempts: cfg.MaxAttempts,
		enabled:     cfg.IsEnabled(),
		stopCh:      make(chan struct{}),
	}
}

func (d *OutboxDispatcher) Start(ctx context.Context) {
	if !d.enabled {
		d.logger.Info("Outbox dispatcher is disabled")
		return
	}

	d.logger.Info("Starting outbox dispatcher",
		zap.Duration("interval", d.interval),
		zap.Int("max_attempts", d.maxAttempts))

	d.ticker = time.NewTicker(d.interval)

	go func() {
		for {
			select {
			case <-d.ticker.C:
				if err := d.DispatchDue(ctx); err != nil {
					d.logger.Error("Outbox dispatch pass failed", zap.Error(err))
				}
			case <-d.stopCh:
				d.logger.Info("Outbox dispatcher stopped")
				return
			case <-ctx.Done():
				d.logger.Info("Outbox dispatcher context cancelled")
				return
			}
		}
	}()
}

func (d *OutboxDispatcher) Stop() {
	if d.ticker != nil {
		d.ticker.Stop()
	}
	close(d.stopCh)
}

// DispatchDue delivers one batch of due pending events.
func (d *OutboxDispatcher) DispatchDue(ctx context.Context) error {
	var events []models.OutboxEvent
	err := d.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", models.OutboxPending, time.Now()).
		Order("created_at").
		Limit(dispatchBatchSize).
		Find(&events).Error
	if err != nil {
		return err
	}

	for _, event := range events {
		d.deliver(ctx, event)
	}
	return nil
}

func (d *OutboxDispatcher) deliver(ctx context.Context, event models.OutboxEvent) {
	url := d.urls[event.Kind]

	var payload map[string]interface{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		d.logger.Error("Unreadable outbox payload, marking failed",
			zap.String("event_id", event.ID), zap.Error(err))
		d.markFailed(ctx, event, "unreadable payload: "+err.Error())
		return
	}

	if _, err := d.webhook.Post(ctx, url, payload); err != nil {
		d.retryLater(ctx, event, err)
		return
	}

	err := d.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]interface{}{
			"status":   models.OutboxDelivered,
			"attempts": event.Attempts + 1,
		}).Error
	if err != nil {
		d.logger.Error("Failed to mark outbox event delivered",
			zap.String("event_id", event.ID), zap.Error(err))
		return
	}

	d.logger.Info("Outbox event delivered",
		zap.String("event_id", event.ID),
		zap.String("kind", event.Kind))
}

func (d *OutboxDispatcher) retryLater(ctx context.Context, event models.OutboxEvent, deliveryErr error) {
	attempts := event.Attempts + 1

	if attempts >= d.maxAttempts {
		d.markFailed(ctx, event, deliveryErr.Error())
		return
	}

	err := d.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]interface{}{
			"attempts":        attempts,
			"next_attempt_at": time.Now().Add(retryBackoff(attempts)),
			"last_error":      deliveryErr.Error(),
		}).Error
	if err != nil {
		d.logger.Error("Failed to schedule outbox retry",
			zap.String("event_id", event.ID), zap.Error(err))
		return
	}

	d.logger.Warn("Outbox delivery failed, will retry",
		zap.String("event_id", event.ID),
		zap.String("kind", event.Kind),
		zap.Int("attempts", attempts),
		zap.Error(deliveryErr))
}

func (d *OutboxDispatcher) markFailed(ctx context.Context, event models.OutboxEvent, lastError string) {
	err := d.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]interface{}{
			"status":     models.OutboxFailed,
			"attempts":   event.Attempts + 1,
			"last_error": lastError,
		}).Error
	if err != nil {
		d.logger.Error("Failed to mark outbox event failed",
			zap.String("event_id", event.ID), zap.Error(err))
		return
	}

	d.logger.Error("Outbox event exhausted retries",
		zap.String("event_id", event.ID),
		zap.String("kind", event.Kind),
		zap.String("error", lastError))

	if recordErr := d.monitor.RecordError("ERROR", "outbox",
		"webhook notification undeliverable", lastError,
		WithOwner(event.OwnerID)); recordErr != nil {
		d.logger.Warn("Failed to record outbox error", zap.Error(recordErr))
	}
}

// retryBackoff doubles per attempt from one minute, capped at an hour.
func retryBackoff(attempts int) time.Duration {
	backoff := time.Minute << (attempts - 1)
	if backoff > time.Hour || backoff <= 0 {
		return time.Hour
	}
	return backoff
}
