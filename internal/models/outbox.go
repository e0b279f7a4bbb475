package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	OutboxPending   = "pending"
	OutboxDelivered = "delivered"
	OutboxFailed    = "failed"
)

// EventStageChanged is enqueued whenever a content item's stage actually
// changes; the payload carries the full item plus the (from, to) pair.
const EventStageChanged = "stage_changed"

// OutboxEvent is a pending outbound webhook notification. Events are
// written in the same transaction as the domain change they describe and
// delivered with retry by the OutboxDispatcher.
type OutboxEvent struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id"`
	OwnerID       string         `gorm:"not null;index;size:36" json:"owner_id"`
	Kind          string         `gorm:"not null;size:100;index" json:"kind"`
	Payload       datatypes.JSON `json:"payload"`
	Status        string         `gorm:"not null;size:50;default:'pending';index" json:"status"`
	Attempts      int            `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt time.Time      `gorm:"not null;index" json:"next_attempt_at"`
	LastError     string         `gorm:"type:text" json:"last_error"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *OutboxEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
