package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrorLog records webhook and job failures for the dashboard's error view.
type ErrorLog struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	Level      string     `gorm:"size:20;not null;index" json:"level"`   // ERROR, WARN, INFO
	Source     string     `gorm:"size:100;not null;index" json:"source"` // webhook, jobs, outbox, progress
	OwnerID    string     `gorm:"size:36;index" json:"owner_id"`
	ItemID     string     `gorm:"size:36;index" json:"item_id"`
	JobID      string     `gorm:"size:36;index" json:"job_id"`
	Title      string     `gorm:"size:500;not null" json:"title"`
	Message    string     `gorm:"type:text;not null" json:"message"`
	Context    string     `gorm:"type:text" json:"context"`
	Resolved   bool       `gorm:"default:false;index" json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *ErrorLog) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// DashboardSummary is a per-owner precomputed landing-page row, refreshed
// periodically so the dashboard is a single cheap read.
type DashboardSummary struct {
	ID               string            `gorm:"primaryKey;size:36" json:"id"`
	OwnerID          string            `gorm:"uniqueIndex;not null;size:36" json:"owner_id"`
	StageCounts      datatypes.JSONMap `json:"stage_counts"`
	TotalItems       int               `gorm:"default:0" json:"total_items"`
	PendingJobs      int               `gorm:"default:0" json:"pending_jobs"`
	JobsToday        int               `gorm:"default:0" json:"jobs_today"`
	FailedJobsToday  int               `gorm:"default:0" json:"failed_jobs_today"`
	CurrentStreak    int               `gorm:"default:0" json:"current_streak"`
	LongestStreak    int               `gorm:"default:0" json:"longest_streak"`
	CompletionRate   float64           `gorm:"default:0" json:"completion_rate"`
	UnresolvedErrors int               `gorm:"default:0" json:"unresolved_errors"`
	LastEntryAt      *time.Time        `json:"last_entry_at"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *DashboardSummary) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
