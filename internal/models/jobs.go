package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobBase is the shared shape of the five generation-job tables. SourceID
// is the video id or URL used for duplicate detection; the unique
// (owner_id, source_id) index per table is created in service.Migrate.
// RawResponse keeps the last webhook response body for debugging.
type JobBase struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	OwnerID     string         `gorm:"not null;index;size:36" json:"owner_id"`
	SourceID    string         `gorm:"not null;size:500" json:"source_id"`
	Status      JobStatus      `gorm:"not null;size:50;default:'pending'" json:"status"`
	Result      string         `gorm:"type:text" json:"result"`
	RawResponse datatypes.JSON `json:"raw_response"`
	Error       string         `gorm:"type:text" json:"error"`
	Version     uint           `gorm:"not null;default:1" json:"version"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (j *JobBase) BeforeCreate(*gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	return nil
}

type VideoAnalysisJob struct{ JobBase }

func (VideoAnalysisJob) TableName() string { return "video_analysis_jobs" }

type CommentScrapeJob struct{ JobBase }

func (CommentScrapeJob) TableName() string { return "comment_scrape_jobs" }

type ChapterJob struct{ JobBase }

func (ChapterJob) TableName() string { return "chapter_jobs" }

type LinkedInPostJob struct{ JobBase }

func (LinkedInPostJob) TableName() string { return "linkedin_post_jobs" }

type RevenueContentJob struct{ JobBase }

func (RevenueContentJob) TableName() string { return "revenue_content_jobs" }

// JobTables lists every generation-job table, in registration order.
var JobTables = []string{
	"video_analysis_jobs",
	"comment_scrape_jobs",
	"chapter_jobs",
	"linkedin_post_jobs",
	"revenue_content_jobs",
}
