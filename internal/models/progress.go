package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Tracked platforms for the daily metrics tracker.
const (
	PlatformYouTube    = "youtube"
	PlatformInstagram  = "instagram"
	PlatformTikTok     = "tiktok"
	PlatformLinkedIn   = "linkedin"
	PlatformX          = "x"
	PlatformNewsletter = "newsletter"
)

var Platforms = []string{
	PlatformYouTube,
	PlatformInstagram,
	PlatformTikTok,
	PlatformLinkedIn,
	PlatformX,
	PlatformNewsletter,
}

func ValidPlatform(p string) bool {
	for _, platform := range Platforms {
		if platform == p {
			return true
		}
	}
	return false
}

// GrowthMetricKey maps a platform to the metrics-bag key charted in the
// growth series (audience size for that platform).
var GrowthMetricKey = map[string]string{
	PlatformYouTube:    "subscribers",
	PlatformInstagram:  "followers",
	PlatformTikTok:     "followers",
	PlatformLinkedIn:   "followers",
	PlatformX:          "followers",
	PlatformNewsletter: "subscribers",
}

// DailyProgress is one platform's metrics snapshot for one calendar day.
// At most one row exists per (owner, date, platform); the unique index is
// created in service.Migrate.
type DailyProgress struct {
	ID        string            `gorm:"primaryKey;size:36" json:"id"`
	OwnerID   string            `gorm:"not null;size:36;index" json:"owner_id"`
	Date      time.Time         `gorm:"not null;index" json:"date"`
	Platform  string            `gorm:"not null;size:50" json:"platform"`
	Metrics   datatypes.JSONMap `json:"metrics"`
	Version   uint              `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DailyProgress) TableName() string { return "daily_progress" }

func (p *DailyProgress) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
