package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Stage is one position in the fixed content-pipeline sequence.
type Stage string

const (
	StageIdea    Stage = "idea"
	StageOutline Stage = "outline"
	StageWriting Stage = "writing"
	StageDesign  Stage = "design"
	StageFilm    Stage = "film"
	StageEdit    Stage = "edit"
	StagePublish Stage = "publish"
)

// StageOrder is the pipeline sequence a board renders left to right. Drags
// may jump stages; the ordering only drives "save & advance".
var StageOrder = []Stage{
	StageIdea,
	StageOutline,
	StageWriting,
	StageDesign,
	StageFilm,
	StageEdit,
	StagePublish,
}

func ValidStage(s Stage) bool {
	return StageIndex(s) >= 0
}

func StageIndex(s Stage) int {
	for i, stage := range StageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

// NextStage returns the stage immediately following s. The last stage and
// unknown stages map to themselves.
func NextStage(s Stage) Stage {
	idx := StageIndex(s)
	if idx < 0 || idx == len(StageOrder)-1 {
		return s
	}
	return StageOrder[idx+1]
}

// LeadMagnet is a named downloadable attached to a content item.
type LeadMagnet struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type ContentItem struct {
	ID             string                           `gorm:"primaryKey;size:36" json:"id"`
	OwnerID        string                           `gorm:"not null;index;size:36" json:"owner_id"`
	Title          string                           `gorm:"not null;size:500" json:"title"`
	Description    string                           `gorm:"type:text" json:"description"`
	Stage          Stage                            `gorm:"not null;size:50;default:'idea';index" json:"stage"`
	Platform       string                           `gorm:"size:50" json:"platform"`
	Priority       string                           `gorm:"size:50" json:"priority"`
	Position       float64                          `gorm:"not null;default:0" json:"position"`
	ScheduledAt    *time.Time                       `json:"scheduled_at"`
	Outline        string                           `gorm:"type:text" json:"outline"`
	Hook           string                           `gorm:"type:text" json:"hook"`
	ValueStatement string                           `gorm:"type:text" json:"value_statement"`
	ThumbnailURL   string                           `gorm:"size:2048" json:"thumbnail_url"`
	VideoURL       string                           `gorm:"size:2048" json:"video_url"`
	LeadMagnets    datatypes.JSONSlice[LeadMagnet]  `json:"lead_magnets"`
	Version        uint                             `gorm:"not null;default:1" json:"version"`
	CreatedAt      time.Time                        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time                        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *ContentItem) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
