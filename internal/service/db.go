package service

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oshitechglobal/creatordeck/internal/config"
	"github.com/oshitechglobal/creatordeck/internal/models"
)

func NewDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port, cfg.SSLMode, cfg.TimeZone)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Migrate creates the schema. The unique indexes backing upsert and
// duplicate-job semantics live here rather than in struct tags: the five
// job tables share an embedded JobBase, and tag-declared index names would
// collide across tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.ContentItem{},
		&models.DailyProgress{},
		&models.VideoAnalysisJob{},
		&models.CommentScrapeJob{},
		&models.ChapterJob{},
		&models.LinkedInPostJob{},
		&models.RevenueContentJob{},
		&models.OutboxEvent{},
		&models.ErrorLog{},
		&models.DashboardSummary{},
	); err != nil {
		return err
	}

	if err := db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_daily_progress_owner_date_platform ON daily_progress(owner_id, date, platform)",
	).Error; err != nil {
		return err
	}

	for _, table := range models.JobTables {
		stmt := fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_owner_source ON %s(owner_id, source_id)",
			table, table)
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}

	return nil
}
