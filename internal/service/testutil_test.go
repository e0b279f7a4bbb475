package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oshitechglobal/creatordeck/internal/config"
	"github.com/oshitechglobal/creatordeck/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func testProgressConfig() *config.ProgressConfig {
	return &config.ProgressConfig{
		CompletionThreshold: 3,
		Timezone:            "Local",
	}
}

func testEntry(ownerID string, date time.Time, platform string, metrics map[string]interface{}) models.DailyProgress {
	return models.DailyProgress{
		OwnerID:  ownerID,
		Date:     date,
		Platform: platform,
		Metrics:  metrics,
	}
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}
