package database

import (
	"fmt"

	"github.com/vfx-pipeline/asset-server/pkg/asset_server/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the SQLite catalog at path and migrates the schema. The DSN
// enables WAL so readers are not blocked by the single writer, and sets a
// bounded busy timeout so a write under contention fails instead of hanging.
func Connect(path string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Asset{},
		&models.Version{},
		&models.File{},
		&models.Comment{},
		&models.Change{},
	); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return db, nil
}
