package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vfx-pipeline/asset-server/pkg/asset_server/models"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/storage"
)

func TestScanOnce_ReportsWithoutMutating(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.File{}))

	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)

	// dangling row: no bytes behind it
	require.NoError(t, db.Create(&models.File{
		AssetID: "a1", Version: 1, Filename: "ghost.obj", RelPath: "assets/a1/v1/ghost.obj", Format: "obj",
	}).Error)
	// orphan bytes: no row for them
	orphanDir := filepath.Join(store.Root(), "assets", "a2", "v1")
	require.NoError(t, os.MkdirAll(orphanDir, 0o755))
	orphan := filepath.Join(orphanDir, "stray.obj")
	require.NoError(t, os.WriteFile(orphan, []byte("stray"), 0o644))

	require.NoError(t, ScanOnce(context.Background(), db, store))

	// report-only: both sides untouched
	var count int64
	require.NoError(t, db.Model(&models.File{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
	_, statErr := os.Stat(orphan)
	require.NoError(t, statErr)
}
