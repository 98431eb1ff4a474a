package jobs

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"

	"github.com/vfx-pipeline/asset-server/pkg/asset_server/models"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/storage"
	"github.com/vfx-pipeline/asset-server/pkg/tools"
	"gorm.io/gorm"
)

// ScheduleOrphanScan sets up a daily job that reports divergence between the
// files table and the storage tree. Storage deletes and database deletes are
// not transactionally linked, so dangling rows (row without bytes) and
// orphan files (bytes without row) can accumulate; this job only reports
// them, it never mutates either side.
func ScheduleOrphanScan(ctx context.Context, db *gorm.DB, store *storage.Store) *cron.Cron {
	c := cron.New()
	_, _ = c.AddFunc("@daily", func() {
		tools.Dispatch(context.Background(), "orphan_scan", func(ctx context.Context) error {
			return ScanOnce(ctx, db, store)
		})
	})
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c
}

// ScanOnce walks all file rows and checks their bytes exist.
func ScanOnce(ctx context.Context, db *gorm.DB, store *storage.Store) error {
	var files []models.File
	if err := db.WithContext(ctx).Find(&files).Error; err != nil {
		return err
	}
	known := make(map[string]bool, len(files))
	dangling := 0
	for _, f := range files {
		abs, err := store.AbsoluteFromRel(f.RelPath)
		if err != nil {
			log.Printf("[WARN] orphan scan: file row %d has escaping path %q", f.ID, f.RelPath)
			continue
		}
		known[abs] = true
		if _, err := os.Stat(abs); err != nil {
			dangling++
			log.Printf("[WARN] orphan scan: dangling row %s v%d %s (no bytes)", f.AssetID, f.Version, f.Filename)
		}
	}
	orphans := 0
	root := filepath.Join(store.Root(), "assets")
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !known[path] {
			orphans++
			log.Printf("[WARN] orphan scan: bytes without row at %s", path)
		}
		return nil
	})

	log.Printf("[INFO] orphan scan: %d file rows checked, %d dangling, %d orphan files", len(files), dangling, orphans)
	return nil
}
