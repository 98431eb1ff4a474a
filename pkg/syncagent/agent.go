// Package syncagent pushes local pipeline exports to the asset server and
// follows its change feed. Expected export layout:
//
//	<root>/<family>/<asset_name>/<files>
//
// Asset ids are derived as <family>_<asset_name>, matching what the
// in-application integration step publishes.
package syncagent

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vfx-pipeline/asset-server/pkg/asset_server/models"
)

const maxConcurrentUploads = 4

// maxBackoff caps the retry delay after repeated poll failures.
const maxBackoff = 5 * time.Minute

type Agent struct {
	client   *Client
	root     string
	interval time.Duration

	cursor int64 // last seen change id
}

func NewAgent(client *Client, root string, interval time.Duration) *Agent {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Agent{client: client, root: root, interval: interval}
}

// Run performs one best-effort push of the local exports tree, then polls
// the change feed until ctx is cancelled. Poll failures back off
// exponentially instead of hammering a down server.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.PushLocal(ctx); err != nil {
		log.Printf("[WARN] initial push: %v", err)
	}

	delay := a.interval
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		changes, err := a.client.ListChanges(ctx, a.cursor)
		if err != nil {
			delay = min(delay*2, maxBackoff)
			log.Printf("[WARN] poll failed, retrying in %s: %v", delay, err)
			continue
		}
		delay = a.interval

		a.applyRemoteChanges(changes)
		if len(changes) > 0 {
			a.cursor = changes[len(changes)-1].ID
		}
	}
}

// PushLocal registers every asset found under the exports tree and uploads
// its files, a bounded number at a time.
func (a *Agent) PushLocal(ctx context.Context) error {
	famDirs, err := os.ReadDir(a.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	sem := semaphore.NewWeighted(maxConcurrentUploads)
	g, ctx := errgroup.WithContext(ctx)

	for _, famDir := range famDirs {
		if !famDir.IsDir() || famDir.Name() == ".archive" {
			continue
		}
		family := famDir.Name()
		assetDirs, err := os.ReadDir(filepath.Join(a.root, family))
		if err != nil {
			continue
		}
		for _, assetDir := range assetDirs {
			if !assetDir.IsDir() {
				continue
			}
			name := assetDir.Name()
			assetID := family + "_" + name

			if err := a.client.PublishAsset(ctx, models.UpsertAssetInput{
				AssetID:  assetID,
				Name:     name,
				Family:   family,
				Version:  1,
				Metadata: map[string]any{},
			}); err != nil {
				log.Printf("[WARN] publish %s: %v", assetID, err)
				continue
			}

			entries, err := os.ReadDir(filepath.Join(a.root, family, name))
			if err != nil {
				continue
			}
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				path := filepath.Join(a.root, family, name, e.Name())
				g.Go(func() error {
					if err := sem.Acquire(ctx, 1); err != nil {
						return err
					}
					defer sem.Release(1)
					if err := a.client.UploadFile(ctx, assetID, 1, family, path); err != nil {
						log.Printf("[WARN] upload %s: %v", path, err)
					}
					return nil
				})
			}
		}
	}
	return g.Wait()
}

// applyRemoteChanges handles the non-destructive subset of remote changes:
// an archived version moves the matching local asset directory into
// .archive/. Deletes and upserts are left to server-side management.
func (a *Agent) applyRemoteChanges(changes []models.ChangeRecord) {
	archiveDir := filepath.Join(a.root, ".archive")
	for _, ch := range changes {
		if ch.ChangeType != models.ChangeVersionArchived {
			continue
		}
		local := a.localAssetDir(ch.AssetID)
		if local == "" {
			continue
		}
		if err := os.MkdirAll(archiveDir, 0o755); err != nil {
			continue
		}
		dst := filepath.Join(archiveDir, filepath.Base(local))
		if err := os.Rename(local, dst); err != nil {
			log.Printf("[WARN] archive %s: %v", ch.AssetID, err)
			continue
		}
		log.Printf("[INFO] archived local copy of %s", ch.AssetID)
	}
}

// localAssetDir maps an asset id back to its export directory, or "" when
// no local copy exists. Ids are <family>_<name>; names may themselves
// contain underscores, so every split point is tried.
func (a *Agent) localAssetDir(assetID string) string {
	for i := 0; i < len(assetID); i++ {
		if assetID[i] != '_' {
			continue
		}
		dir := filepath.Join(a.root, assetID[:i], assetID[i+1:])
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}
