package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vfx-pipeline/asset-server/pkg/asset_server/helpers/util"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by reads that target a missing asset.
var ErrNotFound = errors.New("asset not found")

// allowedUpdateFields is the PATCH whitelist; anything else is dropped.
var allowedUpdateFields = map[string]bool{
	"name":        true,
	"description": true,
	"tags":        true,
	"status":      true,
}

// AssetRepository is the persistence layer over assets, versions, files,
// comments and the append-only change log. Every mutating method writes its
// change row in the same transaction as the mutation itself, so a polling
// consumer never observes one without the other.
type AssetRepository interface {
	EnsureAsset(ctx context.Context, id, name, family, description, tags string) error
	UpsertVersion(ctx context.Context, assetID string, version int, metadata map[string]any, thumbnail string) error
	AddFile(ctx context.Context, assetID string, version int, filename, relPath, format string, sizeBytes int64) error
	ListAssets(ctx context.Context, p models.ListAssetsParams) ([]models.Asset, error)
	GetAsset(ctx context.Context, id string) (*models.AssetDetail, error)
	UpdateAsset(ctx context.Context, id string, fields map[string]string) error
	ArchiveVersion(ctx context.Context, assetID string, version int) error
	DeleteVersion(ctx context.Context, assetID string, version int) error
	DeleteAsset(ctx context.Context, id string) error
	AddComment(ctx context.Context, assetID, author, body string) error
	ListChanges(ctx context.Context, p models.ListChangesParams) ([]models.ChangeRecord, error)
}

type assetRepository struct {
	db *gorm.DB
}

func NewAssetRepository(db *gorm.DB) AssetRepository {
	return &assetRepository{db: db}
}

func logChange(tx *gorm.DB, changeType, assetID string, payload models.ChangePayload, now string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal change payload: %w", err)
	}
	return tx.Create(&models.Change{
		ChangeType:  changeType,
		AssetID:     assetID,
		PayloadJSON: string(raw),
		CreatedAt:   now,
	}).Error
}

// EnsureAsset creates the asset if absent; otherwise it refreshes name and
// family and touches updated_at. Idempotent on id.
func (r *assetRepository) EnsureAsset(ctx context.Context, id, name, family, description, tags string) error {
	now := util.NowStamp()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Asset
		err := tx.Where("id = ?", id).First(&existing).Error
		switch {
		case err == nil:
			if err := tx.Model(&models.Asset{}).Where("id = ?", id).Updates(map[string]any{
				"name":       name,
				"family":     family,
				"updated_at": now,
			}).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&models.Asset{
				ID:          id,
				Name:        name,
				Family:      family,
				Description: description,
				Tags:        tags,
				Status:      models.StatusPublished,
				CreatedAt:   now,
				UpdatedAt:   now,
			}).Error; err != nil {
				return err
			}
		default:
			return err
		}
		return logChange(tx, models.ChangeAssetUpsert, id, models.ChangePayload{Name: name, Family: family}, now)
	})
}

// UpsertVersion inserts the (asset_id, version) row if absent, else replaces
// metadata and thumbnail. Deliberately permissive: the asset row itself is
// not required to exist yet.
func (r *assetRepository) UpsertVersion(ctx context.Context, assetID string, version int, metadata map[string]any, thumbnail string) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal version metadata: %w", err)
	}
	if metadata == nil {
		raw = []byte("{}")
	}
	now := util.NowStamp()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "asset_id"}, {Name: "version"}},
			DoNothing: true,
		}).Create(&models.Version{
			AssetID:       assetID,
			Version:       version,
			MetadataJSON:  string(raw),
			ThumbnailPath: thumbnail,
			CreatedAt:     now,
			UpdatedAt:     now,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Version{}).
			Where("asset_id = ? AND version = ?", assetID, version).
			Updates(map[string]any{
				"metadata_json":  string(raw),
				"thumbnail_path": thumbnail,
				"updated_at":     now,
			}).Error; err != nil {
			return err
		}
		return logChange(tx, models.ChangeVersionUpsert, assetID, models.ChangePayload{Version: &version}, now)
	})
}

// AddFile always appends a new row; uploads never replace file rows.
func (r *assetRepository) AddFile(ctx context.Context, assetID string, version int, filename, relPath, format string, sizeBytes int64) error {
	now := util.NowStamp()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.File{
			AssetID:   assetID,
			Version:   version,
			Filename:  filename,
			RelPath:   relPath,
			Format:    format,
			SizeBytes: sizeBytes,
		}).Error; err != nil {
			return err
		}
		return logChange(tx, models.ChangeFileAdded, assetID, models.ChangePayload{Version: &version, Filename: filename}, now)
	})
}

func (r *assetRepository) ListAssets(ctx context.Context, p models.ListAssetsParams) ([]models.Asset, error) {
	q := r.db.WithContext(ctx).Model(&models.Asset{})
	if p.Family != "" {
		q = q.Where("family = ?", p.Family)
	}
	if p.Status != "" {
		q = q.Where("status = ?", p.Status)
	}
	var assets []models.Asset
	err := q.Order("updated_at DESC").Limit(p.Limit).Offset(p.Offset).Find(&assets).Error
	return assets, err
}

func (r *assetRepository) GetAsset(ctx context.Context, id string) (*models.AssetDetail, error) {
	var asset models.Asset
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var versions []models.Version
	if err := r.db.WithContext(ctx).
		Where("asset_id = ?", id).
		Order("version DESC").
		Find(&versions).Error; err != nil {
		return nil, err
	}
	var files []models.File
	if err := r.db.WithContext(ctx).Where("asset_id = ?", id).Find(&files).Error; err != nil {
		return nil, err
	}

	detail := &models.AssetDetail{Asset: asset}
	for _, v := range versions {
		meta := map[string]any{}
		if v.MetadataJSON != "" {
			_ = json.Unmarshal([]byte(v.MetadataJSON), &meta)
		}
		detail.Versions = append(detail.Versions, models.VersionInfo{
			Version:       v.Version,
			Metadata:      meta,
			ThumbnailPath: v.ThumbnailPath,
			Archived:      v.Archived,
			CreatedAt:     v.CreatedAt,
			UpdatedAt:     v.UpdatedAt,
		})
	}
	for _, f := range files {
		detail.Files = append(detail.Files, models.FileInfo{
			Version:   f.Version,
			Filename:  f.Filename,
			RelPath:   f.RelPath,
			Format:    f.Format,
			SizeBytes: f.SizeBytes,
		})
	}
	return detail, nil
}

// UpdateAsset applies a whitelisted partial update. When every supplied key
// falls outside the whitelist the call is a no-op: updated_at is untouched
// and no change row is written.
func (r *assetRepository) UpdateAsset(ctx context.Context, id string, fields map[string]string) error {
	updates := map[string]any{}
	payload := models.ChangePayload{}
	for k, v := range fields {
		if !allowedUpdateFields[k] {
			continue
		}
		updates[k] = v
		switch k {
		case "name":
			payload.Name = v
		case "description":
			payload.Description = v
		case "tags":
			payload.Tags = v
		case "status":
			payload.Status = v
		}
	}
	if len(updates) == 0 {
		return nil
	}
	now := util.NowStamp()
	updates["updated_at"] = now
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Asset{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return logChange(tx, models.ChangeAssetUpdate, id, payload, now)
	})
}

func (r *assetRepository) ArchiveVersion(ctx context.Context, assetID string, version int) error {
	now := util.NowStamp()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Version{}).
			Where("asset_id = ? AND version = ?", assetID, version).
			Updates(map[string]any{"archived": true, "updated_at": now}).Error; err != nil {
			return err
		}
		return logChange(tx, models.ChangeVersionArchived, assetID, models.ChangePayload{Version: &version}, now)
	})
}

// DeleteVersion hard-removes one version and its file rows. Bytes on disk
// are the caller's concern; see the storage layer.
func (r *assetRepository) DeleteVersion(ctx context.Context, assetID string, version int) error {
	now := util.NowStamp()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("asset_id = ? AND version = ?", assetID, version).Delete(&models.File{}).Error; err != nil {
			return err
		}
		if err := tx.Where("asset_id = ? AND version = ?", assetID, version).Delete(&models.Version{}).Error; err != nil {
			return err
		}
		return logChange(tx, models.ChangeVersionDeleted, assetID, models.ChangePayload{Version: &version}, now)
	})
}

// DeleteAsset hard-removes the asset and every dependent row.
func (r *assetRepository) DeleteAsset(ctx context.Context, id string) error {
	now := util.NowStamp()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("asset_id = ?", id).Delete(&models.File{}).Error; err != nil {
			return err
		}
		if err := tx.Where("asset_id = ?", id).Delete(&models.Version{}).Error; err != nil {
			return err
		}
		if err := tx.Where("asset_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).Delete(&models.Asset{}).Error; err != nil {
			return err
		}
		return logChange(tx, models.ChangeAssetDeleted, id, models.ChangePayload{}, now)
	})
}

func (r *assetRepository) AddComment(ctx context.Context, assetID, author, body string) error {
	now := util.NowStamp()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Comment{
			AssetID:   assetID,
			Author:    author,
			Body:      body,
			CreatedAt: now,
		}).Error; err != nil {
			return err
		}
		return logChange(tx, models.ChangeComment, assetID, models.ChangePayload{Author: author}, now)
	})
}

// ListChanges returns the change-log tail in ascending (created_at, id)
// order. The since cursor is strict: a row whose created_at equals since is
// not returned again. since_id filters on the row id instead, which is safe
// when multiple changes share a timestamp.
func (r *assetRepository) ListChanges(ctx context.Context, p models.ListChangesParams) ([]models.ChangeRecord, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Model(&models.Change{})
	if p.SinceID > 0 {
		q = q.Where("id > ?", p.SinceID)
	} else if p.Since != "" {
		q = q.Where("created_at > ?", p.Since)
	}
	var rows []models.Change
	if err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.ChangeRecord, 0, len(rows))
	for _, c := range rows {
		var payload models.ChangePayload
		if c.PayloadJSON != "" {
			_ = json.Unmarshal([]byte(c.PayloadJSON), &payload)
		}
		out = append(out, models.ChangeRecord{
			ID:         c.ID,
			ChangeType: c.ChangeType,
			AssetID:    c.AssetID,
			Payload:    payload,
			CreatedAt:  c.CreatedAt,
		})
	}
	return out, nil
}
