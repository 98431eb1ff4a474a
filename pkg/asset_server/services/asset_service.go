package services

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	problem "github.com/vfx-pipeline/asset-server/pkg/asset_server/helpers/problem"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/models"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/repositories"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/storage"
)

// AssetService composes the persistence and storage layers for the REST
// handlers. Orchestration only: request defaults, the storage-then-database
// ordering on deletes, and response shaping live here.
type AssetService struct {
	repo  repositories.AssetRepository
	store *storage.Store
}

func NewAssetService(repo repositories.AssetRepository, store *storage.Store) *AssetService {
	return &AssetService{repo: repo, store: store}
}

// TempDir exposes the storage staging area for multipart uploads.
func (s *AssetService) TempDir() string { return s.store.TempDir() }

// PublishAsset upserts the asset record plus one version in a single call,
// the shape the pipeline's integration step emits.
func (s *AssetService) PublishAsset(ctx context.Context, in *models.UpsertAssetInput) (*models.UpsertAssetResponse, error) {
	name := in.Name
	if name == "" {
		name = in.AssetID
	}
	family := strings.ToLower(in.Family)
	if family == "" {
		family = "unknown"
	}
	version := in.Version
	if version <= 0 {
		version = 1
	}

	if err := s.repo.EnsureAsset(ctx, in.AssetID, name, family, in.Description, in.NormalizedTags()); err != nil {
		return nil, err
	}
	if err := s.repo.UpsertVersion(ctx, in.AssetID, version, in.Metadata, ""); err != nil {
		return nil, err
	}
	return &models.UpsertAssetResponse{AssetID: in.AssetID, Version: version}, nil
}

// IngestUpload moves a staged temp file into canonical storage and records
// the file row. Format is the lowercased extension without the dot.
func (s *AssetService) IngestUpload(ctx context.Context, assetID string, version int, tempPath, filename string) (*models.UploadResponse, error) {
	if version <= 0 {
		version = 1
	}
	relPath, size, err := s.store.SaveUpload(assetID, version, tempPath, filename)
	if err != nil {
		if err == storage.ErrPathEscape {
			return nil, problem.NewBadRequest("file", "filename must not contain path separators")
		}
		return nil, err
	}
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if err := s.repo.AddFile(ctx, assetID, version, filename, relPath, format, size); err != nil {
		return nil, err
	}
	return &models.UploadResponse{OK: true, AssetID: assetID, Version: version, RelPath: relPath}, nil
}

func (s *AssetService) ListAssets(ctx context.Context, p models.ListAssetsParams) (*models.AssetListResponse, error) {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	items, err := s.repo.ListAssets(ctx, p)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Asset{}
	}
	return &models.AssetListResponse{Items: items, Count: len(items)}, nil
}

// RetrieveAsset returns nil (without error) for an unknown id; the handler
// turns that into a 404.
func (s *AssetService) RetrieveAsset(ctx context.Context, id string) (*models.AssetDetail, error) {
	detail, err := s.repo.GetAsset(ctx, id)
	if err == repositories.ErrNotFound {
		return nil, nil
	}
	return detail, err
}

// ResolveDownload finds the first file of the requested version (and format,
// when given) and returns its absolute path plus download name. The two
// failure modes stay distinct: unknown asset vs no file for version/format.
func (s *AssetService) ResolveDownload(ctx context.Context, id string, version int, format string) (string, string, error) {
	detail, err := s.repo.GetAsset(ctx, id)
	if err == repositories.ErrNotFound {
		return "", "", problem.NewNotFound(id, "not found")
	}
	if err != nil {
		return "", "", err
	}
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	for _, f := range detail.Files {
		if f.Version != version {
			continue
		}
		if format != "" && f.Format != format {
			continue
		}
		abs, err := s.store.AbsoluteFromRel(f.RelPath)
		if err != nil {
			return "", "", problem.NewBadRequest("rel_path", "stored path escapes storage root")
		}
		return abs, f.Filename, nil
	}
	return "", "", problem.NewNotFound(id, "file not found for version/format")
}

// WritePackage streams a zip of one version to w: metadata.json first, then
// every stored file of that version under files/. The archive is built from
// live file rows at request time so it always reflects the current set.
func (s *AssetService) WritePackage(ctx context.Context, id string, version int, w io.Writer) (string, error) {
	detail, err := s.repo.GetAsset(ctx, id)
	if err == repositories.ErrNotFound {
		return "", problem.NewNotFound(id, "not found")
	}
	if err != nil {
		return "", err
	}

	zw := zip.NewWriter(w)
	meta := map[string]any{
		"asset": map[string]any{
			"id":          detail.ID,
			"name":        detail.Name,
			"family":      detail.Family,
			"description": detail.Description,
			"tags":        detail.Tags,
			"status":      detail.Status,
		},
		"version": version,
	}
	metaEntry, err := zw.Create("metadata.json")
	if err != nil {
		return "", err
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if _, err := metaEntry.Write(raw); err != nil {
		return "", err
	}

	for _, f := range detail.Files {
		if f.Version != version {
			continue
		}
		abs, err := s.store.AbsoluteFromRel(f.RelPath)
		if err != nil {
			continue
		}
		src, err := os.Open(abs)
		if err != nil {
			// row without bytes; the orphan scan reports these
			continue
		}
		entry, err := zw.Create(path.Join("files", f.Filename))
		if err != nil {
			src.Close()
			return "", err
		}
		if _, err := io.Copy(entry, src); err != nil {
			src.Close()
			return "", err
		}
		src.Close()
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_v%d.zip", id, version), nil
}

func (s *AssetService) UpdateAsset(ctx context.Context, id string, fields map[string]string) error {
	return s.repo.UpdateAsset(ctx, id, fields)
}

func (s *AssetService) SetStatus(ctx context.Context, id, status string) error {
	if status == "" {
		status = models.StatusPublished
	}
	return s.repo.UpdateAsset(ctx, id, map[string]string{"status": status})
}

func (s *AssetService) AddComment(ctx context.Context, id, author, body string) error {
	if author == "" {
		author = "anonymous"
	}
	return s.repo.AddComment(ctx, id, author, body)
}

func (s *AssetService) ArchiveVersion(ctx context.Context, id string, version int) error {
	return s.repo.ArchiveVersion(ctx, id, version)
}

// DeleteVersion removes bytes first (best-effort, failures logged and
// swallowed) and then the rows. The two steps are not transactional; the
// database remains the source of truth for existence.
func (s *AssetService) DeleteVersion(ctx context.Context, id string, version int) error {
	s.store.DeleteVersionStorage(id, version)
	return s.repo.DeleteVersion(ctx, id, version)
}

// DeleteAsset removes the whole storage tree best-effort, then all rows.
func (s *AssetService) DeleteAsset(ctx context.Context, id string) error {
	s.store.DeleteAssetStorage(id)
	if err := s.repo.DeleteAsset(ctx, id); err != nil {
		log.Printf("[ERROR] delete asset %s: %v", id, err)
		return err
	}
	return nil
}

func (s *AssetService) ListChanges(ctx context.Context, p models.ListChangesParams) (*models.ChangeListResponse, error) {
	items, err := s.repo.ListChanges(ctx, p)
	if err != nil {
		return nil, err
	}
	return &models.ChangeListResponse{Items: items}, nil
}
