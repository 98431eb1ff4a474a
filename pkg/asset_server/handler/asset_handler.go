package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vfx-pipeline/asset-server/pkg/asset_server/config"
	problem "github.com/vfx-pipeline/asset-server/pkg/asset_server/helpers/problem"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/helpers/util"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/models"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/services"
)

// AssetsAPIController binds HTTP requests to the AssetService
type AssetsAPIController struct {
	Service *services.AssetService
}

// NewAssetsAPIController creates a new controller
func NewAssetsAPIController(s *services.AssetService) *AssetsAPIController {
	return &AssetsAPIController{Service: s}
}

// Stats handles GET /stats
func (c *AssetsAPIController) Stats(ctx *gin.Context) (*models.StatsResponse, error) {
	return &models.StatsResponse{
		OK:      true,
		Time:    util.NowStamp(),
		Version: config.ServerVersion,
	}, nil
}

// UpsertAsset handles POST /assets
func (c *AssetsAPIController) UpsertAsset(ctx *gin.Context, in *models.UpsertAssetInput) (*models.UpsertAssetResponse, error) {
	return c.Service.PublishAsset(ctx.Request.Context(), in)
}

// ListAssets handles GET /assets
func (c *AssetsAPIController) ListAssets(ctx *gin.Context, p *models.ListAssetsParams) (*models.AssetListResponse, error) {
	return c.Service.ListAssets(ctx.Request.Context(), *p)
}

// RetrieveAsset handles GET /assets/:id
func (c *AssetsAPIController) RetrieveAsset(ctx *gin.Context, p *models.AssetParams) (*models.AssetDetail, error) {
	detail, err := c.Service.RetrieveAsset(ctx.Request.Context(), p.ID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, problem.NewNotFound(p.ID, "not found")
	}
	return detail, nil
}

// UpdateAsset handles PATCH /assets/:id
func (c *AssetsAPIController) UpdateAsset(ctx *gin.Context, p *models.UpdateAssetParams) (*models.OKResponse, error) {
	if err := c.Service.UpdateAsset(ctx.Request.Context(), p.ID, p.Fields()); err != nil {
		return nil, err
	}
	return &models.OKResponse{OK: true}, nil
}

// AddComment handles POST /assets/:id/comment
func (c *AssetsAPIController) AddComment(ctx *gin.Context, p *models.CommentParams) (*models.OKResponse, error) {
	if err := c.Service.AddComment(ctx.Request.Context(), p.ID, p.Author, p.Body); err != nil {
		return nil, err
	}
	return &models.OKResponse{OK: true}, nil
}

// SetStatus handles POST /assets/:id/status
func (c *AssetsAPIController) SetStatus(ctx *gin.Context, p *models.StatusParams) (*models.OKResponse, error) {
	if err := c.Service.SetStatus(ctx.Request.Context(), p.ID, p.Status); err != nil {
		return nil, err
	}
	return &models.OKResponse{OK: true}, nil
}

// ArchiveVersion handles POST /assets/:id/versions/:version/archive
func (c *AssetsAPIController) ArchiveVersion(ctx *gin.Context, p *models.VersionParams) (*models.OKResponse, error) {
	if err := c.Service.ArchiveVersion(ctx.Request.Context(), p.ID, p.Version); err != nil {
		return nil, err
	}
	return &models.OKResponse{OK: true}, nil
}

// DeleteVersion handles DELETE /assets/:id/versions/:version
func (c *AssetsAPIController) DeleteVersion(ctx *gin.Context, p *models.VersionParams) (*models.OKResponse, error) {
	if err := c.Service.DeleteVersion(ctx.Request.Context(), p.ID, p.Version); err != nil {
		return nil, err
	}
	return &models.OKResponse{OK: true}, nil
}

// DeleteAsset handles DELETE /assets/:id
func (c *AssetsAPIController) DeleteAsset(ctx *gin.Context, p *models.AssetParams) (*models.OKResponse, error) {
	if err := c.Service.DeleteAsset(ctx.Request.Context(), p.ID); err != nil {
		return nil, err
	}
	return &models.OKResponse{OK: true}, nil
}

// ListChanges handles GET /changes
func (c *AssetsAPIController) ListChanges(ctx *gin.Context, p *models.ListChangesParams) (*models.ChangeListResponse, error) {
	return c.Service.ListChanges(ctx.Request.Context(), *p)
}

// Upload handles POST /upload. Multipart bodies bypass tonic: the file part
// streams to the staging dir first so a broken transfer never lands in the
// canonical tree.
func (c *AssetsAPIController) Upload(ctx *gin.Context) {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "file field missing"})
		return
	}
	assetID := ctx.PostForm("asset_id")
	if assetID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "asset_id required"})
		return
	}
	version, _ := strconv.Atoi(ctx.DefaultPostForm("version", "1"))
	if version <= 0 {
		version = 1
	}

	tmpName := fmt.Sprintf("%s-%s", uuid.NewString(), filepath.Base(fileHeader.Filename))
	tmpPath := filepath.Join(c.Service.TempDir(), tmpName)
	if err := ctx.SaveUploadedFile(fileHeader, tmpPath); err != nil {
		respondError(ctx, err)
		return
	}

	resp, err := c.Service.IngestUpload(ctx.Request.Context(), assetID, version, tmpPath, fileHeader.Filename)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// Download handles GET /assets/:id/download, streaming one stored file.
func (c *AssetsAPIController) Download(ctx *gin.Context) {
	version, _ := strconv.Atoi(ctx.DefaultQuery("version", "1"))
	if version <= 0 {
		version = 1
	}
	format := ctx.Query("format")

	absPath, filename, err := c.Service.ResolveDownload(ctx.Request.Context(), ctx.Param("id"), version, format)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.FileAttachment(absPath, filename)
}

// Package handles GET /assets/:id/package, zipping one version on demand.
func (c *AssetsAPIController) Package(ctx *gin.Context) {
	version, _ := strconv.Atoi(ctx.DefaultQuery("version", "1"))
	if version <= 0 {
		version = 1
	}

	var buf bytes.Buffer
	name, err := c.Service.WritePackage(ctx.Request.Context(), ctx.Param("id"), version, &buf)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	ctx.Data(http.StatusOK, "application/zip", buf.Bytes())
}

// respondError maps service errors for the raw (non-tonic) handlers.
func respondError(ctx *gin.Context, err error) {
	if apiErr, ok := err.(problem.APIError); ok {
		ctx.JSON(apiErr.Status, apiErr)
		return
	}
	internal := problem.NewInternalServerError(err.Error())
	ctx.JSON(internal.Status, internal)
}
