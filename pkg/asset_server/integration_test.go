package asset_server_test

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/vfx-pipeline/asset-server/pkg/asset_server"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/auth"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/config"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/database"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/handler"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/models"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/repositories"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/services"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/storage"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/testutil"
)

type integrationEnv struct {
	server *httptest.Server
	store  *storage.Store
	client *http.Client
}

func newIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	api.RegisterErrorHook()

	dir := t.TempDir()
	db, err := database.Connect(filepath.Join(dir, "catalog.sqlite3"))
	require.NoError(t, err)

	store, err := storage.NewStore(filepath.Join(dir, "storage_root"))
	require.NoError(t, err)

	repo := repositories.NewAssetRepository(db)
	svc := services.NewAssetService(repo, store)
	ctrl := handler.NewAssetsAPIController(svc)
	ks := auth.NewKeystore(filepath.Join(dir, "absent.yaml")) // demo keys

	router := api.NewRouter(config.ServerVersion, ctrl, ks, "test-secret")
	srv := testutil.NewTestServer(t, router)
	return &integrationEnv{server: srv, store: store, client: srv.Client()}
}

func (e *integrationEnv) request(t *testing.T, method, path, apiKey string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, data
}

func (e *integrationEnv) upload(t *testing.T, apiKey, assetID string, version int, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("asset_id", assetID))
	require.NoError(t, mw.WriteField("version", fmt.Sprintf("%d", version)))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestStats_Open(t *testing.T) {
	env := newIntegrationEnv(t)
	resp, body := env.request(t, http.MethodGet, "/api/stats", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats models.StatsResponse
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.True(t, stats.OK)
	assert.Equal(t, config.ServerVersion, stats.Version)
	assert.Equal(t, config.ServerVersion, resp.Header.Get("API-Version"))
}

func TestPublishAndRetrieve(t *testing.T) {
	env := newIntegrationEnv(t)

	resp, body := env.request(t, http.MethodPost, "/api/assets", "demo-edit", map[string]any{
		"asset_id": "model_Hero",
		"name":     "Hero",
		"family":   "model",
		"version":  1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var created models.UpsertAssetResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "model_Hero", created.AssetID)
	assert.Equal(t, 1, created.Version)

	resp, body = env.request(t, http.MethodGet, "/api/assets/model_Hero", "demo-view", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail models.AssetDetail
	require.NoError(t, json.Unmarshal(body, &detail))
	assert.Equal(t, "Hero", detail.Name)
	assert.Equal(t, "model", detail.Family)
	require.Len(t, detail.Versions, 1)
	assert.Equal(t, 1, detail.Versions[0].Version)
}

func TestPublish_MissingAssetID(t *testing.T) {
	env := newIntegrationEnv(t)
	resp, _ := env.request(t, http.MethodPost, "/api/assets", "demo-edit", map[string]any{"name": "nameless"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRetrieve_UnknownAsset(t *testing.T) {
	env := newIntegrationEnv(t)
	resp, _ := env.request(t, http.MethodGet, "/api/assets/ghost", "demo-view", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadDownload_RoundTrip(t *testing.T) {
	env := newIntegrationEnv(t)
	content := "v hero obj payload"

	resp := env.upload(t, "demo-edit", "model_Hero", 1, "hero.obj", content)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// download is an open endpoint
	dresp, data := env.request(t, http.MethodGet, "/api/assets/model_Hero/download?version=1&format=obj", "", nil)
	require.Equal(t, http.StatusNotFound, dresp.StatusCode) // no asset row yet: upload alone does not register the asset

	_, _ = env.request(t, http.MethodPost, "/api/assets", "demo-edit", map[string]any{
		"asset_id": "model_Hero", "name": "Hero", "family": "model", "version": 1,
	})
	dresp, data = env.request(t, http.MethodGet, "/api/assets/model_Hero/download?version=1&format=obj", "", nil)
	require.Equal(t, http.StatusOK, dresp.StatusCode)
	assert.Equal(t, content, string(data))

	// wrong version or format is a distinct miss
	dresp, _ = env.request(t, http.MethodGet, "/api/assets/model_Hero/download?version=2&format=obj", "", nil)
	assert.Equal(t, http.StatusNotFound, dresp.StatusCode)
	dresp, _ = env.request(t, http.MethodGet, "/api/assets/model_Hero/download?version=1&format=fbx", "", nil)
	assert.Equal(t, http.StatusNotFound, dresp.StatusCode)
}

func TestPackage_ZipPerVersion(t *testing.T) {
	env := newIntegrationEnv(t)

	_, _ = env.request(t, http.MethodPost, "/api/assets", "demo-edit", map[string]any{
		"asset_id": "model_Hero", "name": "Hero", "family": "model", "version": 1,
	})
	require.Equal(t, http.StatusOK, env.upload(t, "demo-edit", "model_Hero", 1, "hero.obj", "obj").StatusCode)
	require.Equal(t, http.StatusOK, env.upload(t, "demo-edit", "model_Hero", 1, "hero.fbx", "fbx").StatusCode)
	require.Equal(t, http.StatusOK, env.upload(t, "demo-edit", "model_Hero", 2, "hero2.obj", "obj2").StatusCode)

	readZip := func(version, wantFiles int) {
		resp, data := env.request(t, http.MethodGet, fmt.Sprintf("/api/assets/model_Hero/package?version=%d", version), "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		require.NoError(t, err)

		names := map[string]bool{}
		for _, f := range zr.File {
			names[f.Name] = true
		}
		assert.True(t, names["metadata.json"], "package v%d misses metadata.json", version)
		fileEntries := 0
		for name := range names {
			if strings.HasPrefix(name, "files/") {
				fileEntries++
			}
		}
		assert.Equal(t, wantFiles, fileEntries, "package v%d", version)
	}
	readZip(1, 2)
	readZip(2, 1)
}

func TestRoleEnforcement(t *testing.T) {
	env := newIntegrationEnv(t)
	payload := map[string]any{"asset_id": "a1", "version": 1}

	resp, _ := env.request(t, http.MethodPost, "/api/assets", "", payload)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.request(t, http.MethodPost, "/api/assets", "demo-view", payload)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.request(t, http.MethodPost, "/api/assets", "demo-edit", payload)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// editors cannot hard delete
	resp, _ = env.request(t, http.MethodDelete, "/api/assets/a1", "demo-edit", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// admin passes every gate
	resp, _ = env.request(t, http.MethodGet, "/api/assets", "demo-admin", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.request(t, http.MethodDelete, "/api/assets/a1", "demo-admin", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPatch_WhitelistedFieldsOnly(t *testing.T) {
	env := newIntegrationEnv(t)
	_, _ = env.request(t, http.MethodPost, "/api/assets", "demo-edit", map[string]any{
		"asset_id": "a1", "name": "A", "family": "model", "version": 1,
	})

	resp, _ := env.request(t, http.MethodPatch, "/api/assets/a1", "demo-edit", map[string]any{
		"description": "updated",
		"family":      "rig", // not whitelisted, must be ignored
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body := env.request(t, http.MethodGet, "/api/assets/a1", "demo-view", nil)
	var detail models.AssetDetail
	require.NoError(t, json.Unmarshal(body, &detail))
	assert.Equal(t, "updated", detail.Description)
	assert.Equal(t, "model", detail.Family)
}

func TestStatusCommentArchive(t *testing.T) {
	env := newIntegrationEnv(t)
	_, _ = env.request(t, http.MethodPost, "/api/assets", "demo-edit", map[string]any{
		"asset_id": "a1", "name": "A", "family": "model", "version": 2,
	})

	resp, _ := env.request(t, http.MethodPost, "/api/assets/a1/status", "demo-edit", map[string]any{"status": "review"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.request(t, http.MethodPost, "/api/assets/a1/comment", "demo-view", map[string]any{"author": "kim", "body": "nice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.request(t, http.MethodPost, "/api/assets/a1/versions/2/archive", "demo-edit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body := env.request(t, http.MethodGet, "/api/assets/a1", "demo-view", nil)
	var detail models.AssetDetail
	require.NoError(t, json.Unmarshal(body, &detail))
	assert.Equal(t, "review", detail.Status)
	require.Len(t, detail.Versions, 1)
	assert.True(t, detail.Versions[0].Archived)
}

func TestDeleteVersion_RemovesRowsAndBytes(t *testing.T) {
	env := newIntegrationEnv(t)
	_, _ = env.request(t, http.MethodPost, "/api/assets", "demo-edit", map[string]any{
		"asset_id": "a1", "name": "A", "family": "model", "version": 1,
	})
	require.Equal(t, http.StatusOK, env.upload(t, "demo-edit", "a1", 1, "a.obj", "bytes").StatusCode)

	vdir := env.store.VersionDir("a1", 1)
	_, err := os.Stat(vdir)
	require.NoError(t, err)

	resp, _ := env.request(t, http.MethodDelete, "/api/assets/a1/versions/1", "demo-admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = os.Stat(vdir)
	assert.True(t, os.IsNotExist(err))

	_, body := env.request(t, http.MethodGet, "/api/assets/a1", "demo-view", nil)
	var detail models.AssetDetail
	require.NoError(t, json.Unmarshal(body, &detail))
	assert.Empty(t, detail.Versions)
	assert.Empty(t, detail.Files)
}

func TestChanges_PollingContract(t *testing.T) {
	env := newIntegrationEnv(t)
	for i := 1; i <= 3; i++ {
		_, _ = env.request(t, http.MethodPost, "/api/assets", "demo-edit", map[string]any{
			"asset_id": fmt.Sprintf("a%d", i), "family": "model", "version": 1,
		})
	}

	// each publish writes asset_upsert + version_upsert
	resp, body := env.request(t, http.MethodGet, "/api/changes", "demo-view", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page models.ChangeListResponse
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Items, 6)

	// changes require at least viewer
	resp, _ = env.request(t, http.MethodGet, "/api/changes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// id cursor: strictly-after, no repeats
	mid := page.Items[2].ID
	resp, body = env.request(t, http.MethodGet, fmt.Sprintf("/api/changes?since_id=%d", mid), "demo-view", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tail models.ChangeListResponse
	require.NoError(t, json.Unmarshal(body, &tail))
	require.Len(t, tail.Items, 3)
	for _, c := range tail.Items {
		assert.Greater(t, c.ID, mid)
	}

	// timestamp cursor: a row equal to since is never re-delivered
	last := page.Items[5].CreatedAt
	resp, body = env.request(t, http.MethodGet, "/api/changes?since="+last, "demo-view", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var empty models.ChangeListResponse
	require.NoError(t, json.Unmarshal(body, &empty))
	assert.Empty(t, empty.Items)
}

func TestListAssets_FamilyFilter(t *testing.T) {
	env := newIntegrationEnv(t)
	_, _ = env.request(t, http.MethodPost, "/api/assets", "demo-edit", map[string]any{"asset_id": "m1", "family": "Model", "version": 1})
	_, _ = env.request(t, http.MethodPost, "/api/assets", "demo-edit", map[string]any{"asset_id": "r1", "family": "rig", "version": 1})

	resp, body := env.request(t, http.MethodGet, "/api/assets?family=model", "demo-view", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page models.AssetListResponse
	require.NoError(t, json.Unmarshal(body, &page))
	require.Equal(t, 1, page.Count)
	assert.Equal(t, "m1", page.Items[0].ID) // family is lowercased on publish
}
