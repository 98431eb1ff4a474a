package syncagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/vfx-pipeline/asset-server/pkg/asset_server/models"
)

// Client is a thin wrapper over the asset server REST API, authenticating
// every call with a single API key header.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-API-Key", c.APIKey)
	return c.HTTP.Do(req)
}

// PublishAsset registers (or re-registers) an asset plus one version.
func (c *Client) PublishAsset(ctx context.Context, in models.UpsertAssetInput) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/assets", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("publish %s: server returned %s", in.AssetID, resp.Status)
	}
	return nil
}

// UploadFile sends one local file as a multipart upload.
func (c *Client) UploadFile(ctx context.Context, assetID string, version int, family, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	_ = mw.WriteField("asset_id", assetID)
	_ = mw.WriteField("version", fmt.Sprintf("%d", version))
	_ = mw.WriteField("family", family)
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/upload", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload %s: server returned %s", filepath.Base(path), resp.Status)
	}
	return nil
}

// ListChanges polls the change feed using the id cursor, which stays exact
// even when several changes share a timestamp.
func (c *Client) ListChanges(ctx context.Context, sinceID int64) ([]models.ChangeRecord, error) {
	url := c.BaseURL + "/api/changes"
	if sinceID > 0 {
		url = fmt.Sprintf("%s?since_id=%d", url, sinceID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("changes: server returned %s", resp.Status)
	}
	var out models.ChangeListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Items, nil
}
