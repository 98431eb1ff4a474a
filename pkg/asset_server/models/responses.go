package models

type StatsResponse struct {
	OK      bool   `json:"ok"`
	Time    string `json:"time"`
	Version string `json:"version"`
}

type UpsertAssetResponse struct {
	AssetID string `json:"asset_id"`
	Version int    `json:"version"`
}

type UploadResponse struct {
	OK      bool   `json:"ok"`
	AssetID string `json:"asset_id"`
	Version int    `json:"version"`
	RelPath string `json:"rel_path"`
}

type AssetListResponse struct {
	Items []Asset `json:"items"`
	Count int     `json:"count"`
}

// VersionInfo is the external view of a version row with its metadata
// deserialized back into a document.
type VersionInfo struct {
	Version       int            `json:"version"`
	Metadata      map[string]any `json:"metadata"`
	ThumbnailPath string         `json:"thumbnail_path"`
	Archived      bool           `json:"archived"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
}

type FileInfo struct {
	Version   int    `json:"version"`
	Filename  string `json:"filename"`
	RelPath   string `json:"rel_path"`
	Format    string `json:"format"`
	SizeBytes int64  `json:"size_bytes"`
}

// AssetDetail is the full read model: the asset row plus all versions
// (descending) and all file rows.
type AssetDetail struct {
	Asset
	Versions []VersionInfo `json:"versions"`
	Files    []FileInfo    `json:"files"`
}

type ChangeListResponse struct {
	Items []ChangeRecord `json:"items"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}
