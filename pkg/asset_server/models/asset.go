package models

// StatusPublished is the lifecycle status given to newly registered assets.
const StatusPublished = "published"

// Asset is a named, versioned production deliverable. The id is supplied by
// the publisher and stays stable across republications.
type Asset struct {
	ID          string `json:"id" gorm:"column:id;primaryKey"`
	Name        string `json:"name"`
	Family      string `json:"family"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   string `json:"updated_at" gorm:"column:updated_at"`
}

// Version is one publish of an asset. Numbers are chosen by the caller and
// need not be contiguous; (asset_id, version) is unique.
type Version struct {
	ID            int64  `json:"-" gorm:"primaryKey;autoIncrement"`
	AssetID       string `json:"asset_id" gorm:"column:asset_id;uniqueIndex:idx_asset_version"`
	Version       int    `json:"version" gorm:"column:version;uniqueIndex:idx_asset_version"`
	MetadataJSON  string `json:"-" gorm:"column:metadata_json"`
	ThumbnailPath string `json:"thumbnail_path" gorm:"column:thumbnail_path"`
	Archived      bool   `json:"archived"`
	CreatedAt     string `json:"created_at" gorm:"column:created_at"`
	UpdatedAt     string `json:"updated_at" gorm:"column:updated_at"`
}

// File is one stored file row under a version. Rows are append-only: a
// repeated upload of the same filename adds a row while the storage layer
// overwrites the bytes, so rows can outnumber distinct files on disk.
type File struct {
	ID        int64  `json:"-" gorm:"primaryKey;autoIncrement"`
	AssetID   string `json:"asset_id" gorm:"column:asset_id;index"`
	Version   int    `json:"version" gorm:"column:version"`
	Filename  string `json:"filename"`
	RelPath   string `json:"rel_path" gorm:"column:rel_path"`
	Format    string `json:"format"`
	SizeBytes int64  `json:"size_bytes" gorm:"column:size_bytes"`
}

// Comment is an append-only note on an asset. Authors are free text.
type Comment struct {
	ID        int64  `json:"-" gorm:"primaryKey;autoIncrement"`
	AssetID   string `json:"asset_id" gorm:"column:asset_id;index"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at" gorm:"column:created_at"`
}
