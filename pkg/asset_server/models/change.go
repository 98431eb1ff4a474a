package models

// Change types, one per mutating repository operation.
const (
	ChangeAssetUpsert     = "asset_upsert"
	ChangeVersionUpsert   = "version_upsert"
	ChangeFileAdded       = "file_added"
	ChangeAssetUpdate     = "asset_update"
	ChangeVersionArchived = "version_archived"
	ChangeVersionDeleted  = "version_deleted"
	ChangeAssetDeleted    = "asset_deleted"
	ChangeComment         = "comment"
)

// Change is one append-only log row. The autoincrement id is exposed to
// clients as a tie-proof cursor alongside the created_at timestamp.
type Change struct {
	ID          int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	ChangeType  string `json:"change_type" gorm:"column:change_type;index"`
	AssetID     string `json:"asset_id" gorm:"column:asset_id;index"`
	PayloadJSON string `json:"-" gorm:"column:payload_json"`
	CreatedAt   string `json:"created_at" gorm:"column:created_at;index"`
}

// ChangePayload describes one mutation. Exactly the fields relevant to the
// change type are set; everything else stays omitted from the JSON payload.
type ChangePayload struct {
	Name        string `json:"name,omitempty"`
	Family      string `json:"family,omitempty"`
	Description string `json:"description,omitempty"`
	Tags        string `json:"tags,omitempty"`
	Status      string `json:"status,omitempty"`
	Version     *int   `json:"version,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Author      string `json:"author,omitempty"`
}

// ChangeRecord is the external view of a change row.
type ChangeRecord struct {
	ID         int64         `json:"id"`
	ChangeType string        `json:"change_type"`
	AssetID    string        `json:"asset_id"`
	Payload    ChangePayload `json:"payload"`
	CreatedAt  string        `json:"created_at"`
}
