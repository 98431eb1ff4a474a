package models

import "strings"

type UpsertAssetInput struct {
	AssetID     string         `json:"asset_id" binding:"required"`
	Name        string         `json:"name"`
	Family      string         `json:"family"`
	Description string         `json:"description"`
	Tags        any            `json:"tags"`
	Metadata    map[string]any `json:"metadata"`
	Version     int            `json:"version"`
}

// NormalizedTags flattens the tags field, which publishers send either as a
// list or as a comma-separated string.
func (in *UpsertAssetInput) NormalizedTags() string {
	return FlattenTags(in.Tags)
}

func FlattenTags(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return strings.Join(t, ",")
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

// UpdateAssetInput carries the PATCH body. Only whitelisted fields exist as
// struct members, so any other key a client sends is ignored by binding.
// Pointers distinguish "absent" from "set to empty".
type UpdateAssetInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Tags        *string `json:"tags"`
	Status      *string `json:"status"`
}

// Fields returns the set columns as a map, empty when nothing was supplied.
func (in *UpdateAssetInput) Fields() map[string]string {
	out := map[string]string{}
	if in.Name != nil {
		out["name"] = *in.Name
	}
	if in.Description != nil {
		out["description"] = *in.Description
	}
	if in.Tags != nil {
		out["tags"] = *in.Tags
	}
	if in.Status != nil {
		out["status"] = *in.Status
	}
	return out
}

type AssetParams struct {
	ID string `path:"id"`
}

type UpdateAssetParams struct {
	ID string `path:"id"`
	UpdateAssetInput
}

type ListAssetsParams struct {
	Family string `query:"family"`
	Status string `query:"status"`
	Limit  int    `query:"limit"`
	Offset int    `query:"offset"`
}

type CommentParams struct {
	ID     string `path:"id"`
	Author string `json:"author"`
	Body   string `json:"body"`
}

type StatusParams struct {
	ID     string `path:"id"`
	Status string `json:"status"`
}

type VersionParams struct {
	ID      string `path:"id"`
	Version int    `path:"version"`
}

type ListChangesParams struct {
	Since   string `query:"since"`
	SinceID int64  `query:"since_id"`
	Limit   int    `query:"limit"`
}
