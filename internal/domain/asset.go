package domain

import (
	"strings"
	"time"
)

const DefaultOriginalName = "edited-image"

// Asset is the metadata record persisted for every stored image. JSON keys match
// the on-disk document so existing data files stay readable.
type Asset struct {
	ID           string    `json:"id"`
	StoredName   string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	CreatedAt    time.Time `json:"editedAt"`
	SizeBytes    int64     `json:"size"`
	MimeType     string    `json:"type"`
}

// StoredName derives the flat storage filename for an asset id.
func StoredName(id, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		return id
	}
	return id + "." + ext
}

// OriginalNameOrDefault keeps a caller label as-is and only substitutes the
// placeholder when nothing was supplied.
func OriginalNameOrDefault(name, ext string) string {
	if name != "" {
		return name
	}
	return StoredName(DefaultOriginalName, ext)
}

const (
	EventAssetCreated = "asset.created"
	EventAssetDeleted = "asset.deleted"
)
