// Package models defines the persisted entities and the values that
// cross component boundaries: blobs, their metadata projection, users,
// change events and query filters.
package models

import (
	"fmt"
	"strings"

	"github.com/fioncat/csync/internal/bytesize"
	"github.com/mattn/go-runewidth"
)

// BlobType classifies the payload of a blob.
type BlobType string

const (
	BlobTypeText  BlobType = "text"
	BlobTypeImage BlobType = "image"
	BlobTypeFile  BlobType = "file"
)

// ParseBlobType parses the wire representation used by the
// X-Csync-Blob-Type header.
func ParseBlobType(s string) (BlobType, error) {
	switch BlobType(strings.ToLower(s)) {
	case BlobTypeText:
		return BlobTypeText, nil
	case BlobTypeImage:
		return BlobTypeImage, nil
	case BlobTypeFile:
		return BlobTypeFile, nil
	default:
		return "", fmt.Errorf("invalid blob type %q", s)
	}
}

// IsValid reports whether the type is one of text, image, file.
func (t BlobType) IsValid() bool {
	switch t {
	case BlobTypeText, BlobTypeImage, BlobTypeFile:
		return true
	}
	return false
}

func (t BlobType) String() string {
	return string(t)
}

// Blob is a typed clipboard payload owned by one user.
//
// IDs are assigned by the database and keep increasing across deletes
// (AUTOINCREMENT), so a re-inserted payload is distinguishable from the
// row it replaced. recycle_time is zero exactly when the blob is
// pinned; otherwise it is the unix second after which the recycler may
// delete the row.
type Blob struct {
	ID          int64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Data        []byte   `gorm:"column:data;not null" json:"-"`
	BlobType    BlobType `gorm:"column:blob_type;size:16;not null" json:"blob_type"`
	Sha256      string   `gorm:"column:sha256;size:64;not null;index" json:"sha256"`
	Size        int64    `gorm:"column:size;not null" json:"size"`
	FileName    string   `gorm:"column:file_name" json:"file_name,omitempty"`
	FileMode    int64    `gorm:"column:file_mode" json:"file_mode,omitempty"`
	Owner       string   `gorm:"column:owner;size:255;not null;index" json:"owner"`
	Pin         bool     `gorm:"column:pin;not null" json:"pin"`
	Summary     string   `gorm:"column:summary;index" json:"summary"`
	UpdateTime  int64    `gorm:"column:update_time;not null;index" json:"update_time"`
	RecycleTime int64    `gorm:"column:recycle_time;not null;index" json:"recycle_time"`
}

// TableName returns the table name for Blob.
func (Blob) TableName() string {
	return "blob"
}

// Metadata returns the blob without its payload.
func (b *Blob) Metadata() Metadata {
	return Metadata{
		ID:          b.ID,
		BlobType:    b.BlobType,
		Sha256:      b.Sha256,
		Size:        b.Size,
		FileName:    b.FileName,
		FileMode:    b.FileMode,
		Owner:       b.Owner,
		Pin:         b.Pin,
		Summary:     b.Summary,
		UpdateTime:  b.UpdateTime,
		RecycleTime: b.RecycleTime,
	}
}

// Metadata is the projection of a Blob without its data. All list and
// query responses, and every event item, carry Metadata.
type Metadata struct {
	ID          int64    `gorm:"column:id" json:"id"`
	BlobType    BlobType `gorm:"column:blob_type" json:"blob_type"`
	Sha256      string   `gorm:"column:sha256" json:"sha256"`
	Size        int64    `gorm:"column:size" json:"size"`
	FileName    string   `gorm:"column:file_name" json:"file_name,omitempty"`
	FileMode    int64    `gorm:"column:file_mode" json:"file_mode,omitempty"`
	Owner       string   `gorm:"column:owner" json:"owner"`
	Pin         bool     `gorm:"column:pin" json:"pin"`
	Summary     string   `gorm:"column:summary" json:"summary"`
	UpdateTime  int64    `gorm:"column:update_time" json:"update_time"`
	RecycleTime int64    `gorm:"column:recycle_time" json:"recycle_time"`
}

// TableName lets Metadata scan straight from the blob table.
func (Metadata) TableName() string {
	return "blob"
}

// summaryWidth is the display-column budget for text summaries.
const summaryWidth = 64

var newlineFlattener = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// BuildSummary derives the short display string stored with a blob.
//
// Text content is flattened to one line and truncated by display
// columns (wide runes count as two) with a "..." suffix. Image and file
// blobs render a fixed form with a human-readable size.
func BuildSummary(blobType BlobType, data []byte, fileName string) string {
	switch blobType {
	case BlobTypeImage:
		return fmt.Sprintf("<PNG Image, %s>", bytesize.Format(int64(len(data))))
	case BlobTypeFile:
		return fmt.Sprintf("<File, %s, %s>", fileName, bytesize.Format(int64(len(data))))
	default:
		s := newlineFlattener.Replace(string(data))
		return runewidth.Truncate(s, summaryWidth, "...")
	}
}
