package models

import (
	"time"
)

type Post struct {
	ID          string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID      string `gorm:"type:varchar(36);not null;index" json:"user_id"`
	User        User   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"user"`
	Title       string `gorm:"not null" json:"title"`
	Genre       string `gorm:"not null" json:"genre"`
	Description string `gorm:"type:text;not null" json:"description"`
	// StoragePath is the authoritative location of the audio object. StorageURL
	// is a legacy cached URL; playback URLs are signed on demand instead.
	StoragePath     string    `gorm:"not null" json:"storage_path"`
	StorageURL      string    `json:"storage_url"`
	CoverImagePath  string    `json:"cover_image_path"`
	CoverImageURL   string    `json:"cover_image_url"`
	MimeType        string    `gorm:"not null" json:"mime_type"`
	DurationSeconds int       `gorm:"not null" json:"duration_seconds"` // must stay < 600
	ScoreCached     int       `gorm:"default:0" json:"score_cached"`    // denormalized, refreshed on every vote write
	CreatedAt       time.Time `gorm:"index" json:"created_at"`

	// Not a database column, filled in batch at query time.
	CommentCount int `gorm:"-" json:"comment_count"`
}
