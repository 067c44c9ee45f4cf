package models

import (
	"time"
)

type Comment struct {
	ID       string   `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PostID   string   `gorm:"type:varchar(36);not null;index" json:"post_id"`
	Post     Post     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"post"`
	UserID   string   `gorm:"type:varchar(36);not null;index" json:"user_id"`
	User     User     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"user"`
	ParentID *string  `gorm:"type:varchar(36);index" json:"parent_comment_id"` // nil for top-level comments
	Parent   *Comment `gorm:"foreignKey:ParentID" json:"-"`
	Body     string   `gorm:"type:text;not null" json:"body"`
	// A parent comment must belong to the same post. This is enforced at
	// creation time in the handler, not by a storage constraint.
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
