package models

import (
	"time"
)

type NotificationType string

const (
	NotificationTypeCommentOnPost  NotificationType = "COMMENT_ON_POST"
	NotificationTypeReplyToComment NotificationType = "REPLY_TO_COMMENT"
)

// Notification is written only as a side effect of comment creation and is
// never created for a user's own action.
type Notification struct {
	ID        string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string           `gorm:"type:varchar(36);not null;index" json:"user_id"` // recipient
	User      User             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Type      NotificationType `gorm:"type:varchar(20);not null" json:"type"`
	PostID    string           `gorm:"type:varchar(36);not null;index" json:"post_id"`
	Post      *Post            `gorm:"foreignKey:PostID" json:"-"`
	CommentID string           `gorm:"type:varchar(36);not null;index" json:"comment_id"`
	Comment   *Comment         `gorm:"foreignKey:CommentID" json:"-"`
	ActorID   string           `gorm:"type:varchar(36);not null" json:"triggered_by_user_id"`
	Actor     *User            `gorm:"foreignKey:ActorID" json:"-"`
	IsRead    bool             `gorm:"default:false;index" json:"is_read"`
	ReadAt    *time.Time       `json:"read_at"`
	CreatedAt time.Time        `gorm:"index" json:"created_at"`
}
