package models

import (
	"time"
)

// Votes are scoped separately to posts and comments, one row per
// (user, target). Value is 1 or -1; "no vote" is the absence of a row,
// never a stored zero.

type PostVote struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_post_vote" json:"user_id"`
	PostID    string    `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_user_post_vote" json:"post_id"`
	Value     int       `gorm:"not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

type CommentVote struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_comment_vote" json:"user_id"`
	CommentID string    `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_user_comment_vote" json:"comment_id"`
	Value     int       `gorm:"not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
}
