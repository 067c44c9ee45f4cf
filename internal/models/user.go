package models

import (
	"time"
)

// User is created lazily the first time a request carries a new username.
// The username is an opaque string supplied by the trusted host platform;
// there are no credentials here and users are never deleted in normal operation.
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"` // case-sensitive, immutable
	CreatedAt time.Time `json:"created_at"`
}
