package model

import (
	"time"
)

// PushToken device push token. At most one row per user and at most one
// row per token; internal/service/token maintains both invariants.
type PushToken struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserKey   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_key"`
	Token     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"token"`
	Platform  string    `gorm:"type:varchar(20);not null" json:"platform"`
	CreatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (PushToken) TableName() string {
	return "push_tokens"
}

// Platform constants
const (
	PlatformWeb     = "web"
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
)
