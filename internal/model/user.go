package model

import (
	"time"
)

// User user model
type User struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserKey   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_key"`
	Username  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"type:varchar(128);not null" json:"-"`
	Role      string    `gorm:"type:varchar(20);not null;default:'buyer';index" json:"role"`
	CreatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (User) TableName() string {
	return "users"
}

// Role constants, one per notification audience
const (
	RoleBuyer    = "buyer"
	RoleSeller   = "seller"
	RoleDelivery = "delivery"
	RoleAdmin    = "admin"
)

// IsAdmin check user is admin
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
