package model

import (
	"time"
)

// NotificationLog append-only delivery/receipt log entry. MessageID is the
// dedup key: received entries are unique per message id, sent entries carry
// a generated id.
type NotificationLog struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID    string    `gorm:"type:varchar(64);not null;index:idx_message_type,unique" json:"message_id"`
	Type         string    `gorm:"type:varchar(10);not null;index:idx_message_type,unique" json:"type"`
	Title        string    `gorm:"type:varchar(200);not null" json:"title"`
	Body         string    `gorm:"type:varchar(1000);not null" json:"body"`
	Status       string    `gorm:"type:varchar(10);not null;default:'unread'" json:"status"`
	RelatedParty string    `gorm:"type:varchar(128)" json:"related_party"`
	Payload      *string   `gorm:"type:text" json:"payload,omitempty"`
	CreatedAt    time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName set name
func (NotificationLog) TableName() string {
	return "notification_logs"
}

// NotificationLog types
const (
	NotificationTypeSent     = "sent"
	NotificationTypeReceived = "received"
)

// NotificationLog statuses
const (
	NotificationStatusUnread = "unread"
	NotificationStatusRead   = "read"
	NotificationStatusFailed = "failed"
)
