package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"bazaar/internal/model"
)

// NotificationLogRepository delivery/receipt log repository interface.
// The log is append-only.
type NotificationLogRepository interface {
	// Append inserts a log entry
	Append(ctx context.Context, entry *model.NotificationLog) error

	// HasReceived reports whether a received entry with this message id exists
	HasReceived(ctx context.Context, messageID string) (bool, error)

	// ListRecent lists entries newest first
	ListRecent(ctx context.Context, page, pageSize int) ([]*model.NotificationLog, int64, error)

	// MarkRead flips an entry to read status
	MarkRead(ctx context.Context, id uint64) error
}

// notificationLogRepository implementation
type notificationLogRepository struct {
	db *gorm.DB
}

// NewNotificationLogRepository creates a notification log repository
func NewNotificationLogRepository(db *gorm.DB) NotificationLogRepository {
	return &notificationLogRepository{db: db}
}

// Append inserts a log entry
func (r *notificationLogRepository) Append(ctx context.Context, entry *model.NotificationLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// HasReceived checks for an existing received entry by message id
func (r *notificationLogRepository) HasReceived(ctx context.Context, messageID string) (bool, error) {
	var row model.NotificationLog
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND type = ?", messageID, model.NotificationTypeReceived).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListRecent lists entries newest first
func (r *notificationLogRepository) ListRecent(ctx context.Context, page, pageSize int) ([]*model.NotificationLog, int64, error) {
	var entries []*model.NotificationLog
	var total int64

	query := r.db.WithContext(ctx).Model(&model.NotificationLog{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// MarkRead flips an entry to read status
func (r *notificationLogRepository) MarkRead(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).
		Model(&model.NotificationLog{}).
		Where("id = ?", id).
		Update("status", model.NotificationStatusRead).Error
}
