package repository

import (
	"context"

	"gorm.io/gorm"

	"bazaar/internal/model"
)

// TokenRepository push token repository interface
type TokenRepository interface {
	// Replace atomically repoints user and token to each other: any existing
	// row for the user and any existing row for the token are removed before
	// the new pairing is inserted. All three writes commit or none do.
	Replace(ctx context.Context, userKey, token, platform string) error

	// DeleteByUser removes the user's token, idempotent
	DeleteByUser(ctx context.Context, userKey string) error

	// GetByUser returns the user's token row, nil when absent
	GetByUser(ctx context.Context, userKey string) (*model.PushToken, error)

	// GetByToken returns the row owning a token, nil when absent
	GetByToken(ctx context.Context, token string) (*model.PushToken, error)

	// ListByUsers returns the token rows for a batch of users in one query;
	// users with no token are simply absent from the result
	ListByUsers(ctx context.Context, userKeys []string) ([]model.PushToken, error)
}

// tokenRepository push token repository implementation
type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository creates a token repository
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

// Replace runs delete-by-user, delete-by-token, insert in one transaction
func (r *tokenRepository) Replace(ctx context.Context, userKey, token, platform string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_key = ?", userKey).Delete(&model.PushToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("token = ?", token).Delete(&model.PushToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&model.PushToken{
			UserKey:  userKey,
			Token:    token,
			Platform: platform,
		}).Error
	})
}

// DeleteByUser deletes the row for a user
func (r *tokenRepository) DeleteByUser(ctx context.Context, userKey string) error {
	return r.db.WithContext(ctx).
		Where("user_key = ?", userKey).
		Delete(&model.PushToken{}).Error
}

// GetByUser gets the row for a user
func (r *tokenRepository) GetByUser(ctx context.Context, userKey string) (*model.PushToken, error) {
	var row model.PushToken
	err := r.db.WithContext(ctx).
		Where("user_key = ?", userKey).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetByToken gets the row owning a token
func (r *tokenRepository) GetByToken(ctx context.Context, token string) (*model.PushToken, error) {
	var row model.PushToken
	err := r.db.WithContext(ctx).
		Where("token = ?", token).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListByUsers resolves tokens for a batch of users
func (r *tokenRepository) ListByUsers(ctx context.Context, userKeys []string) ([]model.PushToken, error) {
	if len(userKeys) == 0 {
		return nil, nil
	}

	var rows []model.PushToken
	err := r.db.WithContext(ctx).
		Where("user_key IN ?", userKeys).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
