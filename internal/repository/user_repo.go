package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"bazaar/internal/model"
)

// ErrUserNotFound user does not exist
var ErrUserNotFound = errors.New("user not found")

// UserRepository user repository interface
type UserRepository interface {
	// Create user
	Create(ctx context.Context, user *model.User) error

	// Get user by username
	GetByUsername(ctx context.Context, username string) (*model.User, error)

	// Get user by user key
	GetByUserKey(ctx context.Context, userKey string) (*model.User, error)

	// List admin user keys
	ListAdminKeys(ctx context.Context) ([]string, error)
}

// userRepository user repository implementation
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a user
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByUsername gets a user by username
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByUserKey gets a user by user key
func (r *userRepository) GetByUserKey(ctx context.Context, userKey string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("user_key = ?", userKey).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ListAdminKeys lists the user keys of all admins
func (r *userRepository) ListAdminKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("role = ?", model.RoleAdmin).
		Pluck("user_key", &keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}
