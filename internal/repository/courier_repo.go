package repository

import (
	"context"

	"gorm.io/gorm"

	"bazaar/internal/model"
)

// CourierRepository seller-courier relation repository interface
type CourierRepository interface {
	// CouriersBySellers returns courier keys grouped by seller key in one
	// query. Sellers with no linked courier are absent from the map.
	CouriersBySellers(ctx context.Context, sellerKeys []string) (map[string][]string, error)

	// Link associates a courier with a seller
	Link(ctx context.Context, sellerKey, courierKey string) error

	// Unlink removes the association, idempotent
	Unlink(ctx context.Context, sellerKey, courierKey string) error
}

// courierRepository implementation
type courierRepository struct {
	db *gorm.DB
}

// NewCourierRepository creates a courier repository
func NewCourierRepository(db *gorm.DB) CourierRepository {
	return &courierRepository{db: db}
}

// CouriersBySellers groups courier keys by seller
func (r *courierRepository) CouriersBySellers(ctx context.Context, sellerKeys []string) (map[string][]string, error) {
	result := make(map[string][]string)
	if len(sellerKeys) == 0 {
		return result, nil
	}

	var rows []model.SellerCourier
	err := r.db.WithContext(ctx).
		Where("seller_key IN ?", sellerKeys).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		result[row.SellerKey] = append(result[row.SellerKey], row.CourierKey)
	}
	return result, nil
}

// Link associates a courier with a seller
func (r *courierRepository) Link(ctx context.Context, sellerKey, courierKey string) error {
	return r.db.WithContext(ctx).Create(&model.SellerCourier{
		SellerKey:  sellerKey,
		CourierKey: courierKey,
	}).Error
}

// Unlink removes the association
func (r *courierRepository) Unlink(ctx context.Context, sellerKey, courierKey string) error {
	return r.db.WithContext(ctx).
		Where("seller_key = ? AND courier_key = ?", sellerKey, courierKey).
		Delete(&model.SellerCourier{}).Error
}
