package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"bazaar/internal/model"
)

// ErrOrderNotFound order does not exist
var ErrOrderNotFound = errors.New("order not found")

// OrderRepository order repository interface
type OrderRepository interface {
	// Create order with its items
	Create(ctx context.Context, order *model.Order) error

	// Get order by order number, items preloaded
	GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error)

	// Update the composite status ledger string
	UpdateStatusLedger(ctx context.Context, orderNo string, ledger string) error

	// Update total amount (out-of-band pricing adjustment)
	UpdateTotalAmount(ctx context.Context, orderNo string, totalAmount int64) error

	// List buyer orders
	ListBuyerOrders(ctx context.Context, buyerKey string, page, pageSize int) ([]*model.Order, int64, error)
}

// orderRepository order repository implementation
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates an order repository
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create creates an order and its items in one transaction
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items := order.Items
		order.Items = nil
		if err := tx.Create(order).Error; err != nil {
			return err
		}

		if len(items) > 0 {
			for i := range items {
				items[i].OrderID = order.ID
				items[i].OrderNo = order.OrderNo
			}
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		order.Items = items

		return nil
	})
}

// GetByOrderNo gets an order by order number
func (r *orderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_no = ?", orderNo).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// UpdateStatusLedger updates the status ledger string
func (r *orderRepository) UpdateStatusLedger(ctx context.Context, orderNo string, ledger string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_no = ?", orderNo).
		Update("status_ledger", ledger)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdateTotalAmount updates the order total
func (r *orderRepository) UpdateTotalAmount(ctx context.Context, orderNo string, totalAmount int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_no = ?", orderNo).
		Update("total_amount", totalAmount)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ListBuyerOrders lists orders for a buyer, newest first
func (r *orderRepository) ListBuyerOrders(ctx context.Context, buyerKey string, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{}).Where("buyer_key = ?", buyerKey)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}
