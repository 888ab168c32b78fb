package model

import (
	"time"
)

// Order order model. StatusLedger holds the composite status string,
// see internal/service/ledger for the encoding.
type Order struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo      string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"order_no"`
	BuyerKey     string    `gorm:"type:varchar(64);not null;index" json:"buyer_key"`
	TotalAmount  int64     `gorm:"type:bigint;not null" json:"total_amount"`
	DeliveryFee  int64     `gorm:"type:bigint;not null;default:0" json:"delivery_fee"`
	StatusLedger string    `gorm:"type:varchar(2048);not null;default:''" json:"status_ledger"`
	CreatedAt    time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt    time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

// TableName set name
func (Order) TableName() string {
	return "orders"
}

// OrderItem order item model. Immutable once the order is created.
type OrderItem struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID    uint64    `gorm:"type:bigint unsigned;not null;index" json:"order_id"`
	OrderNo    string    `gorm:"type:varchar(32);not null;index" json:"order_no"`
	ProductKey string    `gorm:"type:varchar(64);not null;index" json:"product_key"`
	SellerKey  string    `gorm:"type:varchar(64);not null;index" json:"seller_key"`
	Quantity   int       `gorm:"type:int;not null" json:"quantity"`
	Price      int64     `gorm:"type:bigint;not null" json:"price"`
	Heavy      bool      `gorm:"not null;default:false" json:"heavy"`
	Note       *string   `gorm:"type:varchar(500)" json:"note,omitempty"`
	CreatedAt  time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName set name
func (OrderItem) TableName() string {
	return "order_items"
}

// Order lifecycle steps, stored as opaque strings in the ledger
const (
	StepReview    = "0"
	StepConfirmed = "1"
	StepShipped   = "2"
	StepDelivered = "3"
	StepCancelled = "4"
	StepRejected  = "5"
	StepReturned  = "6"
)

// StepLabel returns a human-readable label for a lifecycle step
func StepLabel(step string) string {
	switch step {
	case StepReview:
		return "Under Review"
	case StepConfirmed:
		return "Confirmed"
	case StepShipped:
		return "Shipped"
	case StepDelivered:
		return "Delivered"
	case StepCancelled:
		return "Cancelled"
	case StepRejected:
		return "Rejected"
	case StepReturned:
		return "Returned"
	default:
		return "Unknown"
	}
}

// ItemByProduct returns the order item for a product key, or nil
func (o *Order) ItemByProduct(productKey string) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ProductKey == productKey {
			return &o.Items[i]
		}
	}
	return nil
}

// SellerKeys returns the distinct seller keys across the order's items
func (o *Order) SellerKeys() []string {
	seen := make(map[string]struct{}, len(o.Items))
	keys := make([]string, 0, len(o.Items))
	for i := range o.Items {
		if _, ok := seen[o.Items[i].SellerKey]; ok {
			continue
		}
		seen[o.Items[i].SellerKey] = struct{}{}
		keys = append(keys, o.Items[i].SellerKey)
	}
	return keys
}

// HasHeavyItems reports whether any item needs special handling
func (o *Order) HasHeavyItems() bool {
	for i := range o.Items {
		if o.Items[i].Heavy {
			return true
		}
	}
	return false
}

// GetTotalAmountUnits total amount in currency units
func (o *Order) GetTotalAmountUnits() float64 {
	return float64(o.TotalAmount) / 100
}

// SellerCourier links a seller to a courier who delivers for them
type SellerCourier struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SellerKey  string    `gorm:"type:varchar(64);not null;index:idx_seller_courier,unique" json:"seller_key"`
	CourierKey string    `gorm:"type:varchar(64);not null;index:idx_seller_courier,unique" json:"courier_key"`
	CreatedAt  time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName set name
func (SellerCourier) TableName() string {
	return "seller_couriers"
}
