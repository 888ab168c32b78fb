// Package order implements checkout and the order status lifecycle. Every
// status mutation goes through the ledger codec and emits a dispatch
// message; notification delivery is a best-effort side channel and never
// fails the mutation itself.
package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bazaar/internal/model"
	"bazaar/internal/monitor"
	"bazaar/internal/repository"
	"bazaar/internal/service/delivery"
	"bazaar/internal/service/ledger"
	"bazaar/pkg/log"
	"bazaar/pkg/queue"
	"bazaar/pkg/snowflake"
	"bazaar/pkg/utils"
)

// CheckoutItem one cart line at checkout
type CheckoutItem struct {
	ProductKey string         `json:"product_key" binding:"required"`
	SellerKey  string         `json:"seller_key" binding:"required"`
	Quantity   int            `json:"quantity" binding:"required,min=1"`
	Price      int64          `json:"price" binding:"required,min=0"`
	Heavy      bool           `json:"heavy"`
	Note       string         `json:"note"`
	Pickup     delivery.Point `json:"pickup"`
}

// CheckoutRequest checkout input
type CheckoutRequest struct {
	BuyerKey string           `json:"buyer_key"`
	Items    []CheckoutItem   `json:"items" binding:"required,min=1"`
	Customer delivery.Point   `json:"customer"`
	Delivery delivery.Options `json:"delivery"`
}

// BulkTransitionResult per-order outcome of a bulk step transition
type BulkTransitionResult struct {
	OrderNo string `json:"order_no"`
	Error   string `json:"error,omitempty"`
}

// OrderService order lifecycle service interface
type OrderService interface {
	// Checkout creates an order with its delivery fee and initial ledger
	Checkout(ctx context.Context, req *CheckoutRequest) (*model.Order, error)

	// GetOrder returns an order by number, items included
	GetOrder(ctx context.Context, orderNo string) (*model.Order, error)

	// ListBuyerOrders pages through a buyer's orders
	ListBuyerOrders(ctx context.Context, buyerKey string, page, pageSize int) ([]*model.Order, int64, error)

	// UpdateItemStatus merges one item's status into the order ledger
	UpdateItemStatus(ctx context.Context, orderNo, productKey, newStatus, actorKey string) error

	// TransitionStep moves the order-wide lifecycle step
	TransitionStep(ctx context.Context, orderNo, step, actorKey string) error

	// TransitionSteps applies one step to many orders, best-effort per order
	TransitionSteps(ctx context.Context, orderNos []string, step, actorKey string) []BulkTransitionResult

	// EstimateDelivery prices the delivery for a prospective cart
	EstimateDelivery(ctx context.Context, customer delivery.Point, pickups []delivery.Point, opts delivery.Options) delivery.Estimate
}

type orderService struct {
	repo      repository.OrderRepository
	estimator *delivery.Estimator
	idGen     *snowflake.IDGenerator
	mq        queue.MessageQueue
	topic     string
	depot     delivery.Point
	metrics   *monitor.MetricsCollector
}

// NewOrderService creates an order service publishing dispatch messages
// to topic
func NewOrderService(
	repo repository.OrderRepository,
	estimator *delivery.Estimator,
	idGen *snowflake.IDGenerator,
	mq queue.MessageQueue,
	topic string,
	depot delivery.Point,
	metrics *monitor.MetricsCollector,
) OrderService {
	return &orderService{
		repo:      repo,
		estimator: estimator,
		idGen:     idGen,
		mq:        mq,
		topic:     topic,
		depot:     depot,
		metrics:   metrics,
	}
}

var validSteps = map[string]struct{}{
	model.StepReview:    {},
	model.StepConfirmed: {},
	model.StepShipped:   {},
	model.StepDelivered: {},
	model.StepCancelled: {},
	model.StepRejected:  {},
	model.StepReturned:  {},
}

// Checkout creates the order. The delivery fee comes from the estimator
// and is part of the stored order; an estimator failure prices delivery
// at zero rather than blocking the purchase.
func (s *orderService) Checkout(ctx context.Context, req *CheckoutRequest) (*model.Order, error) {
	if req == nil || req.BuyerKey == "" || len(req.Items) == 0 {
		return nil, utils.ErrInvalidParam
	}

	var total int64
	pickups := make([]delivery.Point, 0, len(req.Items))
	heavy := false
	items := make([]model.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		if it.ProductKey == "" || it.SellerKey == "" || it.Quantity <= 0 {
			return nil, utils.ErrInvalidParam
		}
		total += it.Price * int64(it.Quantity)
		if it.Pickup.Valid() {
			pickups = append(pickups, it.Pickup)
		}
		if it.Heavy {
			heavy = true
		}
		item := model.OrderItem{
			ProductKey: it.ProductKey,
			SellerKey:  it.SellerKey,
			Quantity:   it.Quantity,
			Price:      it.Price,
			Heavy:      it.Heavy,
		}
		if it.Note != "" {
			note := it.Note
			item.Note = &note
		}
		items = append(items, item)
	}

	opts := req.Delivery
	opts.HeavyItems = opts.HeavyItems || heavy
	estimate := s.estimator.Estimate(ctx, s.depot, req.Customer, pickups, opts)
	if estimate.Err != "" {
		log.WithFields(map[string]interface{}{
			"buyer_key": req.BuyerKey,
			"err":       estimate.Err,
		}).Warn("Delivery estimate failed during checkout, fee set to zero")
	}

	order := &model.Order{
		OrderNo:     fmt.Sprintf("ORD%d", s.idGen.NextID()),
		BuyerKey:    req.BuyerKey,
		TotalAmount: total + estimate.Cost,
		DeliveryFee: estimate.Cost,
		StatusLedger: ledger.Encode(ledger.Record{
			Step:           model.StepReview,
			TransitionedAt: time.Now().UTC().Truncate(time.Second),
			Overlay:        map[string]string{},
		}),
		Items: items,
	}

	if err := s.repo.Create(ctx, order); err != nil {
		s.recordOrder("failure")
		return nil, utils.WrapError(err, utils.CodeDatabaseError, "failed to create order")
	}
	s.recordOrder("success")

	s.publishEvent(ctx, order, "order-created", "Order Created", nil, req.BuyerKey)
	return order, nil
}

// GetOrder returns an order by number
func (s *orderService) GetOrder(ctx context.Context, orderNo string) (*model.Order, error) {
	if orderNo == "" {
		return nil, utils.ErrInvalidParam
	}
	return s.repo.GetByOrderNo(ctx, orderNo)
}

// ListBuyerOrders pages a buyer's orders, newest first
func (s *orderService) ListBuyerOrders(ctx context.Context, buyerKey string, page, pageSize int) ([]*model.Order, int64, error) {
	if buyerKey == "" {
		return nil, 0, utils.ErrInvalidParam
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.repo.ListBuyerOrders(ctx, buyerKey, page, pageSize)
}

// UpdateItemStatus merges a per-item status into the ledger. The overlay
// write is idempotent: repeating the same update leaves the ledger as-is.
func (s *orderService) UpdateItemStatus(ctx context.Context, orderNo, productKey, newStatus, actorKey string) error {
	if orderNo == "" || productKey == "" || newStatus == "" {
		return utils.ErrInvalidParam
	}

	order, err := s.repo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return err
	}
	if order.ItemByProduct(productKey) == nil {
		return utils.NewError(utils.CodeInvalidParam, "product not part of order")
	}

	updated := ledger.UpdateItemStatus(order.StatusLedger, productKey, newStatus)
	if err := s.repo.UpdateStatusLedger(ctx, orderNo, updated); err != nil {
		return err
	}
	order.StatusLedger = updated

	changed := []model.ItemChange{{ProductKey: productKey, NewStatus: newStatus}}
	s.publishEvent(ctx, order, "item-"+newStatus, "Item "+newStatus, changed, actorKey)
	return nil
}

// TransitionStep moves the order-wide step, stamping a fresh transition
// time and preserving the item overlay
func (s *orderService) TransitionStep(ctx context.Context, orderNo, step, actorKey string) error {
	if _, ok := validSteps[step]; !ok {
		return utils.NewError(utils.CodeInvalidParam, "unknown lifecycle step")
	}

	order, err := s.repo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		s.recordStep(step, "failure")
		return err
	}

	updated := ledger.SetStep(order.StatusLedger, step)
	if err := s.repo.UpdateStatusLedger(ctx, orderNo, updated); err != nil {
		s.recordStep(step, "failure")
		return err
	}
	order.StatusLedger = updated
	s.recordStep(step, "success")

	label := model.StepLabel(step)
	s.publishEvent(ctx, order, stepEventKey(step), label, nil, actorKey)
	return nil
}

// TransitionSteps applies a step to many orders. One failing order does
// not stop the rest; callers get the per-order outcomes.
func (s *orderService) TransitionSteps(ctx context.Context, orderNos []string, step, actorKey string) []BulkTransitionResult {
	results := make([]BulkTransitionResult, 0, len(orderNos))
	for _, orderNo := range orderNos {
		r := BulkTransitionResult{OrderNo: orderNo}
		if err := s.TransitionStep(ctx, orderNo, step, actorKey); err != nil {
			r.Error = utils.GetErrorMessage(err)
		}
		results = append(results, r)
	}
	return results
}

// EstimateDelivery prices a prospective delivery without creating an order
func (s *orderService) EstimateDelivery(ctx context.Context, customer delivery.Point, pickups []delivery.Point, opts delivery.Options) delivery.Estimate {
	return s.estimator.Estimate(ctx, s.depot, customer, pickups, opts)
}

// stepEventKey maps a lifecycle step to its notification event key
func stepEventKey(step string) string {
	switch step {
	case model.StepReview:
		return "step-review"
	case model.StepConfirmed:
		return "step-confirmed"
	case model.StepShipped:
		return "step-shipped"
	case model.StepDelivered:
		return "step-delivered"
	case model.StepCancelled:
		return "step-cancelled"
	case model.StepRejected:
		return "step-rejected"
	case model.StepReturned:
		return "step-returned"
	default:
		return "step-unknown"
	}
}

func (s *orderService) publishEvent(ctx context.Context, order *model.Order, eventKey, label string, changed []model.ItemChange, actorKey string) {
	msg := model.DispatchMessage{
		EventKey:  eventKey,
		StepLabel: label,
		OrderNo:   order.OrderNo,
		Changed:   changed,
		ActorKey:  actorKey,
		Timestamp: time.Now().Unix(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).Error("Failed to marshal dispatch message")
		return
	}
	if err := s.mq.Publish(ctx, s.topic, data); err != nil {
		// notification loss is tolerated, order state is already persisted
		log.WithError(err).WithFields(map[string]interface{}{
			"event":    eventKey,
			"order_no": order.OrderNo,
		}).Error("Failed to publish dispatch message")
		if s.metrics != nil {
			s.metrics.RecordQueueMessage(s.topic, "publish", "failure")
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordQueueMessage(s.topic, "publish", "success")
	}
}

func (s *orderService) recordOrder(status string) {
	if s.metrics != nil {
		s.metrics.RecordOrderCreation(status)
	}
}

func (s *orderService) recordStep(step, status string) {
	if s.metrics != nil {
		s.metrics.RecordStepTransition(step, status)
	}
}
