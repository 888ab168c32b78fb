package order

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/model"
	"bazaar/internal/repository"
	"bazaar/internal/service/delivery"
	"bazaar/internal/service/ledger"
	"bazaar/pkg/queue"
	"bazaar/pkg/snowflake"
)

type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*model.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]*model.Order)}
}

func (r *memOrderRepo) Create(ctx context.Context, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.OrderNo] = order
	return nil
}

func (r *memOrderRepo) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[orderNo]; ok {
		copied := *o
		return &copied, nil
	}
	return nil, repository.ErrOrderNotFound
}

func (r *memOrderRepo) UpdateStatusLedger(ctx context.Context, orderNo string, ledgerStr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNo]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.StatusLedger = ledgerStr
	return nil
}

func (r *memOrderRepo) UpdateTotalAmount(ctx context.Context, orderNo string, totalAmount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNo]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.TotalAmount = totalAmount
	return nil
}

func (r *memOrderRepo) ListBuyerOrders(ctx context.Context, buyerKey string, page, pageSize int) ([]*model.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Order
	for _, o := range r.orders {
		if o.BuyerKey == buyerKey {
			copied := *o
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

const testTopic = "notify_dispatch"

func newTestService(t *testing.T, repo *memOrderRepo) (OrderService, *queue.MemoryMessageQueue) {
	t.Helper()
	idGen, err := snowflake.NewIDGenerator(1)
	require.NoError(t, err)
	mq := queue.NewMemoryMessageQueue()
	t.Cleanup(func() { mq.Close() })

	estimator := delivery.NewEstimator(delivery.StaticRateSource{Table: delivery.RateTable{
		BaseFee: 300,
		PerKm:   80,
		Vehicle: map[string]float64{delivery.VehicleHeavy: 1.35},
	}}, nil)

	svc := NewOrderService(repo, estimator, idGen, mq, testTopic,
		delivery.Point{Lat: 48.85, Lng: 2.35}, nil)
	return svc, mq
}

func consumeDispatch(t *testing.T, mq *queue.MemoryMessageQueue) model.DispatchMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	data, err := mq.Consume(ctx, testTopic)
	require.NoError(t, err)
	var msg model.DispatchMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func checkoutRequest() *CheckoutRequest {
	return &CheckoutRequest{
		BuyerKey: "buyer-1",
		Items: []CheckoutItem{
			{ProductKey: "P1", SellerKey: "seller-1", Quantity: 2, Price: 1500,
				Pickup: delivery.Point{Lat: 48.86, Lng: 2.36}},
			{ProductKey: "P2", SellerKey: "seller-2", Quantity: 1, Price: 4000},
		},
		Customer: delivery.Point{Lat: 48.87, Lng: 2.37},
	}
}

func TestCheckout_CreatesOrderWithFeeAndLedger(t *testing.T) {
	repo := newMemOrderRepo()
	svc, mq := newTestService(t, repo)

	order, err := svc.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, order.OrderNo)
	assert.Greater(t, order.DeliveryFee, int64(0))
	assert.Equal(t, int64(7000)+order.DeliveryFee, order.TotalAmount)

	rec := ledger.Decode(order.StatusLedger)
	assert.Equal(t, model.StepReview, rec.Step)
	assert.Empty(t, rec.Overlay)

	msg := consumeDispatch(t, mq)
	assert.Equal(t, "order-created", msg.EventKey)
	assert.Equal(t, order.OrderNo, msg.OrderNo)
	assert.Equal(t, "buyer-1", msg.ActorKey)
}

func TestCheckout_RejectsEmptyCart(t *testing.T) {
	svc, _ := newTestService(t, newMemOrderRepo())
	_, err := svc.Checkout(context.Background(), &CheckoutRequest{BuyerKey: "buyer-1"})
	assert.Error(t, err)
}

func TestCheckout_HeavyItemRaisesFee(t *testing.T) {
	svc, mq := newTestService(t, newMemOrderRepo())
	ctx := context.Background()

	light, err := svc.Checkout(ctx, checkoutRequest())
	require.NoError(t, err)
	consumeDispatch(t, mq)

	heavyReq := checkoutRequest()
	heavyReq.Items[0].Heavy = true
	heavy, err := svc.Checkout(ctx, heavyReq)
	require.NoError(t, err)
	consumeDispatch(t, mq)

	assert.Greater(t, heavy.DeliveryFee, light.DeliveryFee)
}

func TestUpdateItemStatus_MergesOverlayAndPublishes(t *testing.T) {
	repo := newMemOrderRepo()
	svc, mq := newTestService(t, repo)
	ctx := context.Background()

	order, err := svc.Checkout(ctx, checkoutRequest())
	require.NoError(t, err)
	consumeDispatch(t, mq)

	require.NoError(t, svc.UpdateItemStatus(ctx, order.OrderNo, "P1", "confirmed", "seller-1"))

	stored, err := repo.GetByOrderNo(ctx, order.OrderNo)
	require.NoError(t, err)
	rec := ledger.Decode(stored.StatusLedger)
	assert.Equal(t, "confirmed", rec.Overlay["P1"])
	// item updates never move the order-wide step
	assert.Equal(t, model.StepReview, rec.Step)

	msg := consumeDispatch(t, mq)
	assert.Equal(t, "item-confirmed", msg.EventKey)
	require.Len(t, msg.Changed, 1)
	assert.Equal(t, "P1", msg.Changed[0].ProductKey)
}

func TestUpdateItemStatus_UnknownProduct(t *testing.T) {
	svc, mq := newTestService(t, newMemOrderRepo())
	ctx := context.Background()

	order, err := svc.Checkout(ctx, checkoutRequest())
	require.NoError(t, err)
	consumeDispatch(t, mq)

	assert.Error(t, svc.UpdateItemStatus(ctx, order.OrderNo, "P99", "confirmed", "seller-1"))
}

func TestTransitionStep_PreservesOverlay(t *testing.T) {
	repo := newMemOrderRepo()
	svc, mq := newTestService(t, repo)
	ctx := context.Background()

	order, err := svc.Checkout(ctx, checkoutRequest())
	require.NoError(t, err)
	consumeDispatch(t, mq)

	require.NoError(t, svc.UpdateItemStatus(ctx, order.OrderNo, "P1", "packed", "seller-1"))
	consumeDispatch(t, mq)

	require.NoError(t, svc.TransitionStep(ctx, order.OrderNo, model.StepShipped, "admin-1"))

	stored, err := repo.GetByOrderNo(ctx, order.OrderNo)
	require.NoError(t, err)
	rec := ledger.Decode(stored.StatusLedger)
	assert.Equal(t, model.StepShipped, rec.Step)
	assert.Equal(t, "packed", rec.Overlay["P1"])

	msg := consumeDispatch(t, mq)
	assert.Equal(t, "step-shipped", msg.EventKey)
	assert.Equal(t, "Shipped", msg.StepLabel)
}

func TestTransitionStep_RejectsUnknownStep(t *testing.T) {
	svc, _ := newTestService(t, newMemOrderRepo())
	assert.Error(t, svc.TransitionStep(context.Background(), "ORD1", "9", "admin-1"))
}

func TestTransitionSteps_BulkContinuesPastFailures(t *testing.T) {
	repo := newMemOrderRepo()
	svc, mq := newTestService(t, repo)
	ctx := context.Background()

	a, err := svc.Checkout(ctx, checkoutRequest())
	require.NoError(t, err)
	consumeDispatch(t, mq)
	b, err := svc.Checkout(ctx, checkoutRequest())
	require.NoError(t, err)
	consumeDispatch(t, mq)

	results := svc.TransitionSteps(ctx, []string{a.OrderNo, "ORD-missing", b.OrderNo}, model.StepConfirmed, "admin-1")
	require.Len(t, results, 3)
	assert.Empty(t, results[0].Error)
	assert.NotEmpty(t, results[1].Error)
	assert.Empty(t, results[2].Error)

	stored, err := repo.GetByOrderNo(ctx, b.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, model.StepConfirmed, ledger.Decode(stored.StatusLedger).Step)
}

func TestGetOrder_NotFound(t *testing.T) {
	svc, _ := newTestService(t, newMemOrderRepo())
	_, err := svc.GetOrder(context.Background(), "ORD-none")
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestListBuyerOrders(t *testing.T) {
	svc, mq := newTestService(t, newMemOrderRepo())
	ctx := context.Background()

	_, err := svc.Checkout(ctx, checkoutRequest())
	require.NoError(t, err)
	consumeDispatch(t, mq)

	orders, total, err := svc.ListBuyerOrders(ctx, "buyer-1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, orders, 1)
}
