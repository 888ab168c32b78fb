package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"bazaar/internal/middleware"
	"bazaar/internal/model"
	"bazaar/internal/service/delivery"
	"bazaar/internal/service/order"
	"bazaar/pkg/utils"
)

// MockOrderService is a mock implementation of OrderService
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Checkout(ctx context.Context, req *order.CheckoutRequest) (*model.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, orderNo string) (*model.Order, error) {
	args := m.Called(ctx, orderNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) ListBuyerOrders(ctx context.Context, buyerKey string, page, pageSize int) ([]*model.Order, int64, error) {
	args := m.Called(ctx, buyerKey, page, pageSize)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*model.Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderService) UpdateItemStatus(ctx context.Context, orderNo, productKey, newStatus, actorKey string) error {
	args := m.Called(ctx, orderNo, productKey, newStatus, actorKey)
	return args.Error(0)
}

func (m *MockOrderService) TransitionStep(ctx context.Context, orderNo, step, actorKey string) error {
	args := m.Called(ctx, orderNo, step, actorKey)
	return args.Error(0)
}

func (m *MockOrderService) TransitionSteps(ctx context.Context, orderNos []string, step, actorKey string) []order.BulkTransitionResult {
	args := m.Called(ctx, orderNos, step, actorKey)
	return args.Get(0).([]order.BulkTransitionResult)
}

func (m *MockOrderService) EstimateDelivery(ctx context.Context, customer delivery.Point, pickups []delivery.Point, opts delivery.Options) delivery.Estimate {
	args := m.Called(ctx, customer, pickups, opts)
	return args.Get(0).(delivery.Estimate)
}

// authAs injects a fake authenticated user the way the auth middleware
// would
func authAs(userKey, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserKeyKey, userKey)
		c.Set(middleware.UserRoleKey, role)
		c.Next()
	}
}

func performJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestOrderHandler_Checkout(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("successful checkout", func(t *testing.T) {
		mockService := &MockOrderService{}
		handler := NewOrderHandler(mockService)

		router := gin.New()
		router.POST("/orders", authAs("buyer-1", model.RoleBuyer), handler.Checkout)

		created := &model.Order{OrderNo: "ORD1", BuyerKey: "buyer-1", TotalAmount: 5000}
		mockService.On("Checkout", mock.Anything, mock.MatchedBy(func(req *order.CheckoutRequest) bool {
			return req.BuyerKey == "buyer-1" && len(req.Items) == 1
		})).Return(created, nil)

		w := performJSON(router, http.MethodPost, "/orders", order.CheckoutRequest{
			Items: []order.CheckoutItem{
				{ProductKey: "P1", SellerKey: "seller-1", Quantity: 1, Price: 5000},
			},
		})

		assert.Equal(t, http.StatusOK, w.Code)
		var resp utils.Response
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int(utils.CodeSuccess), resp.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		mockService := &MockOrderService{}
		handler := NewOrderHandler(mockService)

		router := gin.New()
		router.POST("/orders", handler.Checkout)

		w := performJSON(router, http.MethodPost, "/orders", order.CheckoutRequest{
			Items: []order.CheckoutItem{
				{ProductKey: "P1", SellerKey: "seller-1", Quantity: 1, Price: 5000},
			},
		})

		var resp utils.Response
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int(utils.CodeUnauthorized), resp.Code)
		mockService.AssertNotCalled(t, "Checkout")
	})

	t.Run("invalid body", func(t *testing.T) {
		mockService := &MockOrderService{}
		handler := NewOrderHandler(mockService)

		router := gin.New()
		router.POST("/orders", authAs("buyer-1", model.RoleBuyer), handler.Checkout)

		w := performJSON(router, http.MethodPost, "/orders", gin.H{"items": []gin.H{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestOrderHandler_UpdateItemStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockService := &MockOrderService{}
	handler := NewOrderHandler(mockService)

	router := gin.New()
	router.PATCH("/orders/:order_no/items", authAs("seller-1", model.RoleSeller), handler.UpdateItemStatus)

	mockService.On("UpdateItemStatus", mock.Anything, "ORD1", "P1", "confirmed", "seller-1").Return(nil)

	w := performJSON(router, http.MethodPatch, "/orders/ORD1/items", gin.H{
		"product_key": "P1",
		"new_status":  "confirmed",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestOrderHandler_BulkTransition(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockService := &MockOrderService{}
	handler := NewOrderHandler(mockService)

	router := gin.New()
	router.POST("/orders/transition", authAs("admin-1", model.RoleAdmin), handler.BulkTransition)

	results := []order.BulkTransitionResult{
		{OrderNo: "ORD1"},
		{OrderNo: "ORD2", Error: "order not found"},
	}
	mockService.On("TransitionSteps", mock.Anything, []string{"ORD1", "ORD2"}, model.StepConfirmed, "admin-1").Return(results)

	w := performJSON(router, http.MethodPost, "/orders/transition", gin.H{
		"order_nos": []string{"ORD1", "ORD2"},
		"step":      model.StepConfirmed,
	})

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestOrderHandler_Estimate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockService := &MockOrderService{}
	handler := NewOrderHandler(mockService)

	router := gin.New()
	router.POST("/delivery/estimate", handler.Estimate)

	estimate := delivery.Estimate{Cost: 780, DistanceKm: 4.2, Vehicle: delivery.VehicleCar}
	mockService.On("EstimateDelivery", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(estimate)

	w := performJSON(router, http.MethodPost, "/delivery/estimate", gin.H{
		"customer": gin.H{"lat": 48.86, "lng": 2.36},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Code int               `json:"code"`
		Data delivery.Estimate `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(780), resp.Data.Cost)
	mockService.AssertExpectations(t)
}
