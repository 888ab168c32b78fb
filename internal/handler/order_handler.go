package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bazaar/internal/middleware"
	"bazaar/internal/service/delivery"
	"bazaar/internal/service/order"
	"bazaar/pkg/utils"
)

// OrderHandler order lifecycle handler
type OrderHandler struct {
	orderService order.OrderService
}

// NewOrderHandler creates an order handler
func NewOrderHandler(orderService order.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// Checkout creates an order from the authenticated buyer's cart
func (h *OrderHandler) Checkout(c *gin.Context) {
	var req order.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid parameters: "+err.Error())
		return
	}

	userKey, ok := middleware.GetUserKey(c)
	if !ok {
		utils.Error(c, utils.CodeUnauthorized, "not logged in")
		return
	}
	req.BuyerKey = userKey

	created, err := h.orderService.Checkout(c.Request.Context(), &req)
	if err != nil {
		utils.Error(c, utils.GetErrorCode(err), utils.GetErrorMessage(err))
		return
	}

	utils.SuccessResponse(c, created)
}

// GetOrder returns one order with its items
func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderNo := c.Param("order_no")

	o, err := h.orderService.GetOrder(c.Request.Context(), orderNo)
	if err != nil {
		utils.Error(c, utils.GetErrorCode(err), utils.GetErrorMessage(err))
		return
	}

	utils.SuccessResponse(c, o)
}

// ListOrders pages the authenticated buyer's orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	userKey, ok := middleware.GetUserKey(c)
	if !ok {
		utils.Error(c, utils.CodeUnauthorized, "not logged in")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	orders, total, err := h.orderService.ListBuyerOrders(c.Request.Context(), userKey, page, pageSize)
	if err != nil {
		utils.Error(c, utils.GetErrorCode(err), utils.GetErrorMessage(err))
		return
	}

	utils.SuccessPageResponse(c, orders, total, page, pageSize)
}

// UpdateItemStatus merges one item's status into the order ledger
func (h *OrderHandler) UpdateItemStatus(c *gin.Context) {
	orderNo := c.Param("order_no")

	var req struct {
		ProductKey string `json:"product_key" binding:"required"`
		NewStatus  string `json:"new_status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid parameters: "+err.Error())
		return
	}

	actorKey, _ := middleware.GetUserKey(c)
	if err := h.orderService.UpdateItemStatus(c.Request.Context(), orderNo, req.ProductKey, req.NewStatus, actorKey); err != nil {
		utils.Error(c, utils.GetErrorCode(err), utils.GetErrorMessage(err))
		return
	}

	utils.SuccessResponse(c, nil)
}

// TransitionStep moves one order's lifecycle step
func (h *OrderHandler) TransitionStep(c *gin.Context) {
	orderNo := c.Param("order_no")

	var req struct {
		Step string `json:"step" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid parameters: "+err.Error())
		return
	}

	actorKey, _ := middleware.GetUserKey(c)
	if err := h.orderService.TransitionStep(c.Request.Context(), orderNo, req.Step, actorKey); err != nil {
		utils.Error(c, utils.GetErrorCode(err), utils.GetErrorMessage(err))
		return
	}

	utils.SuccessResponse(c, nil)
}

// BulkTransition applies one lifecycle step to many orders
func (h *OrderHandler) BulkTransition(c *gin.Context) {
	var req struct {
		OrderNos []string `json:"order_nos" binding:"required,min=1"`
		Step     string   `json:"step" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid parameters: "+err.Error())
		return
	}

	actorKey, _ := middleware.GetUserKey(c)
	results := h.orderService.TransitionSteps(c.Request.Context(), req.OrderNos, req.Step, actorKey)
	utils.SuccessResponse(c, results)
}

// Estimate prices delivery for a prospective cart without creating an order
func (h *OrderHandler) Estimate(c *gin.Context) {
	var req struct {
		Customer delivery.Point   `json:"customer" binding:"required"`
		Pickups  []delivery.Point `json:"pickups"`
		Options  delivery.Options `json:"options"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid parameters: "+err.Error())
		return
	}

	estimate := h.orderService.EstimateDelivery(c.Request.Context(), req.Customer, req.Pickups, req.Options)
	utils.SuccessResponse(c, estimate)
}
