package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bazaar/internal/repository"
	"bazaar/internal/service/notify"
	"bazaar/pkg/utils"
)

// NotificationHandler inbound receipt webhook and log read side
type NotificationHandler struct {
	engine  *notify.Engine
	logRepo repository.NotificationLogRepository
}

// NewNotificationHandler creates a notification handler
func NewNotificationHandler(engine *notify.Engine, logRepo repository.NotificationLogRepository) *NotificationHandler {
	return &NotificationHandler{
		engine:  engine,
		logRepo: logRepo,
	}
}

// Inbound records a received push. Re-deliveries of the same message_id
// are absorbed; a missing message_id is always stored under a generated
// one.
func (h *NotificationHandler) Inbound(c *gin.Context) {
	var req struct {
		MessageID    string `json:"message_id"`
		Title        string `json:"title" binding:"required"`
		Body         string `json:"body"`
		RelatedParty string `json:"related_party"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid parameters: "+err.Error())
		return
	}

	err := h.engine.HandleInbound(c.Request.Context(), req.MessageID, req.Title, req.Body, req.RelatedParty)
	if err != nil {
		utils.Error(c, utils.GetErrorCode(err), utils.GetErrorMessage(err))
		return
	}

	utils.SuccessResponse(c, nil)
}

// List pages the notification log, newest first
func (h *NotificationHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	entries, total, err := h.logRepo.ListRecent(c.Request.Context(), page, pageSize)
	if err != nil {
		utils.Error(c, utils.GetErrorCode(err), utils.GetErrorMessage(err))
		return
	}

	utils.SuccessPageResponse(c, entries, total, page, pageSize)
}

// MarkRead marks one log entry as read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.logRepo.MarkRead(c.Request.Context(), id); err != nil {
		utils.Error(c, utils.GetErrorCode(err), utils.GetErrorMessage(err))
		return
	}

	utils.SuccessResponse(c, nil)
}
