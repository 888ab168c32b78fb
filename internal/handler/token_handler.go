package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bazaar/internal/middleware"
	"bazaar/internal/service/notify"
	"bazaar/pkg/utils"
)

// TokenHandler push token handler. Registration runs the full dispatch
// setup: provider registration with retry plus registry upsert.
type TokenHandler struct {
	engine *notify.Engine
}

// NewTokenHandler creates a push token handler
func NewTokenHandler(engine *notify.Engine) *TokenHandler {
	return &TokenHandler{
		engine: engine,
	}
}

// RegisterToken registers the caller's device token for push delivery
func (h *TokenHandler) RegisterToken(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Platform string `json:"platform" binding:"required,oneof=web android ios"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid parameters: "+err.Error())
		return
	}

	userKey, ok := middleware.GetUserKey(c)
	if !ok {
		utils.Error(c, utils.CodeUnauthorized, "not logged in")
		return
	}

	if err := h.engine.Setup(c.Request.Context(), userKey, req.Token, req.Platform); err != nil {
		utils.Error(c, utils.GetErrorCode(err), utils.GetErrorMessage(err))
		return
	}

	utils.SuccessResponse(c, nil)
}
