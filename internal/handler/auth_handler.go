package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bazaar/internal/middleware"
	"bazaar/internal/service/auth"
	"bazaar/pkg/utils"
)

// AuthHandler authentication handler
type AuthHandler struct {
	authService auth.AuthService
}

// NewAuthHandler creates an authentication handler
func NewAuthHandler(authService auth.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Register user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid parameters: "+err.Error())
		return
	}

	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		utils.Error(c, utils.GetErrorCode(err), utils.GetErrorMessage(err))
		return
	}

	utils.SuccessResponse(c, gin.H{
		"user_key": user.UserKey,
		"username": user.Username,
		"role":     user.Role,
	})
}

// Login user login. A device token in the request body is registered for
// push delivery as part of the session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid parameters: "+err.Error())
		return
	}

	tokenResp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		utils.Error(c, utils.GetErrorCode(err), utils.GetErrorMessage(err))
		return
	}

	utils.SuccessResponse(c, tokenResp)
}

// Logout user logout, revokes the session's push token
func (h *AuthHandler) Logout(c *gin.Context) {
	userKey, ok := middleware.GetUserKey(c)
	if !ok {
		utils.Error(c, utils.CodeUnauthorized, "not logged in")
		return
	}

	if err := h.authService.Logout(c.Request.Context(), userKey); err != nil {
		utils.Error(c, utils.GetErrorCode(err), utils.GetErrorMessage(err))
		return
	}

	utils.SuccessResponse(c, nil)
}

// RefreshToken exchanges a refresh token for a new access token
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid parameters: "+err.Error())
		return
	}

	access, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		utils.Error(c, utils.GetErrorCode(err), utils.GetErrorMessage(err))
		return
	}

	utils.SuccessResponse(c, gin.H{
		"access_token": access,
		"token_type":   "Bearer",
	})
}
