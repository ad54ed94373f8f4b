// internal/handlers/auth.go
package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/devmart/devmart-backend/internal/models"
	"github.com/devmart/devmart-backend/internal/services"
	"github.com/devmart/devmart-backend/internal/utils"
)

type AuthHandler struct {
	authService  *services.AuthService
	oauthService *services.OAuthService
}

func NewAuthHandler(authService *services.AuthService, oauthService *services.OAuthService) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		oauthService: oauthService,
	}
}

// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	authResponse, err := h.authService.Register(&req)
	if err != nil {
		switch err {
		case services.ErrEmailTaken, services.ErrUsernameTaken:
			utils.ConflictResponse(c, err.Error())
		default:
			utils.BadRequestResponse(c, err.Error(), nil)
		}
		return
	}

	utils.CreatedResponse(c, authResponse)
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	authResponse, err := h.authService.Login(&req)
	if err != nil {
		utils.UnauthorizedResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, authResponse)
}

// POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req services.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", err.Error())
		return
	}

	authResponse, err := h.authService.RefreshToken(&req)
	if err != nil {
		utils.UnauthorizedResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, authResponse)
}

// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)

	accessToken := ""
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		accessToken = strings.TrimPrefix(header, "Bearer ")
	}

	h.authService.Logout(accessToken, req.RefreshToken)

	utils.SuccessResponse(c, gin.H{"message": "logged out"})
}

// GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}

	user, err := h.authService.GetUser(userID)
	if err != nil {
		utils.NotFoundResponse(c, "user")
		return
	}

	utils.SuccessResponse(c, user)
}

// GET /auth/oauth/:provider
func (h *AuthHandler) OAuthRedirect(c *gin.Context) {
	provider := models.OAuthProvider(c.Param("provider"))

	state, err := utils.GenerateOAuthState()
	if err != nil {
		utils.InternalErrorResponse(c, "failed to start oauth flow")
		return
	}

	url, err := h.oauthService.AuthURL(provider, state)
	if err != nil {
		utils.BadRequestResponse(c, "unknown oauth provider", nil)
		return
	}

	// The caller stores the state and verifies it on callback.
	utils.SuccessResponse(c, gin.H{
		"auth_url": url,
		"state":    state,
	})
}

// POST /auth/oauth/:provider/callback
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	provider := models.OAuthProvider(c.Param("provider"))

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", err.Error())
		return
	}

	authResponse, err := h.oauthService.HandleCallback(c.Request.Context(), provider, req.Code)
	if err != nil {
		switch err {
		case services.ErrUnknownOAuthProvider:
			utils.BadRequestResponse(c, err.Error(), nil)
		case services.ErrAccountSuspended:
			utils.ForbiddenResponse(c, err.Error())
		default:
			utils.ErrorResponse(c, 502, "OAUTH_EXCHANGE_FAILED", "oauth provider rejected the authorization code", nil)
		}
		return
	}

	utils.SuccessResponse(c, authResponse)
}
