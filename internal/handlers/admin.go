// internal/handlers/admin.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/devmart/devmart-backend/internal/models"
	"github.com/devmart/devmart-backend/internal/services"
	"github.com/devmart/devmart-backend/internal/utils"
)

type AdminHandler struct {
	adminService *services.AdminService
}

func NewAdminHandler(adminService *services.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

// GET /admin/licenses
func (h *AdminHandler) ListLicenses(c *gin.Context) {
	filters := services.LicenseFilters{
		ProjectID:     c.Query("project_id"),
		LicenseeID:    c.Query("licensee_id"),
		PaymentStatus: c.Query("payment_status"),
		ActiveOnly:    c.Query("active") == "true",
	}

	params := utils.GetPaginationParams(c)
	licenses, total, err := h.adminService.ListLicenses(filters, params)
	if err != nil {
		utils.InternalErrorResponse(c, "failed to fetch licenses")
		return
	}

	result := utils.CreatePaginationResult(licenses, total, params)
	utils.PaginatedResponse(c, result)
}

// POST /admin/licenses/:id/refund
func (h *AdminHandler) RefundLicense(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid license id", nil)
		return
	}

	license, err := h.adminService.RefundLicense(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLicenseNotFound):
			utils.NotFoundResponse(c, "license")
		case errors.Is(err, services.ErrNotRefundable):
			utils.ConflictResponse(c, "only completed purchases can be refunded")
		case errors.Is(err, services.ErrProviderFailure):
			utils.ErrorResponse(c, 502, "PAYMENT_PROVIDER_ERROR", "payment provider is unavailable", nil)
		default:
			utils.InternalErrorResponse(c, "failed to refund license")
		}
		return
	}

	utils.SuccessResponse(c, license)
}

// GET /admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	users, total, err := h.adminService.ListUsers(c.Query("status"), params)
	if err != nil {
		utils.InternalErrorResponse(c, "failed to fetch users")
		return
	}

	result := utils.CreatePaginationResult(users, total, params)
	utils.PaginatedResponse(c, result)
}

// PUT /admin/users/:id/status
func (h *AdminHandler) SetUserStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid user id", nil)
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", err.Error())
		return
	}

	user, err := h.adminService.SetUserStatus(id, models.UserStatus(req.Status))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			utils.NotFoundResponse(c, "user")
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, user)
}
