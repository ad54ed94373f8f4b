// internal/handlers/license.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/devmart/devmart-backend/internal/middleware"
	"github.com/devmart/devmart-backend/internal/services"
	"github.com/devmart/devmart-backend/internal/utils"
)

type LicenseHandler struct {
	licenseService *services.LicenseService
}

func NewLicenseHandler(licenseService *services.LicenseService) *LicenseHandler {
	return &LicenseHandler{
		licenseService: licenseService,
	}
}

// POST /licenses/purchase
func (h *LicenseHandler) Purchase(c *gin.Context) {
	userID := utils.GetUserUUIDFromContext(c)
	if userID == nil {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}

	var req services.PurchaseLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	result, err := h.licenseService.PurchaseLicense(c.Request.Context(), *userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProjectNotFound):
			utils.NotFoundResponse(c, "project")
		case errors.Is(err, services.ErrAlreadyLicensed):
			middleware.RecordPurchase("conflict")
			utils.ConflictResponse(c, "you already hold an active license for this project")
		case errors.Is(err, services.ErrSelfPurchase):
			middleware.RecordPurchase("conflict")
			utils.ConflictResponse(c, "you cannot purchase a license for your own project")
		case errors.Is(err, services.ErrProviderFailure):
			middleware.RecordPurchase("provider_error")
			utils.ErrorResponse(c, 502, "PAYMENT_PROVIDER_ERROR", "payment provider is unavailable", nil)
		default:
			middleware.RecordPurchase("failed")
			utils.BadRequestResponse(c, err.Error(), nil)
		}
		return
	}

	middleware.RecordPurchase("created")
	utils.CreatedResponse(c, result)
}

// GET /licenses
func (h *LicenseHandler) MyLicenses(c *gin.Context) {
	userID := utils.GetUserUUIDFromContext(c)
	if userID == nil {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}

	params := utils.GetPaginationParams(c)
	licenses, total, err := h.licenseService.GetUserLicenses(*userID, params)
	if err != nil {
		utils.InternalErrorResponse(c, "failed to fetch licenses")
		return
	}

	result := utils.CreatePaginationResult(licenses, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /licenses/:id
func (h *LicenseHandler) Get(c *gin.Context) {
	userID := utils.GetUserUUIDFromContext(c)
	if userID == nil {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid license id", nil)
		return
	}

	license, err := h.licenseService.GetLicense(id, *userID)
	if err != nil {
		if errors.Is(err, services.ErrLicenseNotFound) {
			utils.NotFoundResponse(c, "license")
			return
		}
		utils.InternalErrorResponse(c, "failed to fetch license")
		return
	}

	utils.SuccessResponse(c, license)
}

// GET /licenses/:id/verify
func (h *LicenseHandler) Verify(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid license id", nil)
		return
	}

	license, valid, err := h.licenseService.VerifyLicense(id)
	if err != nil {
		if errors.Is(err, services.ErrLicenseNotFound) {
			utils.NotFoundResponse(c, "license")
			return
		}
		utils.InternalErrorResponse(c, "failed to verify license")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"license_id":   license.ID,
		"project_id":   license.ProjectID,
		"license_type": license.LicenseType,
		"is_valid":     valid,
		"expires_at":   license.ExpiresAt,
	})
}
