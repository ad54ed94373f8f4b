// internal/handlers/review.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/devmart/devmart-backend/internal/services"
	"github.com/devmart/devmart-backend/internal/utils"
)

type ReviewHandler struct {
	reviewService *services.ReviewService
}

func NewReviewHandler(reviewService *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{
		reviewService: reviewService,
	}
}

// POST /projects/:id/reviews
func (h *ReviewHandler) Create(c *gin.Context) {
	userID := utils.GetUserUUIDFromContext(c)
	if userID == nil {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}

	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid project id", nil)
		return
	}

	var req services.CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	review, err := h.reviewService.CreateReview(projectID, *userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProjectNotFound):
			utils.NotFoundResponse(c, "project")
		case errors.Is(err, services.ErrAlreadyReviewed):
			utils.ConflictResponse(c, "you have already reviewed this project")
		case errors.Is(err, services.ErrSelfReview):
			utils.ConflictResponse(c, "you cannot review your own project")
		default:
			utils.BadRequestResponse(c, err.Error(), nil)
		}
		return
	}

	utils.CreatedResponse(c, review)
}

// GET /projects/:id/reviews
func (h *ReviewHandler) List(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid project id", nil)
		return
	}

	params := utils.GetPaginationParams(c)
	reviews, total, err := h.reviewService.GetProjectReviews(projectID, utils.GetUserUUIDFromContext(c), params)
	if err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			utils.NotFoundResponse(c, "project")
			return
		}
		utils.InternalErrorResponse(c, "failed to fetch reviews")
		return
	}

	result := utils.CreatePaginationResult(reviews, total, params)
	utils.PaginatedResponse(c, result)
}
