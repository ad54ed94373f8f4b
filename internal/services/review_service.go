// internal/services/review_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/devmart/devmart-backend/internal/database"
	"github.com/devmart/devmart-backend/internal/models"
	"github.com/devmart/devmart-backend/internal/utils"
)

var (
	ErrAlreadyReviewed = errors.New("you have already reviewed this project")
	ErrSelfReview      = errors.New("cannot review your own project")
)

type ReviewService struct {
	db *gorm.DB
}

type CreateReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment,omitempty" validate:"omitempty,max=2000"`
}

func NewReviewService(db *gorm.DB) *ReviewService {
	return &ReviewService{db: db}
}

// CreateReview persists one review per (project, reviewer) pair. The
// verified-purchase flag is derived here, once, from the presence of a
// completed license.
func (s *ReviewService) CreateReview(projectID, reviewerID uuid.UUID, req *CreateReviewRequest) (*models.Review, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var project models.Project
	if err := s.db.First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !project.VisibleTo(&reviewerID) {
		return nil, ErrProjectNotFound
	}

	if project.OwnerID == reviewerID {
		return nil, ErrSelfReview
	}

	var existing models.Review
	if err := s.db.Where("project_id = ? AND reviewer_id = ?", projectID, reviewerID).
		First(&existing).Error; err == nil {
		return nil, ErrAlreadyReviewed
	}

	var completedLicenses int64
	s.db.Model(&models.License{}).
		Where("project_id = ? AND licensee_id = ? AND payment_status = ?",
			projectID, reviewerID, models.PaymentStatusCompleted).
		Count(&completedLicenses)

	review := &models.Review{
		ProjectID:          projectID,
		ReviewerID:         reviewerID,
		Rating:             req.Rating,
		Comment:            req.Comment,
		IsVerifiedPurchase: completedLicenses > 0,
	}

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.Create(review).Error; err != nil {
			return err
		}
		return recomputeRating(tx, projectID)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyReviewed
		}
		return nil, fmt.Errorf("failed to create review: %w", err)
	}

	return review, nil
}

func (s *ReviewService) GetProjectReviews(projectID uuid.UUID, userID *uuid.UUID, params utils.PaginationParams) ([]models.Review, int64, error) {
	var project models.Project
	if err := s.db.First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrProjectNotFound
		}
		return nil, 0, fmt.Errorf("database error: %w", err)
	}

	if !project.VisibleTo(userID) {
		return nil, 0, ErrProjectNotFound
	}

	query := s.db.Model(&models.Review{}).
		Where("project_id = ?", projectID).
		Preload("Reviewer")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	allowedSortFields := []string{"created_at", "rating"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var reviews []models.Review
	if err := query.Find(&reviews).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch reviews: %w", err)
	}

	return reviews, total, nil
}

func recomputeRating(tx *gorm.DB, projectID uuid.UUID) error {
	var agg struct {
		Avg   float64
		Count int64
	}
	if err := tx.Model(&models.Review{}).
		Where("project_id = ?", projectID).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count").
		Scan(&agg).Error; err != nil {
		return err
	}

	return tx.Model(&models.Project{}).Where("id = ?", projectID).
		Updates(map[string]interface{}{
			"rating":       agg.Avg,
			"review_count": agg.Count,
		}).Error
}
