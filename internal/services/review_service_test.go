// internal/services/review_service_test.go
package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devmart/devmart-backend/internal/models"
	"github.com/devmart/devmart-backend/internal/utils"
)

func TestCreateReview(t *testing.T) {
	db := newTestDB(t)
	svc := NewReviewService(db)

	owner := createTestUser(t, db, "seller")
	reviewer := createTestUser(t, db, "reviewer")
	project := createTestProject(t, db, owner.ID, 20)

	review, err := svc.CreateReview(project.ID, reviewer.ID, &CreateReviewRequest{
		Rating:  4,
		Comment: "Solid starting point, docs could be better.",
	})
	require.NoError(t, err)

	assert.Equal(t, 4, review.Rating)
	assert.False(t, review.IsVerifiedPurchase)

	// The project aggregate was recomputed.
	var fresh models.Project
	require.NoError(t, db.First(&fresh, project.ID).Error)
	assert.Equal(t, 4.0, fresh.Rating)
	assert.Equal(t, int64(1), fresh.ReviewCount)
}

func TestCreateReviewVerifiedPurchase(t *testing.T) {
	db := newTestDB(t)
	reviews := NewReviewService(db)
	licenses, _ := newTestLicenseService(t, db)

	owner := createTestUser(t, db, "seller")
	buyer := createTestUser(t, db, "buyer")
	project := createTestProject(t, db, owner.ID, 20)

	_, err := licenses.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "free",
	})
	require.NoError(t, err)

	review, err := reviews.CreateReview(project.ID, buyer.ID, &CreateReviewRequest{Rating: 5})
	require.NoError(t, err)
	assert.True(t, review.IsVerifiedPurchase)
}

func TestCreateReviewPendingPurchaseIsNotVerified(t *testing.T) {
	db := newTestDB(t)
	reviews := NewReviewService(db)
	licenses, _ := newTestLicenseService(t, db)

	owner := createTestUser(t, db, "seller")
	buyer := createTestUser(t, db, "buyer")
	project := createTestProject(t, db, owner.ID, 20)

	// Paid purchase that never settled.
	_, err := licenses.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "basic",
	})
	require.NoError(t, err)

	review, err := reviews.CreateReview(project.ID, buyer.ID, &CreateReviewRequest{Rating: 3})
	require.NoError(t, err)
	assert.False(t, review.IsVerifiedPurchase)
}

func TestCreateReviewRejectsDuplicates(t *testing.T) {
	db := newTestDB(t)
	svc := NewReviewService(db)

	owner := createTestUser(t, db, "seller")
	reviewer := createTestUser(t, db, "reviewer")
	project := createTestProject(t, db, owner.ID, 20)

	_, err := svc.CreateReview(project.ID, reviewer.ID, &CreateReviewRequest{Rating: 5})
	require.NoError(t, err)

	_, err = svc.CreateReview(project.ID, reviewer.ID, &CreateReviewRequest{Rating: 1})
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
}

func TestCreateReviewRejectsSelfReview(t *testing.T) {
	db := newTestDB(t)
	svc := NewReviewService(db)

	owner := createTestUser(t, db, "seller")
	project := createTestProject(t, db, owner.ID, 20)

	_, err := svc.CreateReview(project.ID, owner.ID, &CreateReviewRequest{Rating: 5})
	assert.ErrorIs(t, err, ErrSelfReview)
}

func TestCreateReviewValidatesRating(t *testing.T) {
	db := newTestDB(t)
	svc := NewReviewService(db)

	owner := createTestUser(t, db, "seller")
	reviewer := createTestUser(t, db, "reviewer")
	project := createTestProject(t, db, owner.ID, 20)

	for _, rating := range []int{0, 6, -1} {
		_, err := svc.CreateReview(project.ID, reviewer.ID, &CreateReviewRequest{Rating: rating})
		assert.Error(t, err, "rating %d must be rejected", rating)
	}
}

func TestReviewAggregateAcrossMultipleReviews(t *testing.T) {
	db := newTestDB(t)
	svc := NewReviewService(db)

	owner := createTestUser(t, db, "seller")
	project := createTestProject(t, db, owner.ID, 20)

	ratings := []int{5, 3, 4}
	for i, rating := range ratings {
		reviewer := createTestUser(t, db, "reviewer"+string(rune('a'+i)))
		_, err := svc.CreateReview(project.ID, reviewer.ID, &CreateReviewRequest{Rating: rating})
		require.NoError(t, err)
	}

	var fresh models.Project
	require.NoError(t, db.First(&fresh, project.ID).Error)
	assert.InDelta(t, 4.0, fresh.Rating, 0.01)
	assert.Equal(t, int64(3), fresh.ReviewCount)
}

func TestGetProjectReviewsHiddenProject(t *testing.T) {
	db := newTestDB(t)
	svc := NewReviewService(db)

	owner := createTestUser(t, db, "seller")
	reviewer := createTestUser(t, db, "reviewer")
	project := createTestProject(t, db, owner.ID, 20)

	_, err := svc.CreateReview(project.ID, reviewer.ID, &CreateReviewRequest{Rating: 5})
	require.NoError(t, err)

	require.NoError(t, db.Model(project).Update("is_active", false).Error)

	_, _, err = svc.GetProjectReviews(project.ID, &reviewer.ID, utils.PaginationParams{Page: 1, Limit: 10})
	assert.ErrorIs(t, err, ErrProjectNotFound)

	// The owner still sees their own reviews.
	listed, total, err := svc.GetProjectReviews(project.ID, &owner.ID, utils.PaginationParams{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, listed, 1)
}
