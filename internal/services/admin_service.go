// internal/services/admin_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/devmart/devmart-backend/internal/models"
	"github.com/devmart/devmart-backend/internal/utils"
)

var ErrUserNotFound = errors.New("user not found")

type AdminService struct {
	db       *gorm.DB
	licenses *LicenseService
}

type LicenseFilters struct {
	ProjectID     string
	LicenseeID    string
	PaymentStatus string
	ActiveOnly    bool
}

func NewAdminService(db *gorm.DB, licenses *LicenseService) *AdminService {
	return &AdminService{db: db, licenses: licenses}
}

// ListLicenses returns licenses across the whole marketplace with
// optional filtering, for support and reconciliation.
func (s *AdminService) ListLicenses(filters LicenseFilters, params utils.PaginationParams) ([]models.License, int64, error) {
	query := s.db.Model(&models.License{}).
		Preload("Project").
		Preload("Licensee")

	if filters.ProjectID != "" {
		query = query.Where("project_id = ?", filters.ProjectID)
	}
	if filters.LicenseeID != "" {
		query = query.Where("licensee_id = ?", filters.LicenseeID)
	}
	if filters.PaymentStatus != "" {
		query = query.Where("payment_status = ?", filters.PaymentStatus)
	}
	if filters.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count licenses: %w", err)
	}

	allowedSortFields := []string{"created_at", "payment_amount", "payment_status"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var licenses []models.License
	if err := query.Find(&licenses).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch licenses: %w", err)
	}

	return licenses, total, nil
}

// RefundLicense reverses a completed purchase on behalf of support.
func (s *AdminService) RefundLicense(ctx context.Context, licenseID uuid.UUID) (*models.License, error) {
	return s.licenses.RefundLicense(ctx, licenseID)
}

func (s *AdminService) ListUsers(status string, params utils.PaginationParams) ([]models.User, int64, error) {
	query := s.db.Model(&models.User{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	allowedSortFields := []string{"created_at", "username", "email"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	return users, total, nil
}

// SetUserStatus suspends or reinstates an account.
func (s *AdminService) SetUserStatus(userID uuid.UUID, status models.UserStatus) (*models.User, error) {
	if status != models.UserStatusActive && status != models.UserStatusSuspended {
		return nil, fmt.Errorf("invalid user status: %s", status)
	}

	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := s.db.Model(&user).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("failed to update user status: %w", err)
	}
	user.Status = status

	return &user, nil
}
