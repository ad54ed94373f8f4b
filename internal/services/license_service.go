// internal/services/license_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/devmart/devmart-backend/internal/database"
	"github.com/devmart/devmart-backend/internal/models"
	"github.com/devmart/devmart-backend/internal/utils"
)

var (
	ErrProjectNotFound     = errors.New("project not found")
	ErrLicenseNotFound     = errors.New("license not found")
	ErrAlreadyLicensed     = errors.New("an active license already exists for this project")
	ErrSelfPurchase        = errors.New("cannot buy a license for your own project")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrLicenseRefunded     = errors.New("license has been refunded")
	ErrProviderFailure     = errors.New("payment provider failure")
	ErrNotRefundable       = errors.New("only completed purchases can be refunded")
)

type LicenseService struct {
	db       *gorm.DB
	policy   LicensePolicy
	provider PaymentProvider
	timeout  time.Duration
}

type PurchaseLicenseRequest struct {
	ProjectID   uuid.UUID `json:"project_id" validate:"required"`
	LicenseType string    `json:"license_type" validate:"required,license_type"`
}

type PurchaseLicenseResponse struct {
	License         *models.License `json:"license"`
	RequiresPayment bool            `json:"requires_payment"`
	ClientSecret    string          `json:"client_secret,omitempty"`
}

func NewLicenseService(db *gorm.DB, policy LicensePolicy, provider PaymentProvider, providerTimeout time.Duration) *LicenseService {
	return &LicenseService{
		db:       db,
		policy:   policy,
		provider: provider,
		timeout:  providerTimeout,
	}
}

// PurchaseLicense runs the conflict guard and the resolver, then either
// activates a zero-price grant immediately or creates a provider-side
// payment intent and persists the grant as pending. Confirmation
// happens later through ConfirmPayment.
func (s *LicenseService) PurchaseLicense(ctx context.Context, licenseeID uuid.UUID, req *PurchaseLicenseRequest) (*PurchaseLicenseResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var licensee models.User
	if err := s.db.First(&licensee, licenseeID).Error; err != nil {
		return nil, fmt.Errorf("licensee not found: %w", err)
	}

	if licensee.Status != models.UserStatusActive {
		return nil, errors.New("account is not active")
	}

	var project models.Project
	if err := s.db.First(&project, req.ProjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if project.OwnerID == licenseeID {
		return nil, ErrSelfPurchase
	}

	// Draft or deactivated projects do not exist for non-owners.
	if !project.VisibleTo(&licenseeID) {
		return nil, ErrProjectNotFound
	}

	// Advisory pre-check; the partial unique index is the real guard.
	var existing models.License
	if err := s.db.Where("project_id = ? AND licensee_id = ? AND is_active = ?",
		project.ID, licenseeID, true).First(&existing).Error; err == nil {
		return nil, ErrAlreadyLicensed
	}

	resolved, err := s.policy.Resolve(models.LicenseType(req.LicenseType), &project)
	if err != nil {
		return nil, err
	}

	license := &models.License{
		ProjectID:   project.ID,
		LicenseeID:  licenseeID,
		LicenseType: models.LicenseType(req.LicenseType),
		Permissions: resolved.Permissions,
		ExpiresAt:   resolved.ExpiresAt,
		Payment: models.LicensePayment{
			Amount:   resolved.Amount,
			Currency: resolved.Currency,
			Status:   models.PaymentStatusPending,
		},
	}

	// Zero-price grants are usable immediately, with no provider call.
	if resolved.Amount == 0 {
		now := time.Now()
		license.IsActive = true
		license.Payment.Status = models.PaymentStatusCompleted
		license.Payment.ProcessedAt = &now

		err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
			if err := tx.Create(license).Error; err != nil {
				return err
			}
			return incrementDownloads(tx, project.ID)
		})
		if err != nil {
			if isUniqueViolation(err) {
				return nil, ErrAlreadyLicensed
			}
			return nil, fmt.Errorf("failed to create license: %w", err)
		}

		return &PurchaseLicenseResponse{License: license}, nil
	}

	customerID, err := s.ensureProviderCustomer(ctx, &licensee)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	intent, err := s.provider.CreatePaymentIntent(callCtx, resolved.Amount, resolved.Currency, customerID, map[string]string{
		"project_id":   project.ID.String(),
		"licensee_id":  licenseeID.String(),
		"license_type": req.LicenseType,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	license.Payment.ProviderIntentID = intent.ID

	if err := s.db.Create(license).Error; err != nil {
		return nil, fmt.Errorf("failed to create license: %w", err)
	}

	return &PurchaseLicenseResponse{
		License:         license,
		RequiresPayment: true,
		ClientSecret:    intent.ClientSecret,
	}, nil
}

// ConfirmPayment reconciles a provider intent into the license record.
// The intent status is always re-fetched from the provider; a
// client-asserted success is never trusted. Confirmation is idempotent:
// the license is looked up by intent id, and an already-completed grant
// is returned as-is without touching the download counter again.
func (s *LicenseService) ConfirmPayment(ctx context.Context, intentID string) (*models.License, error) {
	var license models.License
	if err := s.db.Where("payment_provider_intent_id = ?", intentID).
		First(&license).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	switch license.Payment.Status {
	case models.PaymentStatusCompleted:
		return &license, nil
	case models.PaymentStatusRefunded:
		return nil, ErrLicenseRefunded
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	intent, err := s.provider.RetrievePaymentIntent(callCtx, intentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	switch intent.Status {
	case IntentStatusSucceeded:
		now := time.Now()
		err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
			// Guard the transition on the stored status so a concurrent
			// confirmation of the same intent (client confirm racing a
			// webhook redelivery) activates, and counts, exactly once.
			res := tx.Model(&models.License{}).
				Where("id = ? AND payment_status = ?", license.ID, models.PaymentStatusPending).
				Updates(map[string]interface{}{
					"is_active":            true,
					"payment_status":       models.PaymentStatusCompleted,
					"payment_processed_at": &now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			return incrementDownloads(tx, license.ProjectID)
		})
		if err != nil {
			if isUniqueViolation(err) {
				return nil, ErrAlreadyLicensed
			}
			return nil, fmt.Errorf("failed to activate license: %w", err)
		}

		license.IsActive = true
		license.Payment.Status = models.PaymentStatusCompleted
		license.Payment.ProcessedAt = &now

		logrus.WithFields(logrus.Fields{
			"license_id": license.ID,
			"project_id": license.ProjectID,
			"intent_id":  intentID,
		}).Info("License activated")

		return &license, nil

	case IntentStatusCanceled:
		if err := s.db.Model(&license).
			Update("payment_status", models.PaymentStatusFailed).Error; err != nil {
			return nil, fmt.Errorf("failed to update license: %w", err)
		}
		return nil, ErrPaymentNotCompleted

	default:
		// Still in flight on the provider side; the caller re-initiates.
		return nil, ErrPaymentNotCompleted
	}
}

// RefundLicense drives the completed -> refunded transition, reversing
// both the activation and the project's download counter.
func (s *LicenseService) RefundLicense(ctx context.Context, licenseID uuid.UUID) (*models.License, error) {
	var license models.License
	if err := s.db.First(&license, licenseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if license.Payment.Status != models.PaymentStatusCompleted {
		return nil, ErrNotRefundable
	}

	if license.Payment.ProviderIntentID != "" {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		if err := s.provider.Refund(callCtx, license.Payment.ProviderIntentID, license.Payment.Amount); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
		}
	}

	now := time.Now()
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"is_active":           false,
			"payment_status":      models.PaymentStatusRefunded,
			"payment_refunded_at": &now,
		}
		if err := tx.Model(&license).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Model(&models.Project{}).Where("id = ?", license.ProjectID).
			UpdateColumn("stats_downloads", gorm.Expr("stats_downloads - 1")).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to refund license: %w", err)
	}

	license.IsActive = false
	license.Payment.Status = models.PaymentStatusRefunded
	license.Payment.RefundedAt = &now

	return &license, nil
}

// GetLicense returns the grant to its licensee, the project owner or an
// admin. Anyone else gets not-found so the grant's existence does not
// leak.
func (s *LicenseService) GetLicense(id uuid.UUID, userID uuid.UUID) (*models.License, error) {
	var license models.License
	if err := s.db.Preload("Project").First(&license, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if license.LicenseeID != userID && license.Project.OwnerID != userID {
		var user models.User
		if err := s.db.First(&user, userID).Error; err != nil || user.UserType != models.UserTypeAdmin {
			return nil, ErrLicenseNotFound
		}
	}

	return &license, nil
}

func (s *LicenseService) GetUserLicenses(userID uuid.UUID, params utils.PaginationParams) ([]models.License, int64, error) {
	query := s.db.Model(&models.License{}).
		Where("licensee_id = ?", userID).
		Preload("Project")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count licenses: %w", err)
	}

	allowedSortFields := []string{"created_at", "payment_status", "license_type"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var licenses []models.License
	if err := query.Find(&licenses).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch licenses: %w", err)
	}

	return licenses, total, nil
}

// VerifyLicense checks that a grant currently confers rights.
// VerifyLicense reports whether a license grant is currently usable.
// An expired or deactivated license is a valid answer, not an error.
func (s *LicenseService) VerifyLicense(id uuid.UUID) (*models.License, bool, error) {
	var license models.License
	if err := s.db.Preload("Project").First(&license, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrLicenseNotFound
		}
		return nil, false, fmt.Errorf("database error: %w", err)
	}

	return &license, license.Usable(time.Now()), nil
}

// FindActiveLicense loads the usable grant for a (project, licensee)
// pair, or nil when none exists. Used by the access checks.
func FindActiveLicense(db *gorm.DB, projectID uuid.UUID, userID *uuid.UUID) *models.License {
	if userID == nil {
		return nil
	}

	var license models.License
	if err := db.Where("project_id = ? AND licensee_id = ? AND is_active = ?",
		projectID, *userID, true).First(&license).Error; err != nil {
		return nil
	}

	return &license
}

func (s *LicenseService) ensureProviderCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	customerID, err := s.provider.CreateCustomer(callCtx, user.Email)
	if err != nil {
		return "", err
	}

	if err := s.db.Model(user).Update("stripe_customer_id", customerID).Error; err != nil {
		return "", fmt.Errorf("failed to save customer id: %w", err)
	}

	user.StripeCustomerID = customerID
	return customerID, nil
}

func incrementDownloads(tx *gorm.DB, projectID uuid.UUID) error {
	return tx.Model(&models.Project{}).Where("id = ?", projectID).
		UpdateColumn("stats_downloads", gorm.Expr("stats_downloads + 1")).Error
}

// isUniqueViolation recognizes a lost race on the active-grant index,
// for both the postgres driver and the sqlite driver used in tests.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
