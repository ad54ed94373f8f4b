// internal/services/service_test.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/devmart/devmart-backend/internal/config"
	"github.com/devmart/devmart-backend/internal/models"
)

var testDBSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.License{},
		&models.Review{},
	))

	// Same single-active-grant guard the production migrations create.
	require.NoError(t, db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_licenses_active_grant
		ON licenses (project_id, licensee_id)
		WHERE is_active AND deleted_at IS NULL
	`).Error)

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

func testLicenseConfig() config.LicenseConfig {
	return config.LicenseConfig{
		DefaultBasePrice:     10,
		BasicMultiplier:      1,
		PremiumMultiplier:    3,
		EnterpriseMultiplier: 10,
	}
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		UserType: models.UserTypeMember,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, user.SetPassword("Str0ngPass!"))
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestProject(t *testing.T, db *gorm.DB, ownerID uuid.UUID, basePrice float64) *models.Project {
	t.Helper()

	project := &models.Project{
		OwnerID:     ownerID,
		Title:       "Invoice Generator",
		Description: "Generates PDF invoices from templates",
		Category:    "web",
		Status:      models.ProjectStatusPublished,
		IsActive:    true,
		Offer: models.LicenseOffer{
			Type:      models.OfferTypePaid,
			BasePrice: basePrice,
			Currency:  "usd",
		},
		Access: models.AccessPolicy{
			ViewCode:     models.AccessLevelPublic,
			RunApp:       models.AccessLevelLicensed,
			DownloadCode: models.AccessLevelLicensed,
		},
	}
	require.NoError(t, db.Create(project).Error)
	return project
}

// fakeProvider records calls and serves configurable intent states so
// purchase and confirmation flows run without a real processor.
type fakeProvider struct {
	intents       map[string]string // intent id -> status
	intentSeq     int64
	createErr     error
	retrieveErr   error
	refundErr     error
	refunded      []string
	retrieveCalls int64
	onRetrieve    func(intentID string)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{intents: make(map[string]string)}
}

func (p *fakeProvider) CreateCustomer(ctx context.Context, email string) (string, error) {
	return "cus_" + email, nil
}

func (p *fakeProvider) CreatePaymentIntent(ctx context.Context, amount float64, currency, customerID string, metadata map[string]string) (*ProviderIntent, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}

	id := fmt.Sprintf("pi_%d", atomic.AddInt64(&p.intentSeq, 1))
	p.intents[id] = "requires_payment_method"
	return &ProviderIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       p.intents[id],
	}, nil
}

func (p *fakeProvider) RetrievePaymentIntent(ctx context.Context, intentID string) (*ProviderIntent, error) {
	atomic.AddInt64(&p.retrieveCalls, 1)
	if p.onRetrieve != nil {
		p.onRetrieve(intentID)
	}
	if p.retrieveErr != nil {
		return nil, p.retrieveErr
	}

	status, ok := p.intents[intentID]
	if !ok {
		return nil, errors.New("no such intent")
	}
	return &ProviderIntent{ID: intentID, Status: status}, nil
}

func (p *fakeProvider) Refund(ctx context.Context, intentID string, amount float64) error {
	if p.refundErr != nil {
		return p.refundErr
	}
	p.refunded = append(p.refunded, intentID)
	return nil
}

// settle flips an intent to its terminal provider-side state.
func (p *fakeProvider) settle(intentID, status string) {
	p.intents[intentID] = status
}
