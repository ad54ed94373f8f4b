// internal/services/license_service_test.go
package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/devmart/devmart-backend/internal/models"
)

func newTestLicenseService(t *testing.T, db *gorm.DB) (*LicenseService, *fakeProvider) {
	t.Helper()

	provider := newFakeProvider()
	policy := BuildLicensePolicy(testLicenseConfig(), "usd")
	return NewLicenseService(db, policy, provider, 5*time.Second), provider
}

func projectDownloads(t *testing.T, db *gorm.DB, project *models.Project) int64 {
	t.Helper()

	var fresh models.Project
	require.NoError(t, db.First(&fresh, project.ID).Error)
	return fresh.Stats.Downloads
}

func TestPurchaseFreeLicenseActivatesImmediately(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestLicenseService(t, db)

	owner := createTestUser(t, db, "seller")
	buyer := createTestUser(t, db, "buyer")
	project := createTestProject(t, db, owner.ID, 20)

	resp, err := svc.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "free",
	})
	require.NoError(t, err)

	assert.False(t, resp.RequiresPayment)
	assert.Empty(t, resp.ClientSecret)
	assert.True(t, resp.License.IsActive)
	assert.Equal(t, models.PaymentStatusCompleted, resp.License.Payment.Status)
	assert.Zero(t, resp.License.Payment.Amount)

	// Free grants view but not download.
	assert.True(t, resp.License.Permissions.ViewCode)
	assert.False(t, resp.License.Permissions.DownloadCode)

	assert.Equal(t, int64(1), projectDownloads(t, db, project))
}

func TestPurchasePaidLicenseStaysPending(t *testing.T) {
	db := newTestDB(t)
	svc, provider := newTestLicenseService(t, db)

	owner := createTestUser(t, db, "seller")
	buyer := createTestUser(t, db, "buyer")
	project := createTestProject(t, db, owner.ID, 20)

	resp, err := svc.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "premium",
	})
	require.NoError(t, err)

	assert.True(t, resp.RequiresPayment)
	assert.NotEmpty(t, resp.ClientSecret)
	assert.False(t, resp.License.IsActive)
	assert.Equal(t, models.PaymentStatusPending, resp.License.Payment.Status)
	assert.Equal(t, 60.0, resp.License.Payment.Amount)
	assert.Contains(t, provider.intents, resp.License.Payment.ProviderIntentID)

	// No download until the payment settles.
	assert.Zero(t, projectDownloads(t, db, project))

	// Pending grant confers nothing.
	assert.False(t, CanAccess(models.CapabilityRunApp, &buyer.ID, project, resp.License))
}

func TestPurchaseSelfIsRejected(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestLicenseService(t, db)

	owner := createTestUser(t, db, "seller")
	project := createTestProject(t, db, owner.ID, 20)

	_, err := svc.PurchaseLicense(context.Background(), owner.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "basic",
	})
	assert.ErrorIs(t, err, ErrSelfPurchase)
}

func TestPurchaseDuplicateActiveLicenseIsRejected(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestLicenseService(t, db)

	owner := createTestUser(t, db, "seller")
	buyer := createTestUser(t, db, "buyer")
	project := createTestProject(t, db, owner.ID, 20)

	_, err := svc.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "free",
	})
	require.NoError(t, err)

	// A second purchase of any tier conflicts while the first is active.
	_, err = svc.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "premium",
	})
	assert.ErrorIs(t, err, ErrAlreadyLicensed)
}

func TestPurchaseHiddenProjectNotFound(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestLicenseService(t, db)

	owner := createTestUser(t, db, "seller")
	buyer := createTestUser(t, db, "buyer")

	draft := createTestProject(t, db, owner.ID, 20)
	require.NoError(t, db.Model(draft).Update("status", models.ProjectStatusDraft).Error)

	_, err := svc.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   draft.ID,
		LicenseType: "basic",
	})
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestPurchaseProviderFailure(t *testing.T) {
	db := newTestDB(t)
	svc, provider := newTestLicenseService(t, db)
	provider.createErr = errors.New("stripe is down")

	owner := createTestUser(t, db, "seller")
	buyer := createTestUser(t, db, "buyer")
	project := createTestProject(t, db, owner.ID, 20)

	_, err := svc.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "basic",
	})
	assert.ErrorIs(t, err, ErrProviderFailure)

	// Nothing was persisted for the failed attempt.
	var count int64
	db.Model(&models.License{}).Count(&count)
	assert.Zero(t, count)
}

func TestPurchaseUnknownTierFailsBeforeProvider(t *testing.T) {
	db := newTestDB(t)
	svc, provider := newTestLicenseService(t, db)

	owner := createTestUser(t, db, "seller")
	buyer := createTestUser(t, db, "buyer")
	project := createTestProject(t, db, owner.ID, 20)

	_, err := svc.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "platinum",
	})
	assert.Error(t, err)
	assert.Empty(t, provider.intents)
}

func TestConfirmPaymentActivatesOnce(t *testing.T) {
	db := newTestDB(t)
	svc, provider := newTestLicenseService(t, db)

	owner := createTestUser(t, db, "seller")
	buyer := createTestUser(t, db, "buyer")
	project := createTestProject(t, db, owner.ID, 20)

	resp, err := svc.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "basic",
	})
	require.NoError(t, err)

	intentID := resp.License.Payment.ProviderIntentID
	provider.settle(intentID, IntentStatusSucceeded)

	// Confirm several times: webhook and client confirmation race in
	// production. The counter must move exactly once.
	for i := 0; i < 3; i++ {
		license, err := svc.ConfirmPayment(context.Background(), intentID)
		require.NoError(t, err)
		assert.True(t, license.IsActive)
		assert.Equal(t, models.PaymentStatusCompleted, license.Payment.Status)
	}

	assert.Equal(t, int64(1), projectDownloads(t, db, project))

	// Only the first confirmation hit the provider.
	assert.Equal(t, int64(1), provider.retrieveCalls)
}

func TestConfirmPaymentInterleavedRedeliveryIncrementsOnce(t *testing.T) {
	db := newTestDB(t)
	svc, provider := newTestLicenseService(t, db)

	owner := createTestUser(t, db, "seller")
	buyer := createTestUser(t, db, "buyer")
	project := createTestProject(t, db, owner.ID, 20)

	resp, err := svc.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "basic",
	})
	require.NoError(t, err)

	intentID := resp.License.Payment.ProviderIntentID
	provider.settle(intentID, IntentStatusSucceeded)

	// A webhook redelivery lands between the first confirmation's
	// license read and its activation write: the nested confirmation
	// completes the whole flow while the outer one still holds a
	// pending snapshot. The outer confirmation must not count again.
	nested := false
	provider.onRetrieve = func(id string) {
		if nested {
			return
		}
		nested = true
		license, err := svc.ConfirmPayment(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, license.IsActive)
	}

	license, err := svc.ConfirmPayment(context.Background(), intentID)
	require.NoError(t, err)
	assert.True(t, license.IsActive)
	assert.Equal(t, models.PaymentStatusCompleted, license.Payment.Status)

	assert.Equal(t, int64(1), projectDownloads(t, db, project))
}

func TestConfirmPaymentIgnoresClientAssertedSuccess(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestLicenseService(t, db)

	owner := createTestUser(t, db, "seller")
	buyer := createTestUser(t, db, "buyer")
	project := createTestProject(t, db, owner.ID, 20)

	resp, err := svc.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "basic",
	})
	require.NoError(t, err)

	// The provider still reports the intent unsettled, no matter what
	// the client claims.
	intentID := resp.License.Payment.ProviderIntentID
	_, err = svc.ConfirmPayment(context.Background(), intentID)
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)

	var license models.License
	require.NoError(t, db.First(&license, resp.License.ID).Error)
	assert.False(t, license.IsActive)
	assert.Equal(t, models.PaymentStatusPending, license.Payment.Status)
	assert.Zero(t, projectDownloads(t, db, project))
}

func TestConfirmPaymentCanceledMarksFailed(t *testing.T) {
	db := newTestDB(t)
	svc, provider := newTestLicenseService(t, db)

	owner := createTestUser(t, db, "seller")
	buyer := createTestUser(t, db, "buyer")
	project := createTestProject(t, db, owner.ID, 20)

	resp, err := svc.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "basic",
	})
	require.NoError(t, err)

	intentID := resp.License.Payment.ProviderIntentID
	provider.settle(intentID, IntentStatusCanceled)

	_, err = svc.ConfirmPayment(context.Background(), intentID)
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)

	var license models.License
	require.NoError(t, db.First(&license, resp.License.ID).Error)
	assert.Equal(t, models.PaymentStatusFailed, license.Payment.Status)
	assert.False(t, license.IsActive)
}

func TestConfirmPaymentUnknownIntent(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestLicenseService(t, db)

	_, err := svc.ConfirmPayment(context.Background(), "pi_nonexistent")
	assert.ErrorIs(t, err, ErrLicenseNotFound)
}

func TestRefundReversesActivation(t *testing.T) {
	db := newTestDB(t)
	svc, provider := newTestLicenseService(t, db)

	owner := createTestUser(t, db, "seller")
	buyer := createTestUser(t, db, "buyer")
	project := createTestProject(t, db, owner.ID, 20)

	resp, err := svc.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "basic",
	})
	require.NoError(t, err)

	intentID := resp.License.Payment.ProviderIntentID
	provider.settle(intentID, IntentStatusSucceeded)
	_, err = svc.ConfirmPayment(context.Background(), intentID)
	require.NoError(t, err)
	require.Equal(t, int64(1), projectDownloads(t, db, project))

	refunded, err := svc.RefundLicense(context.Background(), resp.License.ID)
	require.NoError(t, err)

	assert.False(t, refunded.IsActive)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.Payment.Status)
	assert.NotNil(t, refunded.Payment.RefundedAt)
	assert.Contains(t, provider.refunded, intentID)
	assert.Zero(t, projectDownloads(t, db, project))

	// Refunded is terminal: a later confirmation cannot resurrect it.
	_, err = svc.ConfirmPayment(context.Background(), intentID)
	assert.ErrorIs(t, err, ErrLicenseRefunded)

	// The buyer can purchase again after the refund.
	_, err = svc.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "basic",
	})
	assert.NoError(t, err)
}

func TestRefundRequiresCompletedPayment(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestLicenseService(t, db)

	owner := createTestUser(t, db, "seller")
	buyer := createTestUser(t, db, "buyer")
	project := createTestProject(t, db, owner.ID, 20)

	resp, err := svc.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "basic",
	})
	require.NoError(t, err)

	_, err = svc.RefundLicense(context.Background(), resp.License.ID)
	assert.ErrorIs(t, err, ErrNotRefundable)
}

func TestGetLicenseVisibility(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestLicenseService(t, db)

	owner := createTestUser(t, db, "seller")
	buyer := createTestUser(t, db, "buyer")
	stranger := createTestUser(t, db, "stranger")
	project := createTestProject(t, db, owner.ID, 20)

	resp, err := svc.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "free",
	})
	require.NoError(t, err)

	_, err = svc.GetLicense(resp.License.ID, buyer.ID)
	assert.NoError(t, err)

	_, err = svc.GetLicense(resp.License.ID, owner.ID)
	assert.NoError(t, err)

	// Uninvolved users cannot learn the grant exists.
	_, err = svc.GetLicense(resp.License.ID, stranger.ID)
	assert.ErrorIs(t, err, ErrLicenseNotFound)
}

func TestVerifyLicense(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestLicenseService(t, db)

	owner := createTestUser(t, db, "seller")
	buyer := createTestUser(t, db, "buyer")
	project := createTestProject(t, db, owner.ID, 20)

	resp, err := svc.PurchaseLicense(context.Background(), buyer.ID, &PurchaseLicenseRequest{
		ProjectID:   project.ID,
		LicenseType: "free",
	})
	require.NoError(t, err)

	_, valid, err := svc.VerifyLicense(resp.License.ID)
	require.NoError(t, err)
	assert.True(t, valid)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(resp.License).Update("expires_at", &past).Error)

	_, valid, err = svc.VerifyLicense(resp.License.ID)
	require.NoError(t, err)
	assert.False(t, valid)
}
