// internal/services/license_policy_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devmart/devmart-backend/internal/models"
)

func TestResolveTierPricing(t *testing.T) {
	policy := BuildLicensePolicy(testLicenseConfig(), "usd")
	project := &models.Project{
		Offer: models.LicenseOffer{BasePrice: 20, Currency: "usd"},
	}

	tests := []struct {
		licenseType models.LicenseType
		wantAmount  float64
	}{
		{models.LicenseTypeFree, 0},
		{models.LicenseTypeBasic, 20},
		{models.LicenseTypePremium, 60},
		{models.LicenseTypeEnterprise, 200},
	}

	for _, tt := range tests {
		t.Run(string(tt.licenseType), func(t *testing.T) {
			resolved, err := policy.Resolve(tt.licenseType, project)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAmount, resolved.Amount)
			assert.Equal(t, "usd", resolved.Currency)
		})
	}
}

func TestResolveDefaultBasePrice(t *testing.T) {
	policy := BuildLicensePolicy(testLicenseConfig(), "usd")

	// No price configured on the offer falls back to the default.
	project := &models.Project{}

	resolved, err := policy.Resolve(models.LicenseTypeBasic, project)
	require.NoError(t, err)
	assert.Equal(t, 10.0, resolved.Amount)

	resolved, err = policy.Resolve(models.LicenseTypeEnterprise, project)
	require.NoError(t, err)
	assert.Equal(t, 100.0, resolved.Amount)
}

func TestResolveUnknownTier(t *testing.T) {
	policy := BuildLicensePolicy(testLicenseConfig(), "usd")

	_, err := policy.Resolve(models.LicenseType("platinum"), &models.Project{})
	assert.Error(t, err)
}

func TestResolveFreeIsAlwaysZero(t *testing.T) {
	policy := BuildLicensePolicy(testLicenseConfig(), "usd")
	project := &models.Project{
		Offer: models.LicenseOffer{BasePrice: 5000},
	}

	resolved, err := policy.Resolve(models.LicenseTypeFree, project)
	require.NoError(t, err)
	assert.Zero(t, resolved.Amount)
}

func TestPermissionLadderIsMonotonic(t *testing.T) {
	policy := BuildLicensePolicy(testLicenseConfig(), "usd")

	order := []models.LicenseType{
		models.LicenseTypeFree,
		models.LicenseTypeBasic,
		models.LicenseTypePremium,
		models.LicenseTypeEnterprise,
	}

	grants := func(p models.LicensePermissions) []bool {
		return []bool{p.ViewCode, p.DownloadCode, p.Modify, p.CommercialUse, p.Redistribute, p.PrivateUse}
	}

	for i := 1; i < len(order); i++ {
		lower := policy.Tiers[order[i-1]].Permissions
		upper := policy.Tiers[order[i]].Permissions

		lowerGrants := grants(lower)
		upperGrants := grants(upper)
		for j := range lowerGrants {
			if lowerGrants[j] {
				assert.True(t, upperGrants[j],
					"%s must grant everything %s grants", order[i], order[i-1])
			}
		}
	}

	// Free never allows downloading or resale rights.
	free := policy.Tiers[models.LicenseTypeFree].Permissions
	assert.False(t, free.DownloadCode)
	assert.False(t, free.CommercialUse)
	assert.False(t, free.Redistribute)
}

func TestResolveValidityWindow(t *testing.T) {
	cfg := testLicenseConfig()
	cfg.ValidityDays = 365
	policy := BuildLicensePolicy(cfg, "usd")

	resolved, err := policy.Resolve(models.LicenseTypeBasic, &models.Project{})
	require.NoError(t, err)
	require.NotNil(t, resolved.ExpiresAt)

	// The free tier stays perpetual regardless of the window.
	resolved, err = policy.Resolve(models.LicenseTypeFree, &models.Project{})
	require.NoError(t, err)
	assert.Nil(t, resolved.ExpiresAt)
}
