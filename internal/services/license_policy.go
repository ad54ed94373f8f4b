// internal/services/license_policy.go
package services

import (
	"fmt"
	"time"

	"github.com/devmart/devmart-backend/internal/config"
	"github.com/devmart/devmart-backend/internal/models"
)

// LicenseTierConfig is the policy for one tier: a price multiplier
// applied to the project's base price, the permission template
// snapshotted onto grants, and an optional validity window.
type LicenseTierConfig struct {
	PriceMultiplier float64
	Permissions     models.LicensePermissions
	ValidityDays    int // 0 = perpetual
}

// LicensePolicy maps each tier to its configuration. It is built from
// deployment config and injected into the LicenseService, so multiplier
// or template changes do not require touching resolver logic.
type LicensePolicy struct {
	Tiers            map[models.LicenseType]LicenseTierConfig
	DefaultBasePrice float64
	Currency         string
}

// ResolvedLicense is the concrete outcome of resolving a tier against a
// project's offer.
type ResolvedLicense struct {
	Amount      float64
	Currency    string
	Permissions models.LicensePermissions
	ExpiresAt   *time.Time
}

// BuildLicensePolicy assembles the tier ladder from config. The
// permission ladder itself is fixed: each tier adds rights on top of
// the one below it.
func BuildLicensePolicy(cfg config.LicenseConfig, currency string) LicensePolicy {
	return LicensePolicy{
		DefaultBasePrice: cfg.DefaultBasePrice,
		Currency:         currency,
		Tiers: map[models.LicenseType]LicenseTierConfig{
			models.LicenseTypeFree: {
				PriceMultiplier: 0,
				Permissions: models.LicensePermissions{
					ViewCode:   true,
					PrivateUse: true,
				},
			},
			models.LicenseTypeBasic: {
				PriceMultiplier: cfg.BasicMultiplier,
				ValidityDays:    cfg.ValidityDays,
				Permissions: models.LicensePermissions{
					ViewCode:     true,
					DownloadCode: true,
					Modify:       true,
					PrivateUse:   true,
				},
			},
			models.LicenseTypePremium: {
				PriceMultiplier: cfg.PremiumMultiplier,
				ValidityDays:    cfg.ValidityDays,
				Permissions: models.LicensePermissions{
					ViewCode:      true,
					DownloadCode:  true,
					Modify:        true,
					CommercialUse: true,
					PrivateUse:    true,
				},
			},
			models.LicenseTypeEnterprise: {
				PriceMultiplier: cfg.EnterpriseMultiplier,
				ValidityDays:    cfg.ValidityDays,
				Permissions: models.LicensePermissions{
					ViewCode:      true,
					DownloadCode:  true,
					Modify:        true,
					CommercialUse: true,
					Redistribute:  true,
					PrivateUse:    true,
				},
			},
		},
	}
}

// Resolve maps a requested tier and a project's offer to a concrete
// amount, permission set and expiry. Unknown tiers fail here, before
// any payment provider involvement.
func (p LicensePolicy) Resolve(licenseType models.LicenseType, project *models.Project) (*ResolvedLicense, error) {
	tier, ok := p.Tiers[licenseType]
	if !ok {
		return nil, fmt.Errorf("unrecognized license type %q", licenseType)
	}

	basePrice := project.Offer.BasePrice
	if basePrice <= 0 {
		basePrice = p.DefaultBasePrice
	}

	currency := project.Offer.Currency
	if currency == "" {
		currency = p.Currency
	}

	resolved := &ResolvedLicense{
		Amount:      basePrice * tier.PriceMultiplier,
		Currency:    currency,
		Permissions: tier.Permissions,
	}

	if tier.ValidityDays > 0 {
		expires := time.Now().AddDate(0, 0, tier.ValidityDays)
		resolved.ExpiresAt = &expires
	}

	return resolved, nil
}
