// internal/models/license.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// License is a grant of rights from a project to a user. Project and
// licensee are immutable once created; permissions are a snapshot of
// the tier template at grant time and are never recomputed.
//
// At most one active license may exist per (project, licensee) pair,
// enforced by a partial unique index created in database.RunMigrations.
type License struct {
	BaseModel
	ProjectID   uuid.UUID          `json:"project_id" gorm:"type:uuid;not null;index"`
	LicenseeID  uuid.UUID          `json:"licensee_id" gorm:"type:uuid;not null;index"`
	LicenseType LicenseType        `json:"license_type" gorm:"type:varchar(20);not null"`
	Permissions LicensePermissions `json:"permissions" gorm:"embedded;embeddedPrefix:perm_"`
	Payment     LicensePayment     `json:"payment" gorm:"embedded;embeddedPrefix:payment_"`
	IsActive    bool               `json:"is_active" gorm:"default:false;index"`
	ExpiresAt   *time.Time         `json:"expires_at"`

	// Relationships
	Project  Project `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
	Licensee User    `json:"licensee,omitempty" gorm:"foreignKey:LicenseeID"`
}

type LicensePermissions struct {
	ViewCode      bool `json:"view_code" gorm:"default:false"`
	DownloadCode  bool `json:"download_code" gorm:"default:false"`
	CommercialUse bool `json:"commercial_use" gorm:"default:false"`
	Modify        bool `json:"modify" gorm:"default:false"`
	Redistribute  bool `json:"redistribute" gorm:"default:false"`
	PrivateUse    bool `json:"private_use" gorm:"default:false"`
}

// Allows returns the snapshot flag for capability-specific checks.
// Capabilities without a dedicated flag (running the app) are granted
// by holding the license at all.
func (p LicensePermissions) Allows(capability Capability) bool {
	switch capability {
	case CapabilityViewCode:
		return p.ViewCode
	case CapabilityDownloadCode:
		return p.DownloadCode
	}
	return true
}

type LicensePayment struct {
	Amount           float64       `json:"amount" gorm:"type:decimal(10,2);not null"`
	Currency         string        `json:"currency" gorm:"size:10;default:'usd'"`
	ProviderIntentID string        `json:"provider_intent_id,omitempty" gorm:"size:255;index"`
	Status           PaymentStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	ProcessedAt      *time.Time    `json:"processed_at"`
	RefundedAt       *time.Time    `json:"refunded_at"`
}

// Usable reports whether the grant currently confers any rights.
func (l *License) Usable(now time.Time) bool {
	if !l.IsActive {
		return false
	}
	if l.ExpiresAt != nil && now.After(*l.ExpiresAt) {
		return false
	}
	return true
}
