// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type UserType string

const (
	UserTypeMember UserType = "member"
	UserTypeAdmin  UserType = "admin"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusBanned    UserStatus = "banned"
)

type ProjectStatus string

const (
	ProjectStatusDraft     ProjectStatus = "draft"
	ProjectStatusPublished ProjectStatus = "published"
)

// OfferType is the pricing model a project advertises. It is the offer
// side of licensing, distinct from the individual License grants
// purchased against the project.
type OfferType string

const (
	OfferTypeFree     OfferType = "free"
	OfferTypePaid     OfferType = "paid"
	OfferTypeFreemium OfferType = "freemium"
)

type LicenseType string

const (
	LicenseTypeFree       LicenseType = "free"
	LicenseTypeBasic      LicenseType = "basic"
	LicenseTypePremium    LicenseType = "premium"
	LicenseTypeEnterprise LicenseType = "enterprise"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// AccessLevel is the per-capability visibility policy on a project.
type AccessLevel string

const (
	AccessLevelPublic   AccessLevel = "public"
	AccessLevelLicensed AccessLevel = "licensed"
	AccessLevelPrivate  AccessLevel = "private"
)

// Capability names the project features gated by an AccessLevel.
type Capability string

const (
	CapabilityViewCode     Capability = "view_code"
	CapabilityRunApp       Capability = "run_app"
	CapabilityDownloadCode Capability = "download_code"
)

type OAuthProvider string

const (
	OAuthProviderGitHub OAuthProvider = "github"
	OAuthProviderGoogle OAuthProvider = "google"
)

// ProjectCategories is the closed category enum for listings.
var ProjectCategories = []string{
	"web", "mobile", "desktop", "api", "cli", "library", "game", "ai", "devops", "other",
}

func IsValidCategory(category string) bool {
	for _, c := range ProjectCategories {
		if c == category {
			return true
		}
	}
	return false
}

func IsValidAccessLevel(level AccessLevel) bool {
	switch level {
	case AccessLevelPublic, AccessLevelLicensed, AccessLevelPrivate:
		return true
	}
	return false
}
