// internal/models/project.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Project struct {
	BaseModel
	OwnerID     uuid.UUID      `json:"owner_id" gorm:"type:uuid;not null;index"`
	Title       string         `json:"title" gorm:"size:255;not null"`
	Description string         `json:"description" gorm:"type:text"`
	Category    string         `json:"category" gorm:"size:100;index"`
	Tags        pq.StringArray `json:"tags" gorm:"type:text[]"`
	TechStack   pq.StringArray `json:"tech_stack" gorm:"type:text[]"`

	// Offer is the pricing template advertised by the project; License
	// rows are the grants bought against it.
	Offer  LicenseOffer `json:"offer" gorm:"embedded;embeddedPrefix:offer_"`
	Access AccessPolicy `json:"access" gorm:"embedded;embeddedPrefix:access_"`

	FreeRepoURL string `json:"free_repo_url" gorm:"size:500"`
	PaidRepoURL string `json:"-" gorm:"size:500"`
	ArchiveKey  string `json:"-" gorm:"size:500"`

	Status   ProjectStatus `json:"status" gorm:"type:varchar(20);default:'draft';index"`
	IsActive bool          `json:"is_active" gorm:"default:true;index"`

	Stats       ProjectStats `json:"stats" gorm:"embedded;embeddedPrefix:stats_"`
	Rating      float64      `json:"rating" gorm:"type:decimal(3,2);default:0"`
	ReviewCount int64        `json:"review_count" gorm:"default:0"`

	// Relationships
	Owner    User      `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Licenses []License `json:"licenses,omitempty" gorm:"foreignKey:ProjectID"`
	Reviews  []Review  `json:"reviews,omitempty" gorm:"foreignKey:ProjectID"`
}

type LicenseOffer struct {
	Type              OfferType      `json:"type" gorm:"type:varchar(20);default:'free'"`
	BasePrice         float64        `json:"base_price" gorm:"type:decimal(10,2);default:0"`
	SellerPrice       float64        `json:"seller_price" gorm:"type:decimal(10,2);default:0"`
	MarketplaceFeePct float64        `json:"marketplace_fee_pct" gorm:"type:decimal(5,2);default:0"`
	Currency          string         `json:"currency" gorm:"size:10;default:'usd'"`
	FreeFeatures      pq.StringArray `json:"free_features" gorm:"type:text[]"`
	PaidFeatures      pq.StringArray `json:"paid_features" gorm:"type:text[]"`
}

// AccessPolicy gates each capability independently.
type AccessPolicy struct {
	ViewCode     AccessLevel `json:"view_code" gorm:"type:varchar(20);default:'public'"`
	RunApp       AccessLevel `json:"run_app" gorm:"type:varchar(20);default:'licensed'"`
	DownloadCode AccessLevel `json:"download_code" gorm:"type:varchar(20);default:'licensed'"`
}

// Level returns the policy for a capability; unknown capabilities are
// treated as private.
func (p AccessPolicy) Level(capability Capability) AccessLevel {
	switch capability {
	case CapabilityViewCode:
		return p.ViewCode
	case CapabilityRunApp:
		return p.RunApp
	case CapabilityDownloadCode:
		return p.DownloadCode
	}
	return AccessLevelPrivate
}

type ProjectStats struct {
	Views     int64 `json:"views" gorm:"default:0"`
	Downloads int64 `json:"downloads" gorm:"default:0"`
	Stars     int64 `json:"stars" gorm:"default:0"`
}

// VisibleTo reports whether the listing itself is readable by userID.
// Drafts are owner-only, and a deactivated project is hidden from
// everyone but its owner regardless of status.
func (p *Project) VisibleTo(userID *uuid.UUID) bool {
	if userID != nil && *userID == p.OwnerID {
		return true
	}
	return p.IsActive && p.Status == ProjectStatusPublished
}
