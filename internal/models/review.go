// internal/models/review.go
package models

import (
	"github.com/google/uuid"
)

// Review holds one rating per (project, reviewer) pair. The verified
// flag is derived at creation from the presence of a completed license
// and is not revisited afterwards.
type Review struct {
	BaseModel
	ProjectID          uuid.UUID `json:"project_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_reviews_project_reviewer"`
	ReviewerID         uuid.UUID `json:"reviewer_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_reviews_project_reviewer"`
	Rating             int       `json:"rating" gorm:"not null"`
	Comment            string    `json:"comment" gorm:"type:text"`
	IsVerifiedPurchase bool      `json:"is_verified_purchase" gorm:"default:false"`

	// Relationships
	Project  Project `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
	Reviewer User    `json:"reviewer,omitempty" gorm:"foreignKey:ReviewerID"`
}
