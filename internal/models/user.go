// internal/models/user.go
package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Username         string     `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Email            string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash     string     `json:"-" gorm:"size:255"`
	UserType         UserType   `json:"user_type" gorm:"type:varchar(20);default:'member'"`
	Status           UserStatus `json:"status" gorm:"type:varchar(20);default:'active'"`
	ProfileData      JSONB      `json:"profile_data" gorm:"type:jsonb"`
	StripeCustomerID string     `json:"-" gorm:"size:255;index"`
	OAuthProvider    string     `json:"oauth_provider,omitempty" gorm:"column:oauth_provider;size:20;index:idx_users_oauth,unique,where:oauth_provider <> ''"`
	OAuthSubject     string     `json:"-" gorm:"column:oauth_subject;size:255;index:idx_users_oauth,unique,where:oauth_provider <> ''"`
	EmailVerifiedAt  *time.Time `json:"email_verified_at"`
	LastLoginAt      *time.Time `json:"last_login_at"`

	// Relationships
	Projects []Project `json:"projects,omitempty" gorm:"foreignKey:OwnerID"`
	Licenses []License `json:"licenses,omitempty" gorm:"foreignKey:LicenseeID"`
	Reviews  []Review  `json:"reviews,omitempty" gorm:"foreignKey:ReviewerID"`
}

// HasPassword reports whether the account can authenticate with a
// password. OAuth-only accounts never store a hash.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}
