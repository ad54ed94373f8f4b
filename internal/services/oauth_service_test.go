// internal/services/oauth_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/devmart/devmart-backend/internal/models"
)

func newTestOAuthService(t *testing.T, db *gorm.DB) *OAuthService {
	t.Helper()
	auth := newTestAuthService(t, db)
	return NewOAuthService(db, auth.cfg, auth)
}

func TestFindOrCreateUserCreatesVerifiedAccount(t *testing.T) {
	db := newTestDB(t)
	svc := newTestOAuthService(t, db)

	user, err := svc.findOrCreateUser(&oauthIdentity{
		Provider: models.OAuthProviderGitHub,
		Subject:  "gh-777",
		Email:    "dev@example.com",
		Username: "dev",
	})
	require.NoError(t, err)
	assert.Equal(t, string(models.OAuthProviderGitHub), user.OAuthProvider)
	assert.Equal(t, "gh-777", user.OAuthSubject)
	require.NotNil(t, user.EmailVerifiedAt)

	// The identity columns are what later logins look up by.
	var found models.User
	require.NoError(t, db.Where("oauth_provider = ? AND oauth_subject = ?",
		string(models.OAuthProviderGitHub), "gh-777").First(&found).Error)
	assert.Equal(t, user.ID, found.ID)
}

func TestFindOrCreateUserReturnsExistingIdentity(t *testing.T) {
	db := newTestDB(t)
	svc := newTestOAuthService(t, db)

	identity := &oauthIdentity{
		Provider: models.OAuthProviderGoogle,
		Subject:  "goog-1",
		Email:    "same@example.com",
		Username: "same",
	}

	first, err := svc.findOrCreateUser(identity)
	require.NoError(t, err)
	second, err := svc.findOrCreateUser(identity)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestFindOrCreateUserLinksByEmail(t *testing.T) {
	db := newTestDB(t)
	svc := newTestOAuthService(t, db)

	existing := createTestUser(t, db, "linkme")

	user, err := svc.findOrCreateUser(&oauthIdentity{
		Provider: models.OAuthProviderGitHub,
		Subject:  "gh-42",
		Email:    existing.Email,
		Username: "other-handle",
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, existing.ID).Error)
	assert.Equal(t, string(models.OAuthProviderGitHub), reloaded.OAuthProvider)
	assert.Equal(t, "gh-42", reloaded.OAuthSubject)
}
