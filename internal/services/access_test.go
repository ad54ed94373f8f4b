// internal/services/access_test.go
package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/devmart/devmart-backend/internal/models"
)

func accessTestProject(ownerID uuid.UUID) *models.Project {
	p := &models.Project{
		OwnerID: ownerID,
		Access: models.AccessPolicy{
			ViewCode:     models.AccessLevelPublic,
			RunApp:       models.AccessLevelLicensed,
			DownloadCode: models.AccessLevelPrivate,
		},
	}
	p.ID = uuid.New()
	return p
}

func activeLicense(projectID, licenseeID uuid.UUID, perms models.LicensePermissions) *models.License {
	l := &models.License{
		ProjectID:   projectID,
		LicenseeID:  licenseeID,
		Permissions: perms,
		IsActive:    true,
	}
	l.ID = uuid.New()
	return l
}

func TestCanAccessPublicCapability(t *testing.T) {
	project := accessTestProject(uuid.New())

	assert.True(t, CanAccess(models.CapabilityViewCode, nil, project, nil),
		"public capability must be open to anonymous users")

	someone := uuid.New()
	assert.True(t, CanAccess(models.CapabilityViewCode, &someone, project, nil))
}

func TestCanAccessAuthorBypass(t *testing.T) {
	ownerID := uuid.New()
	project := accessTestProject(ownerID)

	// Even a private capability is open to the author, without any license.
	assert.True(t, CanAccess(models.CapabilityDownloadCode, &ownerID, project, nil))
	assert.True(t, CanAccess(models.CapabilityRunApp, &ownerID, project, nil))
}

func TestCanAccessPrivateCapability(t *testing.T) {
	project := accessTestProject(uuid.New())
	userID := uuid.New()

	license := activeLicense(project.ID, userID, models.LicensePermissions{
		ViewCode: true, DownloadCode: true, PrivateUse: true,
	})

	// Private denies everyone but the author, license or not.
	assert.False(t, CanAccess(models.CapabilityDownloadCode, &userID, project, license))
	assert.False(t, CanAccess(models.CapabilityDownloadCode, nil, project, nil))
}

func TestCanAccessLicensedCapability(t *testing.T) {
	project := accessTestProject(uuid.New())
	userID := uuid.New()

	// Anonymous, or authenticated without a license: denied.
	assert.False(t, CanAccess(models.CapabilityRunApp, nil, project, nil))
	assert.False(t, CanAccess(models.CapabilityRunApp, &userID, project, nil))

	license := activeLicense(project.ID, userID, models.LicensePermissions{
		ViewCode: true, PrivateUse: true,
	})
	assert.True(t, CanAccess(models.CapabilityRunApp, &userID, project, license))
}

func TestCanAccessRespectsPermissionSnapshot(t *testing.T) {
	ownerID := uuid.New()
	project := accessTestProject(ownerID)
	project.Access.DownloadCode = models.AccessLevelLicensed
	userID := uuid.New()

	// A free-tier snapshot can view but not download.
	license := activeLicense(project.ID, userID, models.LicensePermissions{
		ViewCode: true, PrivateUse: true,
	})
	assert.False(t, CanAccess(models.CapabilityDownloadCode, &userID, project, license))

	license.Permissions.DownloadCode = true
	assert.True(t, CanAccess(models.CapabilityDownloadCode, &userID, project, license))
}

func TestCanAccessRejectsForeignOrExpiredLicense(t *testing.T) {
	project := accessTestProject(uuid.New())
	userID := uuid.New()

	perms := models.LicensePermissions{ViewCode: true, PrivateUse: true}

	// License for a different project.
	foreign := activeLicense(uuid.New(), userID, perms)
	assert.False(t, CanAccess(models.CapabilityRunApp, &userID, project, foreign))

	// License held by a different user.
	other := activeLicense(project.ID, uuid.New(), perms)
	assert.False(t, CanAccess(models.CapabilityRunApp, &userID, project, other))

	// Deactivated license.
	inactive := activeLicense(project.ID, userID, perms)
	inactive.IsActive = false
	assert.False(t, CanAccess(models.CapabilityRunApp, &userID, project, inactive))

	// Expired license.
	expired := activeLicense(project.ID, userID, perms)
	past := time.Now().Add(-time.Hour)
	expired.ExpiresAt = &past
	assert.False(t, CanAccess(models.CapabilityRunApp, &userID, project, expired))
}

func TestCanAccessUnknownCapabilityIsPrivate(t *testing.T) {
	project := accessTestProject(uuid.New())
	userID := uuid.New()
	license := activeLicense(project.ID, userID, models.LicensePermissions{ViewCode: true})

	assert.False(t, CanAccess(models.Capability("deploy"), &userID, project, license))
}
