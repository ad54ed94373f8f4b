// internal/services/access.go
package services

import (
	"time"

	"github.com/google/uuid"

	"github.com/devmart/devmart-backend/internal/models"
)

// CanAccess decides allow/deny for one capability of a project. It is
// evaluated independently per capability: a license can grant viewing
// without downloading depending on its permission snapshot.
//
// Rules, in order: the owner always passes (author bypass); public is
// always allowed; private is always denied; licensed requires an
// authenticated user holding a usable license whose snapshot grants the
// capability.
func CanAccess(capability models.Capability, userID *uuid.UUID, project *models.Project, license *models.License) bool {
	if userID != nil && *userID == project.OwnerID {
		return true
	}

	switch project.Access.Level(capability) {
	case models.AccessLevelPublic:
		return true
	case models.AccessLevelLicensed:
		if userID == nil || license == nil {
			return false
		}
		if license.ProjectID != project.ID || license.LicenseeID != *userID {
			return false
		}
		if !license.Usable(time.Now()) {
			return false
		}
		return license.Permissions.Allows(capability)
	default:
		// private, or an unknown level
		return false
	}
}
