// internal/handlers/project.go
package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/devmart/devmart-backend/internal/services"
	"github.com/devmart/devmart-backend/internal/utils"
)

func parseFloat(raw string) (float64, error) {
	return strconv.ParseFloat(raw, 64)
}

type ProjectHandler struct {
	projectService *services.ProjectService
	storageService *services.StorageService
}

func NewProjectHandler(projectService *services.ProjectService, storageService *services.StorageService) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
		storageService: storageService,
	}
}

// GET /projects
func (h *ProjectHandler) Search(c *gin.Context) {
	params := services.ProjectSearchParams{
		PaginationParams: utils.GetPaginationParams(c),
		Tag:              c.Query("tag"),
	}

	if raw := c.Query("price_min"); raw != "" {
		if v, err := parseFloat(raw); err == nil {
			params.PriceMin = &v
		}
	}
	if raw := c.Query("price_max"); raw != "" {
		if v, err := parseFloat(raw); err == nil {
			params.PriceMax = &v
		}
	}
	if raw := c.Query("owner_id"); raw != "" {
		if ownerID, err := uuid.Parse(raw); err == nil {
			params.OwnerID = &ownerID
		}
	}

	projects, total, err := h.projectService.SearchProjects(params)
	if err != nil {
		utils.InternalErrorResponse(c, "failed to search projects")
		return
	}

	result := utils.CreatePaginationResult(projects, total, params.PaginationParams)
	utils.PaginatedResponse(c, result)
}

// GET /projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid project id", nil)
		return
	}

	project, err := h.projectService.GetProject(id, utils.GetUserUUIDFromContext(c))
	if err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			utils.NotFoundResponse(c, "project")
			return
		}
		utils.InternalErrorResponse(c, "failed to fetch project")
		return
	}

	utils.SuccessResponse(c, project)
}

// POST /projects
func (h *ProjectHandler) Create(c *gin.Context) {
	ownerID := utils.GetUserUUIDFromContext(c)
	if ownerID == nil {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}

	var req services.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	project, err := h.projectService.CreateProject(*ownerID, &req)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.CreatedResponse(c, project)
}

// PUT /projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	ownerID := utils.GetUserUUIDFromContext(c)
	if ownerID == nil {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid project id", nil)
		return
	}

	var req services.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	project, err := h.projectService.UpdateProject(id, *ownerID, &req)
	if err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			utils.NotFoundResponse(c, "project")
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, project)
}

// POST /projects/:id/publish
func (h *ProjectHandler) Publish(c *gin.Context) {
	ownerID := utils.GetUserUUIDFromContext(c)
	if ownerID == nil {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid project id", nil)
		return
	}

	project, err := h.projectService.PublishProject(id, *ownerID)
	if err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			utils.NotFoundResponse(c, "project")
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, project)
}

// DELETE /projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	ownerID := utils.GetUserUUIDFromContext(c)
	if ownerID == nil {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid project id", nil)
		return
	}

	if err := h.projectService.DeleteProject(id, *ownerID); err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			utils.NotFoundResponse(c, "project")
			return
		}
		utils.InternalErrorResponse(c, "failed to delete project")
		return
	}

	utils.SuccessResponse(c, gin.H{"message": "project archived"})
}

// GET /projects/:id/code
func (h *ProjectHandler) Code(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid project id", nil)
		return
	}

	code, err := h.projectService.GetProjectCode(id, utils.GetUserUUIDFromContext(c))
	if err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			utils.NotFoundResponse(c, "project")
			return
		}
		utils.InternalErrorResponse(c, "failed to fetch project code")
		return
	}

	utils.SuccessResponse(c, code)
}

// GET /projects/:id/download
func (h *ProjectHandler) Download(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid project id", nil)
		return
	}

	url, err := h.projectService.GetDownloadURL(id, utils.GetUserUUIDFromContext(c))
	if err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			utils.NotFoundResponse(c, "project")
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{"download_url": url})
}

// GET /projects/:id/run
func (h *ProjectHandler) Run(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid project id", nil)
		return
	}

	meta, err := h.projectService.GetRunMetadata(id, utils.GetUserUUIDFromContext(c))
	if err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			utils.NotFoundResponse(c, "project")
			return
		}
		utils.InternalErrorResponse(c, "failed to prepare run session")
		return
	}

	utils.SuccessResponse(c, meta)
}

// POST /projects/:id/archive
func (h *ProjectHandler) UploadArchive(c *gin.Context) {
	ownerID := utils.GetUserUUIDFromContext(c)
	if ownerID == nil {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid project id", nil)
		return
	}

	// Ownership is checked before the upload so a stranger cannot push
	// objects into the bucket against someone else's project.
	if err := h.projectService.VerifyOwnership(id, *ownerID); err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			utils.NotFoundResponse(c, "project")
			return
		}
		utils.InternalErrorResponse(c, "failed to load project")
		return
	}

	file, header, err := c.Request.FormFile("archive")
	if err != nil {
		utils.BadRequestResponse(c, "archive file is required", nil)
		return
	}
	defer file.Close()

	result, err := h.storageService.UploadArchive(file, header, services.UploadOptions{
		Folder:       "archives",
		MaxSize:      200 << 20,
		AllowedTypes: []string{".zip", ".tar", ".gz", ".tgz"},
	})
	if err != nil {
		if errors.Is(err, services.ErrStorageUnavailable) {
			utils.ErrorResponse(c, 503, "STORAGE_UNAVAILABLE", "file storage is not configured", nil)
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	if err := h.projectService.AttachArchive(id, *ownerID, result.Key); err != nil {
		// Don't strand the object when the attach fails.
		if delErr := h.storageService.DeleteArchive(result.Key); delErr != nil {
			logrus.WithError(delErr).WithField("key", result.Key).Warn("Failed to clean up orphaned archive")
		}
		if errors.Is(err, services.ErrProjectNotFound) {
			utils.NotFoundResponse(c, "project")
			return
		}
		utils.InternalErrorResponse(c, "failed to attach archive")
		return
	}

	utils.CreatedResponse(c, result)
}
