// internal/services/project_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/devmart/devmart-backend/internal/models"
	"github.com/devmart/devmart-backend/internal/utils"
)

type ProjectService struct {
	db      *gorm.DB
	storage *StorageService
}

type CreateProjectRequest struct {
	Title       string         `json:"title" validate:"required,min=3,max=255"`
	Description string         `json:"description" validate:"required,min=10"`
	Category    string         `json:"category" validate:"required"`
	Tags        []string       `json:"tags,omitempty"`
	TechStack   []string       `json:"tech_stack,omitempty"`
	Offer       *OfferRequest  `json:"offer,omitempty"`
	Access      *AccessRequest `json:"access,omitempty"`
	FreeRepoURL string         `json:"free_repo_url,omitempty" validate:"omitempty,url"`
	PaidRepoURL string         `json:"paid_repo_url,omitempty" validate:"omitempty,url"`
}

type OfferRequest struct {
	Type              string   `json:"type" validate:"omitempty,oneof=free paid freemium"`
	BasePrice         float64  `json:"base_price" validate:"min=0"`
	SellerPrice       float64  `json:"seller_price" validate:"min=0"`
	MarketplaceFeePct float64  `json:"marketplace_fee_pct" validate:"min=0,max=100"`
	Currency          string   `json:"currency,omitempty"`
	FreeFeatures      []string `json:"free_features,omitempty"`
	PaidFeatures      []string `json:"paid_features,omitempty"`
}

type AccessRequest struct {
	ViewCode     string `json:"view_code" validate:"omitempty,access_level"`
	RunApp       string `json:"run_app" validate:"omitempty,access_level"`
	DownloadCode string `json:"download_code" validate:"omitempty,access_level"`
}

type UpdateProjectRequest struct {
	Title       string         `json:"title,omitempty" validate:"omitempty,min=3,max=255"`
	Description string         `json:"description,omitempty" validate:"omitempty,min=10"`
	Category    string         `json:"category,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	TechStack   []string       `json:"tech_stack,omitempty"`
	Offer       *OfferRequest  `json:"offer,omitempty"`
	Access      *AccessRequest `json:"access,omitempty"`
	FreeRepoURL string         `json:"free_repo_url,omitempty" validate:"omitempty,url"`
	PaidRepoURL string         `json:"paid_repo_url,omitempty" validate:"omitempty,url"`
}

type ProjectSearchParams struct {
	utils.PaginationParams
	OwnerID  *uuid.UUID `json:"owner_id,omitempty"`
	PriceMin *float64   `json:"price_min,omitempty"`
	PriceMax *float64   `json:"price_max,omitempty"`
	Tag      string     `json:"tag,omitempty"`
}

func NewProjectService(db *gorm.DB, storage *StorageService) *ProjectService {
	return &ProjectService{
		db:      db,
		storage: storage,
	}
}

func (s *ProjectService) CreateProject(ownerID uuid.UUID, req *CreateProjectRequest) (*models.Project, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if !models.IsValidCategory(req.Category) {
		return nil, fmt.Errorf("unknown category %q", req.Category)
	}

	var owner models.User
	if err := s.db.First(&owner, ownerID).Error; err != nil {
		return nil, fmt.Errorf("owner not found: %w", err)
	}

	if owner.Status != models.UserStatusActive {
		return nil, errors.New("account is not active")
	}

	project := &models.Project{
		OwnerID:     ownerID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Tags:        pqArray(req.Tags),
		TechStack:   pqArray(req.TechStack),
		FreeRepoURL: req.FreeRepoURL,
		PaidRepoURL: req.PaidRepoURL,
		Status:      models.ProjectStatusDraft,
		IsActive:    true,
		Offer: models.LicenseOffer{
			Type:     models.OfferTypeFree,
			Currency: "usd",
		},
		Access: models.AccessPolicy{
			ViewCode:     models.AccessLevelPublic,
			RunApp:       models.AccessLevelLicensed,
			DownloadCode: models.AccessLevelLicensed,
		},
	}

	if req.Offer != nil {
		applyOffer(&project.Offer, req.Offer)
	}
	if req.Access != nil {
		applyAccess(&project.Access, req.Access)
	}

	if err := s.db.Create(project).Error; err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	return project, nil
}

// GetProject enforces the visibility invariants: drafts only for the
// owner, deactivated projects only for the owner, and both hidden
// behind not-found rather than forbidden.
func (s *ProjectService) GetProject(id uuid.UUID, userID *uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := s.db.Preload("Owner").First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !project.VisibleTo(userID) {
		return nil, ErrProjectNotFound
	}

	// Owner views don't count.
	if userID == nil || *userID != project.OwnerID {
		go s.incrementViewCount(id)
	}

	return &project, nil
}

func (s *ProjectService) UpdateProject(id uuid.UUID, ownerID uuid.UUID, req *UpdateProjectRequest) (*models.Project, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	project, err := s.findOwned(id, ownerID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.Category != "" {
		if !models.IsValidCategory(req.Category) {
			return nil, fmt.Errorf("unknown category %q", req.Category)
		}
		updates["category"] = req.Category
	}
	if req.Tags != nil {
		updates["tags"] = pqArray(req.Tags)
	}
	if req.TechStack != nil {
		updates["tech_stack"] = pqArray(req.TechStack)
	}
	if req.FreeRepoURL != "" {
		updates["free_repo_url"] = req.FreeRepoURL
	}
	if req.PaidRepoURL != "" {
		updates["paid_repo_url"] = req.PaidRepoURL
	}

	if req.Offer != nil {
		applyOffer(&project.Offer, req.Offer)
		updates["offer_type"] = project.Offer.Type
		updates["offer_base_price"] = project.Offer.BasePrice
		updates["offer_seller_price"] = project.Offer.SellerPrice
		updates["offer_marketplace_fee_pct"] = project.Offer.MarketplaceFeePct
		updates["offer_currency"] = project.Offer.Currency
		updates["offer_free_features"] = project.Offer.FreeFeatures
		updates["offer_paid_features"] = project.Offer.PaidFeatures
	}
	if req.Access != nil {
		applyAccess(&project.Access, req.Access)
		updates["access_view_code"] = project.Access.ViewCode
		updates["access_run_app"] = project.Access.RunApp
		updates["access_download_code"] = project.Access.DownloadCode
	}

	if err := s.db.Model(project).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	s.db.Preload("Owner").First(project, id)
	return project, nil
}

func (s *ProjectService) PublishProject(id uuid.UUID, ownerID uuid.UUID) (*models.Project, error) {
	project, err := s.findOwned(id, ownerID)
	if err != nil {
		return nil, err
	}

	if project.Status == models.ProjectStatusPublished {
		return project, nil
	}

	if err := s.db.Model(project).Update("status", models.ProjectStatusPublished).Error; err != nil {
		return nil, fmt.Errorf("failed to publish project: %w", err)
	}

	project.Status = models.ProjectStatusPublished
	return project, nil
}

// DeleteProject deactivates the listing. Existing grants stay valid for
// their holders; the project just stops being readable by anyone else.
func (s *ProjectService) DeleteProject(id uuid.UUID, ownerID uuid.UUID) error {
	project, err := s.findOwned(id, ownerID)
	if err != nil {
		return err
	}

	if err := s.db.Model(project).Update("is_active", false).Error; err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	return nil
}

func (s *ProjectService) SearchProjects(params ProjectSearchParams) ([]models.Project, int64, error) {
	query := s.db.Model(&models.Project{}).Preload("Owner").
		Where("status = ? AND is_active = ?", models.ProjectStatusPublished, true)

	if params.OwnerID != nil {
		query = query.Where("owner_id = ?", *params.OwnerID)
	}
	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}
	if params.Search != "" {
		searchTerm := "%" + params.Search + "%"
		query = query.Where("title ILIKE ? OR description ILIKE ?", searchTerm, searchTerm)
	}
	if params.PriceMin != nil {
		query = query.Where("offer_base_price >= ?", *params.PriceMin)
	}
	if params.PriceMax != nil {
		query = query.Where("offer_base_price <= ?", *params.PriceMax)
	}
	if params.Tag != "" {
		query = query.Where("? = ANY(tags)", params.Tag)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count projects: %w", err)
	}

	allowedSortFields := []string{"created_at", "title", "offer_base_price", "rating", "stats_downloads"}
	query = utils.ApplySort(query, params.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, params.PaginationParams)

	var projects []models.Project
	if err := query.Find(&projects).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch projects: %w", err)
	}

	return projects, total, nil
}

// ProjectCode is the viewCode-gated payload: where the source lives.
type ProjectCode struct {
	FreeRepoURL string `json:"free_repo_url,omitempty"`
	PaidRepoURL string `json:"paid_repo_url,omitempty"`
}

// GetProjectCode serves the viewCode capability.
func (s *ProjectService) GetProjectCode(id uuid.UUID, userID *uuid.UUID) (*ProjectCode, error) {
	project, license, err := s.loadForAccess(id, userID)
	if err != nil {
		return nil, err
	}

	if !CanAccess(models.CapabilityViewCode, userID, project, license) {
		return nil, ErrProjectNotFound
	}

	code := &ProjectCode{FreeRepoURL: project.FreeRepoURL}

	// The paid source location is only exposed when the caller could
	// also download, or owns the project.
	if CanAccess(models.CapabilityDownloadCode, userID, project, license) {
		code.PaidRepoURL = project.PaidRepoURL
	}

	return code, nil
}

// GetDownloadURL serves the downloadCode capability with a presigned
// archive URL.
func (s *ProjectService) GetDownloadURL(id uuid.UUID, userID *uuid.UUID) (string, error) {
	project, license, err := s.loadForAccess(id, userID)
	if err != nil {
		return "", err
	}

	if !CanAccess(models.CapabilityDownloadCode, userID, project, license) {
		return "", ErrProjectNotFound
	}

	if project.ArchiveKey == "" {
		return "", errors.New("project has no archive")
	}

	url, err := s.storage.PresignDownload(project.ArchiveKey)
	if err != nil {
		return "", fmt.Errorf("failed to presign archive: %w", err)
	}

	return url, nil
}

// RunMetadata is the runApp-gated payload handed to the client runner.
type RunMetadata struct {
	Token   string `json:"token"`
	RepoURL string `json:"repo_url"`
}

// GetRunMetadata serves the runApp capability.
func (s *ProjectService) GetRunMetadata(id uuid.UUID, userID *uuid.UUID) (*RunMetadata, error) {
	project, license, err := s.loadForAccess(id, userID)
	if err != nil {
		return nil, err
	}

	if !CanAccess(models.CapabilityRunApp, userID, project, license) {
		return nil, ErrProjectNotFound
	}

	token, err := utils.GenerateRunToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run token: %w", err)
	}

	repoURL := project.FreeRepoURL
	if repoURL == "" {
		repoURL = project.PaidRepoURL
	}

	return &RunMetadata{Token: token, RepoURL: repoURL}, nil
}

// VerifyOwnership confirms the caller owns the project. Callers that
// perform side effects on the project's behalf (such as an archive
// upload) check this before doing any work.
func (s *ProjectService) VerifyOwnership(id uuid.UUID, ownerID uuid.UUID) error {
	_, err := s.findOwned(id, ownerID)
	return err
}

// AttachArchive records the uploaded archive key on the project.
func (s *ProjectService) AttachArchive(id uuid.UUID, ownerID uuid.UUID, archiveKey string) error {
	project, err := s.findOwned(id, ownerID)
	if err != nil {
		return err
	}

	if err := s.db.Model(project).Update("archive_key", archiveKey).Error; err != nil {
		return fmt.Errorf("failed to attach archive: %w", err)
	}

	return nil
}

func (s *ProjectService) loadForAccess(id uuid.UUID, userID *uuid.UUID) (*models.Project, *models.License, error) {
	var project models.Project
	if err := s.db.First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrProjectNotFound
		}
		return nil, nil, fmt.Errorf("database error: %w", err)
	}

	if !project.VisibleTo(userID) {
		return nil, nil, ErrProjectNotFound
	}

	return &project, FindActiveLicense(s.db, project.ID, userID), nil
}

func (s *ProjectService) findOwned(id uuid.UUID, ownerID uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := s.db.First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if project.OwnerID != ownerID {
		return nil, ErrProjectNotFound
	}

	return &project, nil
}

func (s *ProjectService) incrementViewCount(id uuid.UUID) {
	s.db.Model(&models.Project{}).Where("id = ?", id).
		UpdateColumn("stats_views", gorm.Expr("stats_views + 1"))
}

func applyOffer(offer *models.LicenseOffer, req *OfferRequest) {
	if req.Type != "" {
		offer.Type = models.OfferType(req.Type)
	}
	offer.BasePrice = req.BasePrice
	offer.SellerPrice = req.SellerPrice
	offer.MarketplaceFeePct = req.MarketplaceFeePct
	if req.Currency != "" {
		offer.Currency = req.Currency
	}
	if req.FreeFeatures != nil {
		offer.FreeFeatures = pqArray(req.FreeFeatures)
	}
	if req.PaidFeatures != nil {
		offer.PaidFeatures = pqArray(req.PaidFeatures)
	}
}

func applyAccess(access *models.AccessPolicy, req *AccessRequest) {
	if req.ViewCode != "" {
		access.ViewCode = models.AccessLevel(req.ViewCode)
	}
	if req.RunApp != "" {
		access.RunApp = models.AccessLevel(req.RunApp)
	}
	if req.DownloadCode != "" {
		access.DownloadCode = models.AccessLevel(req.DownloadCode)
	}
}

func pqArray(values []string) pq.StringArray {
	return pq.StringArray(values)
}
