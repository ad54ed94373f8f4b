// internal/services/auth_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/devmart/devmart-backend/internal/config"
	"github.com/devmart/devmart-backend/internal/models"
	"github.com/devmart/devmart-backend/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountSuspended   = errors.New("account is suspended")
	ErrEmailTaken         = errors.New("user with this email already exists")
	ErrUsernameTaken      = errors.New("username already taken")
)

type AuthService struct {
	db        *gorm.DB
	cfg       *config.Config
	blacklist *cache.Cache
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Username    string                 `json:"username" validate:"required,username"`
	Email       string                 `json:"email" validate:"required,email"`
	Password    string                 `json:"password" validate:"required,strong_password"`
	ProfileData map[string]interface{} `json:"profile_data,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type AuthResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"` // in seconds
}

func NewAuthService(db *gorm.DB, cfg *config.Config) *AuthService {
	ttl := time.Duration(cfg.JWT.AccessTokenTTL) * time.Hour
	return &AuthService{
		db:        db,
		cfg:       cfg,
		blacklist: cache.New(ttl, 10*time.Minute),
	}
}

func (s *AuthService) Register(req *RegisterRequest) (*AuthResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var existingUser models.User
	if err := s.db.Where("email = ? OR username = ?", req.Email, req.Username).First(&existingUser).Error; err == nil {
		if existingUser.Email == req.Email {
			return nil, ErrEmailTaken
		}
		return nil, ErrUsernameTaken
	}

	user := &models.User{
		Username:    req.Username,
		Email:       req.Email,
		UserType:    models.UserTypeMember,
		Status:      models.UserStatusActive,
		ProfileData: models.JSONB(req.ProfileData),
	}

	if err := user.SetPassword(req.Password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.db.Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.issueTokens(user)
}

func (s *AuthService) Login(req *LoginRequest) (*AuthResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var user models.User
	if err := s.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !user.HasPassword() {
		return nil, ErrInvalidCredentials
	}
	if err := user.CheckPassword(req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	if user.Status != models.UserStatusActive {
		return nil, ErrAccountSuspended
	}

	return s.issueTokens(&user)
}

func (s *AuthService) RefreshToken(req *RefreshRequest) (*AuthResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	userID, err := utils.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		return nil, errors.New("invalid refresh token")
	}

	if s.IsTokenRevoked(req.RefreshToken) {
		return nil, errors.New("invalid refresh token")
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, errors.New("invalid refresh token")
	}

	if user.Status != models.UserStatusActive {
		return nil, ErrAccountSuspended
	}

	// Rotate: the presented refresh token is single-use.
	s.RevokeToken(req.RefreshToken, time.Duration(s.cfg.JWT.RefreshTokenTTL)*time.Hour)

	return s.issueTokens(&user)
}

// Logout revokes both tokens for the remainder of their lifetimes.
func (s *AuthService) Logout(accessToken, refreshToken string) {
	if accessToken != "" {
		s.RevokeToken(accessToken, time.Duration(s.cfg.JWT.AccessTokenTTL)*time.Hour)
	}
	if refreshToken != "" {
		s.RevokeToken(refreshToken, time.Duration(s.cfg.JWT.RefreshTokenTTL)*time.Hour)
	}
}

func (s *AuthService) RevokeToken(token string, ttl time.Duration) {
	s.blacklist.Set(utils.HashString(token), true, ttl)
}

func (s *AuthService) IsTokenRevoked(token string) bool {
	_, revoked := s.blacklist.Get(utils.HashString(token))
	return revoked
}

func (s *AuthService) GetUser(userID string) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("user not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}

func (s *AuthService) issueTokens(user *models.User) (*AuthResponse, error) {
	accessToken, err := utils.GenerateJWT(
		user.ID,
		user.Username,
		string(user.UserType),
		s.cfg.JWT.AccessTokenTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := utils.GenerateRefreshToken(user.ID, s.cfg.JWT.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &AuthResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.cfg.JWT.AccessTokenTTL * 3600,
	}, nil
}
