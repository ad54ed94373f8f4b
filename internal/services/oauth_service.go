// internal/services/oauth_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/devmart/devmart-backend/internal/config"
	"github.com/devmart/devmart-backend/internal/models"
	"github.com/devmart/devmart-backend/internal/utils"
)

var ErrUnknownOAuthProvider = errors.New("unknown oauth provider")

// OAuthService exchanges authorization codes with GitHub and Google and
// maps the resulting identity onto a local account. Accounts are keyed
// on (provider, subject); an existing account with the same verified
// email is linked instead of duplicated.
type OAuthService struct {
	db   *gorm.DB
	cfg  *config.Config
	auth *AuthService

	httpClient *http.Client
}

type oauthIdentity struct {
	Provider models.OAuthProvider
	Subject  string
	Email    string
	Username string
}

func NewOAuthService(db *gorm.DB, cfg *config.Config, auth *AuthService) *OAuthService {
	return &OAuthService{
		db:         db,
		cfg:        cfg,
		auth:       auth,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthURL builds the provider redirect URL for the given CSRF state.
func (s *OAuthService) AuthURL(provider models.OAuthProvider, state string) (string, error) {
	conf, err := s.providerConfig(provider)
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// HandleCallback exchanges the authorization code, resolves or creates
// the local account, and returns a token pair.
func (s *OAuthService) HandleCallback(ctx context.Context, provider models.OAuthProvider, code string) (*AuthResponse, error) {
	conf, err := s.providerConfig(provider)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange failed: %v", ErrProviderFailure, err)
	}

	identity, err := s.fetchIdentity(ctx, provider, conf, token)
	if err != nil {
		return nil, err
	}

	user, err := s.findOrCreateUser(identity)
	if err != nil {
		return nil, err
	}

	if user.Status != models.UserStatusActive {
		return nil, ErrAccountSuspended
	}

	return s.auth.issueTokens(user)
}

func (s *OAuthService) providerConfig(provider models.OAuthProvider) (*oauth2.Config, error) {
	switch provider {
	case models.OAuthProviderGitHub:
		return &oauth2.Config{
			ClientID:     s.cfg.OAuth.GitHub.ClientID,
			ClientSecret: s.cfg.OAuth.GitHub.ClientSecret,
			RedirectURL:  s.cfg.OAuth.GitHub.RedirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, nil
	case models.OAuthProviderGoogle:
		return &oauth2.Config{
			ClientID:     s.cfg.OAuth.Google.ClientID,
			ClientSecret: s.cfg.OAuth.Google.ClientSecret,
			RedirectURL:  s.cfg.OAuth.Google.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, ErrUnknownOAuthProvider
	}
}

func (s *OAuthService) fetchIdentity(ctx context.Context, provider models.OAuthProvider, conf *oauth2.Config, token *oauth2.Token) (*oauthIdentity, error) {
	client := conf.Client(ctx, token)

	switch provider {
	case models.OAuthProviderGitHub:
		var payload struct {
			ID    int64  `json:"id"`
			Login string `json:"login"`
			Email string `json:"email"`
		}
		if err := s.getJSON(client, "https://api.github.com/user", &payload); err != nil {
			return nil, err
		}
		if payload.Email == "" {
			// Primary email requires a second call when the profile hides it.
			var emails []struct {
				Email    string `json:"email"`
				Primary  bool   `json:"primary"`
				Verified bool   `json:"verified"`
			}
			if err := s.getJSON(client, "https://api.github.com/user/emails", &emails); err != nil {
				return nil, err
			}
			for _, e := range emails {
				if e.Primary && e.Verified {
					payload.Email = e.Email
					break
				}
			}
		}
		if payload.Email == "" {
			return nil, fmt.Errorf("%w: github account has no verified email", ErrProviderFailure)
		}
		return &oauthIdentity{
			Provider: provider,
			Subject:  fmt.Sprintf("%d", payload.ID),
			Email:    payload.Email,
			Username: payload.Login,
		}, nil

	case models.OAuthProviderGoogle:
		var payload struct {
			Sub           string `json:"sub"`
			Email         string `json:"email"`
			EmailVerified bool   `json:"email_verified"`
			Name          string `json:"name"`
		}
		if err := s.getJSON(client, "https://openidconnect.googleapis.com/v1/userinfo", &payload); err != nil {
			return nil, err
		}
		if !payload.EmailVerified {
			return nil, fmt.Errorf("%w: google account email is not verified", ErrProviderFailure)
		}
		return &oauthIdentity{
			Provider: provider,
			Subject:  payload.Sub,
			Email:    payload.Email,
			Username: payload.Name,
		}, nil

	default:
		return nil, ErrUnknownOAuthProvider
	}
}

func (s *OAuthService) getJSON(client *http.Client, url string, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrProviderFailure, url, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *OAuthService) findOrCreateUser(identity *oauthIdentity) (*models.User, error) {
	var user models.User
	err := s.db.Where("oauth_provider = ? AND oauth_subject = ?", identity.Provider, identity.Subject).
		First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	// Link to an existing account with the same email before creating one.
	err = s.db.Where("email = ?", identity.Email).First(&user).Error
	if err == nil {
		updates := map[string]interface{}{
			"oauth_provider": string(identity.Provider),
			"oauth_subject":  identity.Subject,
		}
		if err := s.db.Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to link oauth identity: %w", err)
		}
		user.OAuthProvider = string(identity.Provider)
		user.OAuthSubject = identity.Subject
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	now := time.Now()
	user = models.User{
		Username:        s.uniqueUsername(identity.Username, identity.Email),
		Email:           identity.Email,
		UserType:        models.UserTypeMember,
		Status:          models.UserStatusActive,
		OAuthProvider:   string(identity.Provider),
		OAuthSubject:    identity.Subject,
		EmailVerifiedAt: &now,
	}

	if err := s.db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &user, nil
}

// uniqueUsername derives a username from the provider profile, falling
// back to the email local part and a random suffix on collisions.
func (s *OAuthService) uniqueUsername(preferred, email string) string {
	candidate := sanitizeUsername(preferred)
	if candidate == "" {
		candidate = sanitizeUsername(strings.Split(email, "@")[0])
	}
	if candidate == "" {
		candidate = "user"
	}

	var count int64
	s.db.Model(&models.User{}).Where("username = ?", candidate).Count(&count)
	if count == 0 {
		return candidate
	}

	suffix, err := utils.GenerateRandomString(6)
	if err != nil {
		suffix = fmt.Sprintf("%d", time.Now().UnixNano()%1000000)
	}
	return fmt.Sprintf("%s_%s", candidate, strings.ToLower(suffix))
}

func sanitizeUsername(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '.':
			b.WriteRune('_')
		}
	}
	out := b.String()
	if len(out) > 30 {
		out = out[:30]
	}
	return out
}
