// Package auth implements identity: registration, login, logout. The login
// path feeds the push-token registry, since a device token only exists for
// an authenticated session.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"bazaar/internal/model"
	"bazaar/internal/monitor"
	"bazaar/internal/repository"
	"bazaar/internal/service/token"
	"bazaar/internal/utils"
	"bazaar/pkg/log"
	pkgutils "bazaar/pkg/utils"
)

// RegisterRequest register request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Password string `json:"password" binding:"required,min=6,max=64"`
	Role     string `json:"role" binding:"omitempty,oneof=buyer seller delivery admin"`
}

// LoginRequest login request. DeviceToken is optional and, when present,
// is registered for push delivery as part of the login.
type LoginRequest struct {
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DeviceToken string `json:"device_token"`
	Platform    string `json:"platform"`
}

// TokenResponse token response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	UserKey      string `json:"user_key"`
	Role         string `json:"role"`
}

// AuthService authentication service interface
type AuthService interface {
	// Register creates a user
	Register(ctx context.Context, req *RegisterRequest) (*model.User, error)

	// Login verifies credentials and issues tokens
	Login(ctx context.Context, req *LoginRequest) (*TokenResponse, error)

	// Logout revokes the user's push token
	Logout(ctx context.Context, userKey string) error

	// ValidateToken parses and validates an access token
	ValidateToken(ctx context.Context, tokenString string) (*utils.JWTClaims, error)

	// RefreshToken exchanges a refresh token for a new access token
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
}

// authService authentication service implementation
type authService struct {
	userRepo     repository.UserRepository
	jwtManager   *utils.JWTManager
	registry     token.Registry
	accessExpire time.Duration
	metrics      *monitor.MetricsCollector
}

// NewAuthService creates an authentication service
func NewAuthService(
	userRepo repository.UserRepository,
	jwtManager *utils.JWTManager,
	registry token.Registry,
	accessExpire time.Duration,
	metrics *monitor.MetricsCollector,
) AuthService {
	return &authService{
		userRepo:     userRepo,
		jwtManager:   jwtManager,
		registry:     registry,
		accessExpire: accessExpire,
		metrics:      metrics,
	}
}

// Register creates a user with a bcrypt-hashed password
func (s *authService) Register(ctx context.Context, req *RegisterRequest) (*model.User, error) {
	if _, err := s.userRepo.GetByUsername(ctx, req.Username); err == nil {
		s.recordRegistration("exists")
		return nil, pkgutils.ErrUserExists
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		s.recordRegistration("failure")
		return nil, pkgutils.WrapError(err, pkgutils.CodeDatabaseError, "failed to check username")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.recordRegistration("failure")
		return nil, pkgutils.WrapError(err, pkgutils.CodeInternalError, "failed to hash password")
	}

	role := req.Role
	if role == "" {
		role = model.RoleBuyer
	}

	user := &model.User{
		UserKey:  uuid.NewString(),
		Username: req.Username,
		Password: string(hash),
		Role:     role,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		s.recordRegistration("failure")
		return nil, pkgutils.WrapError(err, pkgutils.CodeDatabaseError, "failed to create user")
	}

	s.recordRegistration("success")
	log.WithFields(map[string]interface{}{
		"user_key": user.UserKey,
		"role":     user.Role,
	}).Info("User registered")
	return user, nil
}

// Login verifies the password and issues a token pair. A device token on
// the request is upserted into the push registry; a rejected or failing
// upsert is logged and never fails the login.
func (s *authService) Login(ctx context.Context, req *LoginRequest) (*TokenResponse, error) {
	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		s.recordLogin("failure")
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, pkgutils.ErrWrongPassword
		}
		return nil, pkgutils.WrapError(err, pkgutils.CodeDatabaseError, "failed to load user")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		s.recordLogin("failure")
		return nil, pkgutils.ErrWrongPassword
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(user.UserKey, user.Username, user.Role)
	if err != nil {
		s.recordLogin("failure")
		return nil, pkgutils.WrapError(err, pkgutils.CodeInternalError, "failed to issue token")
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.UserKey, user.Username)
	if err != nil {
		s.recordLogin("failure")
		return nil, pkgutils.WrapError(err, pkgutils.CodeInternalError, "failed to issue token")
	}

	if req.DeviceToken != "" {
		platform := req.Platform
		if platform == "" {
			platform = model.PlatformWeb
		}
		if err := s.registry.Upsert(ctx, user.UserKey, req.DeviceToken, platform); err != nil {
			s.recordTokenUpsert(platform, "failure")
			log.WithError(err).WithFields(map[string]interface{}{
				"user_key": user.UserKey,
			}).Warn("Failed to register device token on login")
		} else {
			s.recordTokenUpsert(platform, "success")
		}
	}

	s.recordLogin("success")
	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.accessExpire.Seconds()),
		TokenType:    "Bearer",
		UserKey:      user.UserKey,
		Role:         user.Role,
	}, nil
}

// Logout revokes the user's push token so a logged-out device stops
// receiving order notifications
func (s *authService) Logout(ctx context.Context, userKey string) error {
	if err := s.registry.Revoke(ctx, userKey); err != nil {
		return pkgutils.WrapError(err, pkgutils.CodeDatabaseError, "failed to revoke push token")
	}
	return nil
}

// ValidateToken parses and validates an access token
func (s *authService) ValidateToken(ctx context.Context, tokenString string) (*utils.JWTClaims, error) {
	claims, err := s.jwtManager.ValidateToken(tokenString)
	if err != nil {
		return nil, pkgutils.ErrUnauthorized
	}
	return claims, nil
}

// RefreshToken exchanges a refresh token for a fresh access token
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.jwtManager.ValidateToken(refreshToken)
	if err != nil {
		return "", pkgutils.ErrUnauthorized
	}

	// the role may have changed since the refresh token was minted
	user, err := s.userRepo.GetByUserKey(ctx, claims.UserKey)
	if err != nil {
		return "", pkgutils.ErrUnauthorized
	}
	return s.jwtManager.GenerateAccessToken(user.UserKey, user.Username, user.Role)
}

func (s *authService) recordRegistration(status string) {
	if s.metrics != nil {
		s.metrics.RecordUserRegistration(status)
	}
}

func (s *authService) recordLogin(status string) {
	if s.metrics != nil {
		s.metrics.RecordUserLogin(status)
	}
}

func (s *authService) recordTokenUpsert(platform, status string) {
	if s.metrics != nil {
		s.metrics.RecordTokenUpsert(platform, status)
	}
}
