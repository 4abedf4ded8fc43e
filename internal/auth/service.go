package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/vovakirdan/campus-server/internal/core"
	"github.com/vovakirdan/campus-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with an existing email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidEmail is returned when the email is malformed.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned when the password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidToken is returned for any token that fails validation.
	ErrInvalidToken = errors.New("invalid token")
)

// TokenPair is issued on login and refresh.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Service provides authentication operations.
type Service struct {
	store     store.Store
	jwtConfig *JWTConfig
}

var _ core.Authenticator = (*Service)(nil)

// NewService creates a new authentication service.
func NewService(st store.Store, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     st,
		jwtConfig: jwtConfig,
	}
}

// Register creates a user with role "user" and a default profile.
func (s *Service) Register(ctx context.Context, email, password string) (*store.User, error) {
	email = strings.TrimSpace(email)
	if err := validation.Validate(email, validation.Required, is.EmailFormat); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return nil, ErrInvalidPassword
	}

	if existing, err := s.store.GetUserByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrUserExists
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	var user *store.User
	err = s.store.WithinTx(ctx, func(q store.Queries) error {
		var err error
		user, err = q.CreateUser(ctx, email, hashedPassword, store.RoleUser)
		return err
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// Login validates credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !ComparePassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	return s.issue(user.ID)
}

// Refresh exchanges a refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := ValidateToken(s.jwtConfig, refreshToken, TokenRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if _, err := s.store.GetUserByID(ctx, claims.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return s.issue(claims.UserID)
}

// CurrentUser resolves an access token into the user it was issued for.
// The role is read from the store, so role grants apply without re-login.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (*store.User, error) {
	if accessToken == "" {
		return nil, ErrInvalidToken
	}
	claims, err := ValidateToken(s.jwtConfig, accessToken, TokenAccess)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// Profile returns the profile of a user, or nil if none exists.
func (s *Service) Profile(ctx context.Context, userID int64) (*store.Profile, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// Authenticate implements core.Authenticator for chat sessions.
func (s *Service) Authenticate(ctx context.Context, token string) (*core.Actor, error) {
	user, err := s.CurrentUser(ctx, token)
	if err != nil {
		return nil, err
	}
	return &core.Actor{UserID: user.ID, Role: user.Role}, nil
}

func (s *Service) issue(userID int64) (*TokenPair, error) {
	access, err := GenerateToken(s.jwtConfig, userID, TokenAccess)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := GenerateToken(s.jwtConfig, userID, TokenRefresh)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}
