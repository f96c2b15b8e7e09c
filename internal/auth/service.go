package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidora.org/internal/ids"
)

const (
	defaultIssuer     = "vidora"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 10 * 24 * time.Hour
)

// Service owns the credential and session lifecycle: registration, login,
// token issuance, verification, rotation, and revocation.
type Service struct {
	store Store
	now   func() time.Time

	issuer        string
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration

	access  tokenSigner
	refresh tokenSigner
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithSecrets sets the distinct signing secrets for access and refresh tokens.
func WithSecrets(access, refresh string) ServiceOption {
	return func(s *Service) error {
		access = strings.TrimSpace(access)
		refresh = strings.TrimSpace(refresh)
		if access == "" || refresh == "" {
			return errors.New("auth: both access and refresh secrets are required")
		}
		if access == refresh {
			return errors.New("auth: access and refresh secrets must differ")
		}
		s.accessSecret = []byte(access)
		s.refreshSecret = []byte(refresh)
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs a Service. Secrets are mandatory: the service refuses
// to start half-configured rather than degrade to an unauthenticated mode.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	svc := &Service{
		store:      store,
		now:        time.Now,
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if len(svc.accessSecret) == 0 || len(svc.refreshSecret) == 0 {
		return nil, errors.New("auth: signing secrets are not configured")
	}
	svc.access = tokenSigner{
		secret:    svc.accessSecret,
		ttl:       svc.accessTTL,
		issuer:    svc.issuer,
		tokenType: tokenTypeAccess,
		now:       svc.now,
	}
	svc.refresh = tokenSigner{
		secret:    svc.refreshSecret,
		ttl:       svc.refreshTTL,
		issuer:    svc.issuer,
		tokenType: tokenTypeRefresh,
		now:       svc.now,
	}
	return svc, nil
}

// Register creates a new account with a hashed password.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*User, error) {
	username := strings.ToLower(strings.TrimSpace(params.Username))
	email := strings.ToLower(strings.TrimSpace(params.Email))
	fullName := strings.TrimSpace(params.FullName)
	if username == "" || email == "" || fullName == "" || params.Password == "" {
		return nil, fmt.Errorf("%w: all fields are required", ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	hash, err := HashPassword(params.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	user := &User{
		ID:            ids.New(),
		Username:      username,
		Email:         email,
		FullName:      fullName,
		AvatarURL:     params.AvatarURL,
		CoverImageURL: params.CoverImageURL,
		PasswordHash:  hash,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	out := user.Sanitized()
	return &out, nil
}

// Login verifies credentials and mints a fresh token pair.
//
// A missing account surfaces as ErrNotFound while a wrong password surfaces
// as ErrUnauthorized; the split mirrors the upstream product behavior.
func (s *Service) Login(ctx context.Context, identifier, password string) (TokenPair, *User, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || password == "" {
		return TokenPair{}, nil, fmt.Errorf("%w: username or email is required", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).FindByLogin(ctx, identifier)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrUnauthorized
	}
	pair, err := s.issueTokenPair(ctx, user.ID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	out := user.Sanitized()
	return pair, &out, nil
}

// issueTokenPair mints both tokens and persists the refresh token hash.
// Exactly one write happens per call; if it fails no pair is returned.
func (s *Service) issueTokenPair(ctx context.Context, userID string) (TokenPair, error) {
	accessToken, accessExp, err := s.access.sign(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, refreshExp, err := s.refresh.sign(userID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Users(ctx).UpdateRefreshToken(ctx, userID, hashToken(refreshToken)); err != nil {
		return TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Authenticate validates an access token and resolves its subject.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	claims, err := s.access.verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	out := user.Sanitized()
	return &out, nil
}

// Refresh exchanges a valid refresh token for a new pair, invalidating the
// presented token. A token that was already rotated away, or never issued,
// fails the stored-hash comparison and can never succeed again.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, *User, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenPair{}, nil, ErrInvalidToken
	}
	claims, err := s.refresh.verify(refreshToken)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidToken
	}
	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidToken
		}
		return TokenPair{}, nil, err
	}
	if user.RefreshTokenHash == "" || !constantTimeEqual(user.RefreshTokenHash, hashToken(refreshToken)) {
		return TokenPair{}, nil, ErrInvalidToken
	}
	pair, err := s.issueTokenPair(ctx, user.ID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	out := user.Sanitized()
	return pair, &out, nil
}

// Logout clears the stored refresh token. Logging out an already logged-out
// user is not an error.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.store.Users(ctx).ClearRefreshToken(ctx, userID)
}

// ChangePassword verifies the old password and installs a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, oldPassword); err != nil {
		return ErrUnauthorized
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.store.Users(ctx).UpdatePassword(ctx, userID, hash)
}

// CurrentUser loads the sanitized record for an authenticated user.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := user.Sanitized()
	return &out, nil
}

// UserByUsername loads a sanitized user for public channel pages.
func (s *Service) UserByUsername(ctx context.Context, username string) (*User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	out := user.Sanitized()
	return &out, nil
}

// UpdateProfile applies partial profile changes.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*User, error) {
	if update.FullName == nil && update.Email == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if update.FullName != nil && strings.TrimSpace(*update.FullName) == "" {
		return nil, fmt.Errorf("%w: full name must not be empty", ErrInvalidInput)
	}
	if update.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*update.Email))
		if !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: malformed email", ErrInvalidInput)
		}
		update.Email = &email
	}
	if err := s.store.Users(ctx).UpdateProfile(ctx, userID, update); err != nil {
		return nil, err
	}
	return s.CurrentUser(ctx, userID)
}

// UpdateAvatar stores a new avatar reference.
func (s *Service) UpdateAvatar(ctx context.Context, userID, avatarURL string) (*User, error) {
	if strings.TrimSpace(avatarURL) == "" {
		return nil, fmt.Errorf("%w: avatar url is required", ErrInvalidInput)
	}
	if err := s.store.Users(ctx).UpdateAvatar(ctx, userID, avatarURL); err != nil {
		return nil, err
	}
	return s.CurrentUser(ctx, userID)
}

// UpdateCoverImage stores a new cover image reference.
func (s *Service) UpdateCoverImage(ctx context.Context, userID, coverURL string) (*User, error) {
	if strings.TrimSpace(coverURL) == "" {
		return nil, fmt.Errorf("%w: cover image url is required", ErrInvalidInput)
	}
	if err := s.store.Users(ctx).UpdateCoverImage(ctx, userID, coverURL); err != nil {
		return nil, err
	}
	return s.CurrentUser(ctx, userID)
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
