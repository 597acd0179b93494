package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service errors.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserDisabled       = errors.New("user account is disabled")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrUserExists         = errors.New("username or email already exists")
	ErrSetupComplete      = errors.New("setup already completed")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidTOTPCode    = errors.New("invalid TOTP code")
	ErrTOTPNotConfigured  = errors.New("TOTP is not configured")
)

const (
	// maxLoginAttempts failed logins lock the account for lockoutDuration.
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute

	// mfaTokenTTL bounds how long a client has to complete TOTP
	// verification after the password step.
	mfaTokenTTL = 5 * time.Minute
)

// TokenPair contains an access token and refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // Access token TTL in seconds
}

// LoginResult is returned by Login. When MFARequired is set, the token
// fields are empty and the client must call VerifyTOTP with MFAToken and
// a current code to receive the pair.
type LoginResult struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	MFARequired  bool   `json:"mfa_required,omitempty"`
	MFAToken     string `json:"mfa_token,omitempty"`
}

// Service provides authentication business logic.
type Service struct {
	store  *UserStore
	tokens *TokenService
	totp   *TOTPService
	logger *zap.Logger
}

// NewService creates an auth Service.
func NewService(store *UserStore, tokens *TokenService, totp *TOTPService, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		totp:   totp,
		logger: logger,
	}
}

// Tokens returns the token service for middleware use.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// Login authenticates a user. Accounts with TOTP enabled receive an MFA
// token instead of the pair; everyone else gets tokens directly.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if user.Disabled {
		return nil, ErrUserDisabled
	}
	if user.LockedUntil != nil && user.LockedUntil.After(time.Now()) {
		return nil, ErrAccountLocked
	}

	if !CheckPassword(user.PasswordHash, password) {
		attempts, recErr := s.store.RecordFailedLogin(ctx, user.ID)
		if recErr != nil {
			s.logger.Warn("record failed login", zap.Error(recErr))
		} else if attempts >= maxLoginAttempts {
			until := time.Now().Add(lockoutDuration)
			_ = s.store.LockAccount(ctx, user.ID, until)
			s.logger.Warn("account locked after repeated failures",
				zap.String("username", username),
				zap.Time("locked_until", until))
		}
		return nil, ErrInvalidCredentials
	}

	if user.TOTPEnabled {
		mfaToken, err := s.totp.IssueMFAToken(user.ID, mfaTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("issue MFA token: %w", err)
		}
		return &LoginResult{MFARequired: true, MFAToken: mfaToken}, nil
	}

	pair, err := s.completeLogin(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// VerifyTOTP completes an MFA login: it validates the MFA token from the
// password step plus a current TOTP code and returns the token pair.
func (s *Service) VerifyTOTP(ctx context.Context, mfaToken, code string) (*TokenPair, error) {
	userID, err := s.totp.ValidateMFAToken(mfaToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user.Disabled {
		return nil, ErrUserDisabled
	}

	secret, err := s.totpSecret(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if !s.totp.Validate(code, secret) {
		return nil, ErrInvalidTOTPCode
	}

	return s.completeLogin(ctx, user)
}

// completeLogin issues a token pair and records the successful login.
func (s *Service) completeLogin(ctx context.Context, user *User) (*TokenPair, error) {
	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}

	_ = s.store.ClearFailedLogins(ctx, user.ID)
	_ = s.store.UpdateLastLogin(ctx, user.ID)
	s.logger.Info("user logged in",
		zap.String("username", user.Username), zap.String("user_id", user.ID))
	return pair, nil
}

// BeginTOTPSetup generates a TOTP secret for the user and stores it
// encrypted. TOTP stays disabled until ConfirmTOTP verifies a code.
func (s *Service) BeginTOTPSetup(ctx context.Context, userID string) (secret, otpauthURL string, err error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrUserNotFound
		}
		return "", "", err
	}

	secret, otpauthURL, err = s.totp.GenerateSecret(user.Username, "Treeline")
	if err != nil {
		return "", "", err
	}

	encrypted, err := s.totp.Encrypt(secret)
	if err != nil {
		return "", "", fmt.Errorf("encrypt TOTP secret: %w", err)
	}
	if err := s.store.SetTOTPSecret(ctx, userID, encrypted); err != nil {
		return "", "", err
	}
	return secret, otpauthURL, nil
}

// ConfirmTOTP verifies a code against the pending secret and enables TOTP.
func (s *Service) ConfirmTOTP(ctx context.Context, userID, code string) error {
	secret, err := s.totpSecret(ctx, userID)
	if err != nil {
		return err
	}
	if !s.totp.Validate(code, secret) {
		return ErrInvalidTOTPCode
	}
	if err := s.store.EnableTOTP(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("TOTP enabled", zap.String("user_id", userID))
	return nil
}

// DisableTOTP turns off TOTP for the user after verifying a current code.
func (s *Service) DisableTOTP(ctx context.Context, userID, code string) error {
	secret, err := s.totpSecret(ctx, userID)
	if err != nil {
		return err
	}
	if !s.totp.Validate(code, secret) {
		return ErrInvalidTOTPCode
	}
	if err := s.store.DisableTOTP(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("TOTP disabled", zap.String("user_id", userID))
	return nil
}

// totpSecret loads and decrypts the user's TOTP secret.
func (s *Service) totpSecret(ctx context.Context, userID string) (string, error) {
	encrypted, err := s.store.GetTOTPSecret(ctx, userID)
	if err != nil {
		return "", err
	}
	if encrypted == "" {
		return "", ErrTOTPNotConfigured
	}
	secret, err := s.totp.Decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("decrypt TOTP secret: %w", err)
	}
	return secret, nil
}

// Setup creates the initial admin account. Only works when no users exist.
func (s *Service) Setup(ctx context.Context, username, email, password string) (*User, error) {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil, ErrSetupComplete
	}

	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password, 0)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}

	s.logger.Info("initial admin account created", zap.String("username", username))
	return user, nil
}

// Refresh validates a refresh token and returns a new token pair (rotation).
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	tokenHash := HashToken(refreshToken)
	rt, err := s.store.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if rt.Revoked || rt.ExpiresAt.Before(time.Now()) {
		return nil, ErrInvalidToken
	}

	// Revoke the old token (rotation).
	_ = s.store.RevokeRefreshToken(ctx, rt.ID)

	user, err := s.store.GetUserByID(ctx, rt.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user for refresh: %w", err)
	}
	if user.Disabled {
		return nil, ErrUserDisabled
	}

	return s.issueTokenPair(ctx, user)
}

// Logout revokes a refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	tokenHash := HashToken(refreshToken)
	rt, err := s.store.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil // Already revoked or doesn't exist -- idempotent.
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	return s.store.RevokeRefreshToken(ctx, rt.ID)
}

// NeedsSetup returns true if no users exist (first-run state).
func (s *Service) NeedsSetup(ctx context.Context) (bool, error) {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// ListUsers returns all users (for admin endpoints).
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateUser updates a user's email, role, and disabled status.
func (s *Service) UpdateUser(ctx context.Context, id, email string, role Role, disabled bool) (*User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	user.Email = email
	user.Role = role
	user.Disabled = disabled

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	// If the user was disabled, revoke all their refresh tokens.
	if disabled {
		_ = s.store.RevokeUserRefreshTokens(ctx, id)
	}

	return user, nil
}

// DeleteUser removes a user by ID.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

func (s *Service) issueTokenPair(ctx context.Context, user *User) (*TokenPair, error) {
	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	rawRefresh, hashRefresh, expiresAt, err := s.tokens.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	tokenID := uuid.New().String()
	if err := s.store.SaveRefreshToken(ctx, tokenID, user.ID, hashRefresh, expiresAt); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		ExpiresIn:    int(s.tokens.AccessTokenTTL().Seconds()),
	}, nil
}
