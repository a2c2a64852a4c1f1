package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/lborres/pulsetrack/core"
	"github.com/lborres/pulsetrack/pkg/crypto"
)

const (
	MinPasswordLength = 6
	MaxPasswordLength = 128

	resetTokenPrefix   = "reset:"
	confirmTokenPrefix = "confirm:"
)

type IdentityOptions struct {
	// RequireEmailConfirmation keeps new identities from signing in until
	// the link mailed at sign-up is followed.
	RequireEmailConfirmation bool
	ResetTokenTTL            time.Duration
	// ConfirmURL is the link target mailed at sign-up.
	ConfirmURL string
}

// IdentityService is the local identity provider: credential accounts with
// argon2id hashes and signed, revocable session tokens.
type IdentityService struct {
	db             core.AuthStorage
	passwordHasher crypto.PasswordHandler
	sessionManager *SessionManager
	tokens         core.OneTimeTokenStore
	mailer         core.Mailer
	opts           IdentityOptions
	logger         *slog.Logger
}

// Ensure IdentityService implements IdentityProvider
var _ core.IdentityProvider = (*IdentityService)(nil)

func NewIdentityService(db core.AuthStorage, sessionManager *SessionManager, passwordHasher crypto.PasswordHandler, tokens core.OneTimeTokenStore, mailer core.Mailer, opts IdentityOptions, logger *slog.Logger) *IdentityService {
	if opts.ResetTokenTTL <= 0 {
		opts.ResetTokenTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityService{
		db:             db,
		passwordHasher: passwordHasher,
		sessionManager: sessionManager,
		tokens:         tokens,
		mailer:         mailer,
		opts:           opts,
		logger:         logger.With("component", "identity"),
	}
}

// SignUp registers a new identity with email and password and returns its
// subject id. No session is issued.
func (s *IdentityService) SignUp(ctx context.Context, email, password string, claims core.Claims) (string, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return "", err
	}
	if !claims.Role.Valid() {
		return "", core.ErrInvalidRole
	}

	existingUser, err := s.db.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, core.ErrUserNotFound) {
		return "", fmt.Errorf("failed to check existing user: %w", err)
	}
	if existingUser != nil {
		return "", core.ErrUserExists
	}

	hashedPassword, err := s.passwordHasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &core.User{
		Email:         email,
		EmailVerified: !s.opts.RequireEmailConfirmation,
		FirstName:     claims.FirstName,
		LastName:      claims.LastName,
		Role:          claims.Role,
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		return "", fmt.Errorf("failed to create user: %w", err)
	}

	account := &core.Account{
		UserID:     user.ID,
		ProviderID: core.CredentialProvider,
		AccountID:  user.ID, // For credential provider, account ID = user ID
		Password:   &hashedPassword,
	}
	if err := s.db.CreateAccount(ctx, account); err != nil {
		return "", fmt.Errorf("failed to create account: %w", err)
	}

	if s.opts.RequireEmailConfirmation {
		if err := s.sendConfirmation(ctx, user); err != nil {
			return "", err
		}
	}

	s.logger.InfoContext(ctx, "identity created", "operation", "sign_up", "subject_id", user.ID, "role", user.Role)
	return user.ID, nil
}

// ConfirmEmail marks the identity behind token as verified.
func (s *IdentityService) ConfirmEmail(ctx context.Context, token string) error {
	if token == "" || s.tokens == nil {
		return core.ErrInvalidResetToken
	}
	userID, err := s.tokens.Consume(ctx, confirmTokenPrefix+token)
	if err != nil {
		return core.ErrInvalidResetToken
	}

	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	user.EmailVerified = true
	if err := s.db.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// SignInWithPassword authenticates a user with email and password
func (s *IdentityService) SignInWithPassword(ctx context.Context, email, password string) (*core.Session, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, core.ErrEmailRequired
	}
	if password == "" {
		return nil, core.ErrPasswordRequired
	}

	user, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return nil, core.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	account, err := s.credentialAccount(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	valid, err := s.passwordHasher.Verify(password, *account.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return nil, core.ErrInvalidCredentials
	}

	if !user.EmailVerified {
		return nil, core.ErrEmailNotConfirmed
	}

	result, err := s.sessionManager.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return result.Session, nil
}

// GetSession resolves a client token into its session.
func (s *IdentityService) GetSession(ctx context.Context, token string) (*core.Session, error) {
	return s.sessionManager.Verify(ctx, token)
}

// SignOut invalidates the session behind token
func (s *IdentityService) SignOut(ctx context.Context, token string) error {
	if err := s.sessionManager.Destroy(ctx, token); err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return core.ErrInvalidToken
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Refresh issues a new session for the holder of token and revokes the old
// one.
func (s *IdentityService) Refresh(ctx context.Context, token string) (*core.Session, error) {
	current, err := s.sessionManager.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.db.GetUserByID(ctx, current.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	result, err := s.sessionManager.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := s.sessionManager.Destroy(ctx, token); err != nil {
		s.logger.WarnContext(ctx, "old session not revoked", "operation", "refresh", "error", err)
	}

	return result.Session, nil
}

// SendPasswordReset mails a single-use reset link. Unknown addresses
// succeed silently.
func (s *IdentityService) SendPasswordReset(ctx context.Context, email, redirectURL string) error {
	email = normalizeEmail(email)
	if email == "" {
		return core.ErrEmailRequired
	}
	if s.tokens == nil || s.mailer == nil {
		return core.ErrNotImplemented
	}

	user, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			s.logger.DebugContext(ctx, "reset requested for unknown email", "operation", "reset_password")
			return nil
		}
		return fmt.Errorf("failed to find user: %w", err)
	}

	token, err := crypto.RandomToken()
	if err != nil {
		return err
	}
	if err := s.tokens.Save(ctx, resetTokenPrefix+token, user.ID, s.opts.ResetTokenTTL); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	link, err := withQuery(redirectURL, "token", token)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Follow this link to reset your password: %s\nThe link expires in %s.", link, s.opts.ResetTokenTTL)
	if err := s.mailer.Send(ctx, user.Email, "Reset your PulseTrack password", body); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	return nil
}

// ConfirmPasswordReset sets a new password for the holder of resetToken and
// revokes every session of that identity.
func (s *IdentityService) ConfirmPasswordReset(ctx context.Context, resetToken, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if resetToken == "" || s.tokens == nil {
		return core.ErrInvalidResetToken
	}

	userID, err := s.tokens.Consume(ctx, resetTokenPrefix+resetToken)
	if err != nil {
		return core.ErrInvalidResetToken
	}

	if err := s.setPassword(ctx, userID, newPassword); err != nil {
		return err
	}

	if _, err := s.sessionManager.DestroyAllUserSessions(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "sessions not revoked after reset", "operation", "confirm_reset", "error", err)
	}
	return nil
}

// UpdateCredentials changes the email and/or password of the session's
// identity.
func (s *IdentityService) UpdateCredentials(ctx context.Context, token string, c core.Credentials) error {
	session, err := s.sessionManager.Verify(ctx, token)
	if err != nil {
		return err
	}
	if c.Empty() {
		return nil
	}

	if c.Email != "" {
		email := normalizeEmail(c.Email)
		if _, err := mail.ParseAddress(email); err != nil {
			return core.ErrInvalidEmail
		}

		other, err := s.db.GetUserByEmail(ctx, email)
		if err != nil && !errors.Is(err, core.ErrUserNotFound) {
			return fmt.Errorf("failed to check existing user: %w", err)
		}
		if other != nil && other.ID != session.SubjectID {
			return core.ErrUserExists
		}

		user, err := s.db.GetUserByID(ctx, session.SubjectID)
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		user.Email = email
		if err := s.db.UpdateUser(ctx, user); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
	}

	if c.Password != "" {
		if err := validatePassword(c.Password); err != nil {
			return err
		}
		if err := s.setPassword(ctx, session.SubjectID, c.Password); err != nil {
			return err
		}
	}

	return nil
}

func (s *IdentityService) credentialAccount(ctx context.Context, userID string) (*core.Account, error) {
	accounts, err := s.db.GetAccountByUserAndProvider(ctx, userID, core.CredentialProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if len(accounts) == 0 || accounts[0].Password == nil {
		return nil, core.ErrInvalidCredentials
	}
	return accounts[0], nil
}

func (s *IdentityService) setPassword(ctx context.Context, userID, password string) error {
	account, err := s.credentialAccount(ctx, userID)
	if err != nil {
		return err
	}
	hashed, err := s.passwordHasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	account.Password = &hashed
	if err := s.db.UpdateAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

func (s *IdentityService) sendConfirmation(ctx context.Context, user *core.User) error {
	if s.tokens == nil || s.mailer == nil {
		return core.ErrNotImplemented
	}
	token, err := crypto.RandomToken()
	if err != nil {
		return err
	}
	if err := s.tokens.Save(ctx, confirmTokenPrefix+token, user.ID, 24*time.Hour); err != nil {
		return fmt.Errorf("failed to store confirmation token: %w", err)
	}
	link, err := withQuery(s.opts.ConfirmURL, "token", token)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Welcome to PulseTrack, %s. Confirm your email: %s", user.FirstName, link)
	if err := s.mailer.Send(ctx, user.Email, "Confirm your PulseTrack account", body); err != nil {
		return fmt.Errorf("failed to send confirmation email: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	if email == "" {
		return core.ErrEmailRequired
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return core.ErrInvalidEmail
	}
	return validatePassword(password)
}

func validatePassword(password string) error {
	switch {
	case password == "":
		return core.ErrPasswordRequired
	case len(password) < MinPasswordLength:
		return core.ErrPasswordTooShort
	case len(password) > MaxPasswordLength:
		return core.ErrPasswordTooLong
	}
	return nil
}

func withQuery(base, key, value string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid redirect url: %w", err)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
