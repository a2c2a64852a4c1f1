package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lborres/pulsetrack/core"
)

const SignUpConfirmationMessage = "Check your email to confirm your account"

type Operation string

const (
	OpSignIn        Operation = "sign_in"
	OpSignUp        Operation = "sign_up"
	OpSignOut       Operation = "sign_out"
	OpResetPassword Operation = "reset_password"
	OpUpdateProfile Operation = "update_profile"
	OpRefresh       Operation = "refresh"
)

type OperationState int

const (
	StateIdle OperationState = iota
	StateInFlight
	StateSucceeded
	StateFailed
)

func (s OperationState) String() string {
	switch s {
	case StateInFlight:
		return "in_flight"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// AuthManager runs the user-facing auth operations against one
// SessionStore. Operations on the same manager are serialized.
type AuthManager struct {
	identity core.IdentityProvider
	profiles core.ProfileStore
	store    *SessionStore
	siteURL  string
	logger   *slog.Logger
	now      func() time.Time

	opMu sync.Mutex

	mu       sync.RWMutex
	states   map[Operation]OperationState
	inFlight bool
}

func NewAuthManager(identity core.IdentityProvider, profiles core.ProfileStore, store *SessionStore, siteURL string, logger *slog.Logger) *AuthManager {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = NewSessionStore(nil)
	}
	return &AuthManager{
		identity: identity,
		profiles: profiles,
		store:    store,
		siteURL:  strings.TrimRight(siteURL, "/"),
		logger:   logger.With("component", "auth_manager"),
		now:      time.Now,
		states:   make(map[Operation]OperationState),
	}
}

// IsLoading reports whether an operation is in flight.
func (m *AuthManager) IsLoading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inFlight
}

func (m *AuthManager) State(op Operation) OperationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[op]
}

func (m *AuthManager) Session() *core.Session {
	return m.store.Current()
}

func (m *AuthManager) Store() *SessionStore {
	return m.store
}

func (m *AuthManager) run(ctx context.Context, op Operation, fn func() error) (err error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.states[op] = StateInFlight
	m.inFlight = true
	m.mu.Unlock()

	defer func() {
		state := StateSucceeded
		if err != nil {
			state = StateFailed
		}
		m.mu.Lock()
		m.states[op] = state
		m.inFlight = false
		m.mu.Unlock()

		if err != nil {
			m.logger.ErrorContext(ctx, "auth operation failed", "operation", op, "outcome", "failed", "error", err)
		} else {
			m.logger.DebugContext(ctx, "auth operation completed", "operation", op, "outcome", "succeeded")
		}
	}()

	return fn()
}

// SignIn authenticates with the identity provider and installs the
// resulting session.
func (m *AuthManager) SignIn(ctx context.Context, email, password string) (*core.Navigation, error) {
	var nav *core.Navigation
	err := m.run(ctx, OpSignIn, func() error {
		if m.identity == nil {
			return core.ErrIdentityNotConfigured
		}
		if email == "" {
			return core.ErrEmailRequired
		}
		if password == "" {
			return core.ErrPasswordRequired
		}

		session, err := m.identity.SignInWithPassword(ctx, email, password)
		if err != nil {
			return err
		}
		m.store.Set(session)

		nav = &core.Navigation{To: DashboardPath}
		return nil
	})
	return nav, err
}

// SignUp creates the identity, then its profile. A failed profile insert
// leaves the identity in place.
func (m *AuthManager) SignUp(ctx context.Context, email, password string, fields core.ProfileFields) (*core.Navigation, error) {
	var nav *core.Navigation
	err := m.run(ctx, OpSignUp, func() error {
		if m.identity == nil {
			return core.ErrIdentityNotConfigured
		}
		if m.profiles == nil {
			return core.ErrProfilesNotConfigured
		}
		if !fields.Role.Valid() {
			return fmt.Errorf("%w: %q", core.ErrInvalidRole, fields.Role)
		}

		subjectID, err := m.identity.SignUp(ctx, email, password, core.Claims{
			FirstName: fields.FirstName,
			LastName:  fields.LastName,
			Role:      fields.Role,
		})
		if err != nil {
			return err
		}

		if subjectID != "" {
			now := m.now().UTC()
			profile := &core.Profile{
				ID:                subjectID,
				Email:             email,
				FirstName:         fields.FirstName,
				LastName:          fields.LastName,
				Role:              fields.Role,
				PreferredLanguage: fields.PreferredLanguage,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if fields.Phone != "" {
				phone := fields.Phone
				profile.Phone = &phone
			}
			if profile.PreferredLanguage == "" {
				profile.PreferredLanguage = core.DefaultPreferredLanguage
			}

			if err := m.profiles.CreateProfile(ctx, profile); err != nil {
				m.logger.WarnContext(ctx, "identity created without profile", "operation", OpSignUp, "subject_id", subjectID)
				return err
			}
		}

		nav = &core.Navigation{To: LoginPath, Message: SignUpConfirmationMessage}
		return nil
	})
	return nav, err
}

// SignOut invalidates the current session with the provider, then clears
// it locally.
func (m *AuthManager) SignOut(ctx context.Context) (*core.Navigation, error) {
	var nav *core.Navigation
	err := m.run(ctx, OpSignOut, func() error {
		if m.identity == nil {
			return core.ErrIdentityNotConfigured
		}

		if session := m.store.Current(); session != nil {
			if err := m.identity.SignOut(ctx, session.Token); err != nil {
				return err
			}
		}
		m.store.Clear()

		nav = &core.Navigation{To: HomePath}
		return nil
	})
	return nav, err
}

// ResetPassword asks the provider to mail a reset link.
func (m *AuthManager) ResetPassword(ctx context.Context, email string) error {
	return m.run(ctx, OpResetPassword, func() error {
		if m.identity == nil {
			return core.ErrIdentityNotConfigured
		}
		return m.identity.SendPasswordReset(ctx, email, m.siteURL+"/reset-password")
	})
}

// UpdateProfile changes credentials first when supplied, then patches only
// the non-empty profile fields.
func (m *AuthManager) UpdateProfile(ctx context.Context, update core.ProfileUpdate) error {
	return m.run(ctx, OpUpdateProfile, func() error {
		if m.identity == nil {
			return core.ErrIdentityNotConfigured
		}
		if m.profiles == nil {
			return core.ErrProfilesNotConfigured
		}

		session := m.store.Current()
		if session == nil {
			return core.ErrNotLoggedIn
		}

		creds := core.Credentials{Email: update.Email, Password: update.Password}
		if !creds.Empty() {
			if err := m.identity.UpdateCredentials(ctx, session.Token, creds); err != nil {
				return err
			}
		}

		return m.profiles.UpdateProfile(ctx, session.SubjectID, patchFromUpdate(update, m.now().UTC()))
	})
}

// Refresh replaces the current session with a newly issued one.
func (m *AuthManager) Refresh(ctx context.Context) (*core.Session, error) {
	var refreshed *core.Session
	err := m.run(ctx, OpRefresh, func() error {
		if m.identity == nil {
			return core.ErrIdentityNotConfigured
		}

		session := m.store.Current()
		if session == nil {
			return core.ErrNotLoggedIn
		}

		next, err := m.identity.Refresh(ctx, session.Token)
		if err != nil {
			return err
		}
		m.store.Set(next)
		refreshed = m.store.Current()
		return nil
	})
	return refreshed, err
}

func patchFromUpdate(update core.ProfileUpdate, now time.Time) core.ProfilePatch {
	patch := core.ProfilePatch{UpdatedAt: now}
	if update.FirstName != "" {
		patch.FirstName = &update.FirstName
	}
	if update.LastName != "" {
		patch.LastName = &update.LastName
	}
	if update.Phone != "" {
		patch.Phone = &update.Phone
	}
	if update.PreferredLanguage != "" {
		patch.PreferredLanguage = &update.PreferredLanguage
	}
	return patch
}
