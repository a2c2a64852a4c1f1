package core

import (
	"context"
	"time"
)

// Ports define interfaces for external dependencies

// Disposer releases a subscription. Calling it more than once is a no-op.
type Disposer func()

// ============================================
// STORAGE PORTS (Database operations)
// ============================================

// SessionStorage defines session-related database operations
type SessionStorage interface {
	CreateSession(ctx context.Context, session *SessionRecord) error
	GetSessionByHash(ctx context.Context, tokenHash string) (*SessionRecord, error)
	DeleteSessionByHash(ctx context.Context, tokenHash string) error
	DeleteUserSessions(ctx context.Context, userID string) (int, error)
	DeleteExpiredSessions(ctx context.Context) (int, error)
}

// UserStorage defines user-related database operations
type UserStorage interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error
}

// AccountStorage defines account-related database operations
type AccountStorage interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccountByID(ctx context.Context, id string) (*Account, error)
	GetAccountByUserAndProvider(ctx context.Context, userID, providerID string) ([]*Account, error)
	UpdateAccount(ctx context.Context, a *Account) error
	DeleteAccount(ctx context.Context, id string) error
}

type AuthStorage interface {
	UserStorage
	AccountStorage
	SessionStorage
}

// ProfileStore holds one profile per subject.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)
	// UpdateProfile writes only the non-nil fields of patch.
	UpdateProfile(ctx context.Context, id string, patch ProfilePatch) error
}

// NotificationStore persists events and exposes a per-subject insert feed.
type NotificationStore interface {
	// ListByUser returns the subject's events, newest first.
	ListByUser(ctx context.Context, userID string) ([]NotificationEvent, error)
	Insert(ctx context.Context, e *NotificationEvent) error
	MarkRead(ctx context.Context, userID, id string) error
	// SubscribeInserts delivers events inserted for userID until the
	// returned Disposer is called.
	SubscribeInserts(ctx context.Context, userID string, fn func(NotificationEvent)) (Disposer, error)
}

// Storage is everything the HTTP service persists.
type Storage interface {
	AuthStorage
	ProfileStore
	NotificationStore
}

// ============================================
// CACHE PORT
// ============================================

// SessionCache caches session records by token hash
type SessionCache interface {
	Get(tokenHash string) (*SessionRecord, error)
	Set(tokenHash string, session *SessionRecord) error
	Delete(tokenHash string) error
	Clear() error
}

// ============================================
// PROVIDER PORTS
// ============================================

type IdentityProvider interface {
	GetSession(ctx context.Context, token string) (*Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// SignUp creates the account and returns its subject id.
	SignUp(ctx context.Context, email, password string, claims Claims) (string, error)
	SignOut(ctx context.Context, token string) error
	SendPasswordReset(ctx context.Context, email, redirectURL string) error
	UpdateCredentials(ctx context.Context, token string, c Credentials) error
	Refresh(ctx context.Context, token string) (*Session, error)
	ConfirmPasswordReset(ctx context.Context, resetToken, newPassword string) error
}

type PushProvider interface {
	RegistrationToken(ctx context.Context, vapidKey string) (string, error)
	OnForegroundMessage(fn func(PushMessage)) Disposer
	Send(ctx context.Context, token string, msg PushMessage) error
}

// PermissionRequester asks the recipient's platform for notification
// permission.
type PermissionRequester interface {
	RequestPermission(ctx context.Context) (Permission, error)
}

// TransportReceipt is the provider's acknowledgement of a sent message.
type TransportReceipt struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
	To     string `json:"to"`
}

type MessageTransport interface {
	Send(ctx context.Context, to, body string) (*TransportReceipt, error)
}

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// OneTimeTokenStore keeps single-use tokens (password reset, email
// confirmation) mapped to a subject id.
type OneTimeTokenStore interface {
	Save(ctx context.Context, token, subjectID string, ttl time.Duration) error
	// Consume returns the subject id and deletes the token.
	Consume(ctx context.Context, token string) (string, error)
}
