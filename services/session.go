package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lborres/pulsetrack/core"
	"github.com/lborres/pulsetrack/pkg/crypto"
)

// TokenSigner issues and verifies the signed tokens handed to clients.
type TokenSigner interface {
	Sign(claims crypto.SessionClaims) (string, error)
	Parse(raw string) (crypto.SessionClaims, error)
}

// SessionManager issues signed session tokens and keeps a revocable record
// of each one, keyed by the token's hash.
type SessionManager struct {
	config  core.SessionConfig
	storage core.SessionStorage
	cache   core.SessionCache // optional, can be nil if caching is disabled
	signer  TokenSigner
	now     func() time.Time
}

type CreateSessionResult struct {
	Session *core.Session
	Record  *core.SessionRecord
}

func NewSessionManager(config core.SessionConfig, storage core.SessionStorage, cache core.SessionCache, signer TokenSigner) *SessionManager {
	if config.MaxAge <= 0 {
		config = core.DefaultSessionConfig()
	}
	return &SessionManager{
		config:  config,
		storage: storage,
		cache:   cache,
		signer:  signer,
		now:     time.Now,
	}
}

func (sm *SessionManager) Create(ctx context.Context, user *core.User) (*CreateSessionResult, error) {
	sessionID := uuid.NewString()
	now := sm.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(sm.config.MaxAge)

	token, err := sm.signer.Sign(crypto.SessionClaims{
		SubjectID: user.ID,
		SessionID: sessionID,
		Email:     user.Email,
		Role:      string(user.Role),
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, err
	}

	info := core.ClientInfoFrom(ctx)
	tokenHash := crypto.HashToken(token)
	record := &core.SessionRecord{
		ID:        sessionID,
		UserID:    user.ID,
		TokenHash: tokenHash,
		IPAddress: info.IPAddress,
		UserAgent: info.UserAgent,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: expiresAt,
	}

	// Persist session
	if err := sm.storage.CreateSession(ctx, record); err != nil {
		return nil, err
	}

	// We don't fail the request if caching fails
	if sm.cache != nil {
		_ = sm.cache.Set(tokenHash, record)
	}

	return &CreateSessionResult{
		Session: &core.Session{
			SubjectID: user.ID,
			Role:      user.Role,
			Email:     user.Email,
			IssuedAt:  now,
			ExpiresAt: expiresAt,
			Token:     token,
		},
		Record: record,
	}, nil
}

// Verify checks the token signature and expiry, then that its record has
// not been revoked.
func (sm *SessionManager) Verify(ctx context.Context, token string) (*core.Session, error) {
	if token == "" {
		return nil, core.ErrInvalidToken
	}

	claims, err := sm.signer.Parse(token)
	if err != nil {
		return nil, core.ErrInvalidToken
	}

	record, err := sm.lookup(ctx, crypto.HashToken(token))
	if err != nil {
		return nil, err
	}
	if record.ID != claims.SessionID || record.UserID != claims.SubjectID {
		return nil, core.ErrInvalidToken
	}

	return &core.Session{
		SubjectID: claims.SubjectID,
		Role:      core.Role(claims.Role),
		Email:     claims.Email,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
		Token:     token,
	}, nil
}

func (sm *SessionManager) lookup(ctx context.Context, tokenHash string) (*core.SessionRecord, error) {
	// Try cache first if caching is enabled
	if sm.cache != nil {
		if record, err := sm.cache.Get(tokenHash); err == nil && record != nil {
			if sm.now().After(record.ExpiresAt) {
				_ = sm.cache.Delete(tokenHash)
				return nil, core.ErrSessionExpired
			}
			return record, nil
		}
	}

	record, err := sm.storage.GetSessionByHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, core.ErrSessionNotFound
	}

	if sm.now().After(record.ExpiresAt) {
		return nil, core.ErrSessionExpired
	}

	if sm.cache != nil {
		_ = sm.cache.Set(tokenHash, record)
	}

	return record, nil
}

func (sm *SessionManager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return core.ErrInvalidToken
	}

	tokenHash := crypto.HashToken(token)

	if err := sm.storage.DeleteSessionByHash(ctx, tokenHash); err != nil {
		return err
	}

	if sm.cache != nil {
		_ = sm.cache.Delete(tokenHash)
	}

	return nil
}

// DestroyAllUserSessions revokes every session of userID, used after a
// credential change.
func (sm *SessionManager) DestroyAllUserSessions(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, core.ErrUserNotFound
	}

	count, err := sm.storage.DeleteUserSessions(ctx, userID)
	if err != nil {
		return 0, err
	}

	// Clearing everything is cheaper than listing the user's hashes first
	if sm.cache != nil && count > 0 {
		_ = sm.cache.Clear()
	}

	return count, nil
}

// Sweep deletes expired session records.
func (sm *SessionManager) Sweep(ctx context.Context) (int, error) {
	return sm.storage.DeleteExpiredSessions(ctx)
}
