package core

import "time"

// Session is the live credential of one principal.
type Session struct {
	SubjectID string    `json:"subjectId"`
	Role      Role      `json:"role"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Token     string    `json:"-"`
}

// Present reports whether s names a subject. A nil session or one without
// a subject id counts as no session.
func (s *Session) Present() bool {
	return s != nil && s.SubjectID != ""
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionRecord is the persisted half of a session. Only the token hash is
// stored.
type SessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TokenHash string    `json:"-"` // Never expose in JSON (security!)
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type SessionConfig struct {
	MaxAge time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxAge: 24 * time.Hour,
	}
}

// SessionData combines the session with the caller's profile
// The model returned to clients
type SessionData struct {
	Session *Session `json:"session"`
	Profile *Profile `json:"profile,omitempty"`
}
