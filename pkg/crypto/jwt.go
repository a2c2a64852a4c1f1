package crypto

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrSigningKeyTooShort = errors.New("signing key must be at least 32 bytes")
	ErrInvalidClaims      = errors.New("invalid token claims")
)

const MinSigningKeyLength = 32

// SessionClaims is the payload carried by a signed session token.
type SessionClaims struct {
	SubjectID string
	SessionID string
	Email     string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type sessionJWTClaims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// HS256Signer signs and parses session tokens with a shared secret.
type HS256Signer struct {
	key    []byte
	issuer string
	leeway time.Duration
}

func NewHS256Signer(secret, issuer string) (*HS256Signer, error) {
	if len(secret) < MinSigningKeyLength {
		return nil, ErrSigningKeyTooShort
	}
	return &HS256Signer{
		key:    []byte(secret),
		issuer: issuer,
		leeway: 30 * time.Second,
	}, nil
}

func (s *HS256Signer) Sign(claims SessionClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionJWTClaims{
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   claims.SubjectID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	return token.SignedString(s.key)
}

// Parse validates the signature, issuer and expiry of raw.
func (s *HS256Signer) Parse(raw string) (SessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(s.leeway),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	parsed, err := jwt.ParseWithClaims(raw, &sessionJWTClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return s.key, nil
	}, opts...)
	if err != nil {
		return SessionClaims{}, err
	}

	claims, ok := parsed.Claims.(*sessionJWTClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return SessionClaims{}, ErrInvalidClaims
	}

	out := SessionClaims{
		SubjectID: claims.Subject,
		SessionID: claims.SessionID,
		Email:     claims.Email,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return out, nil
}
