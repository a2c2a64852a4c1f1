package cache

import (
	"context"
	"time"
)

// TokenStore keeps single-use tokens in memory. Each token can be consumed
// once and only before its ttl runs out.
type TokenStore struct {
	entries *Memory[string]
}

func NewTokenStore(c Config) *TokenStore {
	return &TokenStore{entries: NewMemory[string](c)}
}

func (s *TokenStore) Save(_ context.Context, token, subjectID string, ttl time.Duration) error {
	return s.entries.SetWithTTL(token, subjectID, ttl)
}

func (s *TokenStore) Consume(_ context.Context, token string) (string, error) {
	return s.entries.Take(token)
}
