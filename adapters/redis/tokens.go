package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lborres/pulsetrack/core"
	"github.com/lborres/pulsetrack/pkg/cache"
)

const defaultTokenPrefix = "pulsetrack:token:"

// TokenStore keeps single-use tokens with a TTL. Consume reads and deletes
// in one GETDEL so a token cannot be redeemed twice.
type TokenStore struct {
	client *redis.Client
	prefix string
}

var _ core.OneTimeTokenStore = (*TokenStore)(nil)

func NewTokenStore(client *redis.Client, prefix ...string) *TokenStore {
	p := defaultTokenPrefix
	if len(prefix) > 0 && prefix[0] != "" {
		p = prefix[0]
	}
	return &TokenStore{client: client, prefix: p}
}

func (s *TokenStore) Save(ctx context.Context, token, subjectID string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+token, subjectID, ttl).Err()
}

func (s *TokenStore) Consume(ctx context.Context, token string) (string, error) {
	subjectID, err := s.client.GetDel(ctx, s.prefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", cache.ErrNotFound
		}
		return "", err
	}
	return subjectID, nil
}
