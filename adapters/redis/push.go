package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lborres/pulsetrack/core"
)

const (
	DefaultForegroundChannel = "push:foreground"
	DefaultTokenTTL          = 30 * 24 * time.Hour

	registrationKeyPrefix = "push:registration:"
)

type PushConfig struct {
	// Channel is the Pub/Sub channel foreground messages travel on.
	Channel  string
	TokenTTL time.Duration
	Logger   *slog.Logger
}

// PushProvider issues registration tokens and delivers messages to
// foreground listeners over Redis Pub/Sub. Send only reaches tokens that
// are still registered.
type PushProvider struct {
	client *redis.Client
	config PushConfig
	logger *slog.Logger

	mu        sync.Mutex
	listeners map[uint64]func(core.PushMessage)
	next      uint64
	pubsub    *redis.PubSub
}

var _ core.PushProvider = (*PushProvider)(nil)

func NewPushProvider(client *redis.Client, config ...PushConfig) *PushProvider {
	cfg := PushConfig{}
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultForegroundChannel
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PushProvider{
		client:    client,
		config:    cfg,
		logger:    logger.With("component", "push_provider"),
		listeners: make(map[uint64]func(core.PushMessage)),
	}
}

// RegistrationToken registers a new token under vapidKey.
func (p *PushProvider) RegistrationToken(ctx context.Context, vapidKey string) (string, error) {
	token := uuid.NewString()
	if err := p.client.Set(ctx, registrationKey(token), vapidKey, p.config.TokenTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to register push token: %w", err)
	}
	return token, nil
}

func (p *PushProvider) Send(ctx context.Context, token string, msg core.PushMessage) error {
	n, err := p.client.Exists(ctx, registrationKey(token)).Result()
	if err != nil {
		return fmt.Errorf("failed to look up push token: %w", err)
	}
	if n == 0 {
		return core.ErrNoRecipient
	}

	msg.Token = token
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.config.Channel, raw).Err()
}

// OnForegroundMessage subscribes fn to every message published on the
// channel. The Pub/Sub subscription is opened with the first listener and
// closed with the last.
func (p *PushProvider) OnForegroundMessage(fn func(core.PushMessage)) core.Disposer {
	p.mu.Lock()
	id := p.next
	p.next++
	p.listeners[id] = fn
	if p.pubsub == nil {
		p.pubsub = p.client.Subscribe(context.Background(), p.config.Channel)
		go p.receive(p.pubsub.Channel())
	}
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			var closing *redis.PubSub
			if len(p.listeners) == 0 {
				closing, p.pubsub = p.pubsub, nil
			}
			p.mu.Unlock()

			if closing != nil {
				if err := closing.Close(); err != nil {
					p.logger.Warn("failed to close subscription", "error", err)
				}
			}
		})
	}
}

func (p *PushProvider) receive(ch <-chan *redis.Message) {
	for m := range ch {
		msg, err := decodePushMessage(m.Payload)
		if err != nil {
			p.logger.Warn("dropping malformed push message", "channel", m.Channel, "error", err)
			continue
		}
		p.deliver(msg)
	}
}

func (p *PushProvider) deliver(msg core.PushMessage) {
	p.mu.Lock()
	fns := make([]func(core.PushMessage), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

// Close drops the Pub/Sub subscription. Registered listeners stop receiving.
func (p *PushProvider) Close() error {
	p.mu.Lock()
	closing := p.pubsub
	p.pubsub = nil
	p.listeners = make(map[uint64]func(core.PushMessage))
	p.mu.Unlock()

	if closing == nil {
		return nil
	}
	return closing.Close()
}

func registrationKey(token string) string {
	return registrationKeyPrefix + token
}

func decodePushMessage(payload string) (core.PushMessage, error) {
	var msg core.PushMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return msg, err
	}
	if msg.Title == "" && msg.Body == "" {
		return msg, fmt.Errorf("push message has no title or body")
	}
	return msg, nil
}
