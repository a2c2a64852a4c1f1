package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lborres/pulsetrack/adapters/pgx"
	"github.com/lborres/pulsetrack/adapters/redis"
	"github.com/lborres/pulsetrack/adapters/twilio"
	"github.com/lborres/pulsetrack/config"
	"github.com/lborres/pulsetrack/core"
)

// deps are the external connections one process holds. Optional
// collaborators stay nil when their settings are absent.
type deps struct {
	pool  *pgxpool.Pool
	store *pgx.Adapter

	redis  *goredis.Client
	push   *redis.PushProvider
	tokens core.OneTimeTokenStore

	twilio   *twilio.Client
	sms      core.MessageTransport
	whatsapp core.MessageTransport
}

func openPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	pc, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxDBConns > 0 {
		pc.MaxConns = cfg.MaxDBConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (*deps, error) {
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d := &deps{pool: pool, store: pgx.New(pool, logger)}

	if cfg.RedisURL != "" {
		client, err := redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.redis = client
		d.push = redis.NewPushProvider(client, redis.PushConfig{Channel: cfg.PushChannel, Logger: logger})
		d.tokens = redis.NewTokenStore(client)
	} else {
		logger.Warn("redis not configured, push delivery disabled and tokens kept in memory")
	}

	if cfg.TwilioConfigured() {
		tc, err := newTwilio(cfg)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.twilio = tc
		d.sms = tc.SMS()
		d.whatsapp = tc.WhatsApp()
	} else {
		logger.Warn("twilio not configured, sms and whatsapp delivery disabled")
	}

	return d, nil
}

func newTwilio(cfg config.Config) (*twilio.Client, error) {
	return twilio.New(twilio.Config{
		AccountSID:      cfg.TwilioAccountSID,
		AuthToken:       cfg.TwilioAuthToken,
		PhoneNumber:     cfg.TwilioPhoneNumber,
		WhatsAppNumber:  cfg.TwilioWhatsAppNumber,
		TestPhoneNumber: cfg.TestPhoneNumber,
	})
}

// pushProvider keeps a nil *PushProvider from becoming a non-nil interface.
func (d *deps) pushProvider() core.PushProvider {
	if d.push == nil {
		return nil
	}
	return d.push
}

func (d *deps) Close() {
	if d.push != nil {
		_ = d.push.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.store != nil {
		d.store.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}
