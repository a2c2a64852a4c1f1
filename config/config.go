// Package config loads process settings from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lborres/pulsetrack/pkg/crypto"
)

var (
	ErrMissingDatabaseURL = errors.New("missing DATABASE_URL")
	ErrMissingSecret      = errors.New("missing PULSETRACK_SECRET")
	ErrSecretTooShort     = fmt.Errorf("PULSETRACK_SECRET must be at least %d characters", crypto.MinSigningKeyLength)
)

type Config struct {
	HTTPAddr     string
	BasePath     string
	SiteURL      string
	CookieName   string
	SecureCookie bool

	Secret                   string
	Issuer                   string
	SessionMaxAge            time.Duration
	RequireEmailConfirmation bool

	DisableCache bool
	CacheTTL     time.Duration
	CacheMaxSize int

	DatabaseURL string
	MaxDBConns  int32
	RedisURL    string

	KafkaBrokers         []string
	KafkaConsumerGroup   string
	KafkaTopic           string
	ConsumerPollInterval time.Duration

	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioPhoneNumber    string
	TwilioWhatsAppNumber string
	TestPhoneNumber      string

	VAPIDKey    string
	PushChannel string

	LogLevel  slog.Level
	LogFormat string
}

type configFile struct {
	Server struct {
		Addr         string `yaml:"addr"`
		BasePath     string `yaml:"base_path"`
		SiteURL      string `yaml:"site_url"`
		CookieName   string `yaml:"cookie_name"`
		SecureCookie *bool  `yaml:"secure_cookie"`
	} `yaml:"server"`
	Auth struct {
		Secret                   string        `yaml:"secret"`
		Issuer                   string        `yaml:"issuer"`
		SessionMaxAge            time.Duration `yaml:"session_max_age"`
		RequireEmailConfirmation *bool         `yaml:"require_email_confirmation"`
	} `yaml:"auth"`
	Cache struct {
		Disabled *bool         `yaml:"disabled"`
		TTL      time.Duration `yaml:"ttl"`
		MaxSize  int           `yaml:"max_size"`
	} `yaml:"cache"`
	Dependencies struct {
		PostgresURL        string   `yaml:"postgres_url"`
		MaxDBConns         int32    `yaml:"max_db_conns"`
		RedisURL           string   `yaml:"redis_url"`
		KafkaBrokers       []string `yaml:"kafka_brokers"`
		KafkaConsumerGroup string   `yaml:"kafka_consumer_group"`
		KafkaTopic         string   `yaml:"kafka_topic"`
	} `yaml:"dependencies"`
	Twilio struct {
		AccountSID      string `yaml:"account_sid"`
		AuthToken       string `yaml:"auth_token"`
		PhoneNumber     string `yaml:"phone_number"`
		WhatsAppNumber  string `yaml:"whatsapp_number"`
		TestPhoneNumber string `yaml:"test_phone_number"`
	} `yaml:"twilio"`
	Push struct {
		VAPIDKey string `yaml:"vapid_key"`
		Channel  string `yaml:"channel"`
	} `yaml:"push"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func Default() Config {
	return Config{
		HTTPAddr:             ":3000",
		BasePath:             "/api",
		SiteURL:              "http://localhost:3000",
		CookieName:           "auth_token",
		Issuer:               "pulsetrack",
		SessionMaxAge:        24 * time.Hour,
		CacheTTL:             5 * time.Minute,
		CacheMaxSize:         500,
		MaxDBConns:           10,
		KafkaConsumerGroup:   "pulsetrack-notifier",
		KafkaTopic:           "notifications.requested",
		ConsumerPollInterval: 2 * time.Second,
		PushChannel:          "push:foreground",
		LogLevel:             slog.LevelInfo,
		LogFormat:            "json",
	}
}

// Load reads path (skipped when empty or missing) over the defaults, then
// applies environment overrides. Commands check the settings they need
// with RequireDatabase and RequireSecret.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			var f configFile
			if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
				return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
			}
			if applyErr := cfg.applyFile(f); applyErr != nil {
				return Config{}, applyErr
			}
		case !errors.Is(err, fs.ErrNotExist):
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}

// RequireSecret checks the token signing secret.
func (c Config) RequireSecret() error {
	if c.Secret == "" {
		return ErrMissingSecret
	}
	if len(c.Secret) < crypto.MinSigningKeyLength {
		return ErrSecretTooShort
	}
	return nil
}

// TwilioConfigured reports whether SMS and WhatsApp can be wired.
func (c Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != ""
}

func (c *Config) applyFile(f configFile) error {
	setString(&c.HTTPAddr, f.Server.Addr)
	setString(&c.BasePath, f.Server.BasePath)
	setString(&c.SiteURL, f.Server.SiteURL)
	setString(&c.CookieName, f.Server.CookieName)
	setBool(&c.SecureCookie, f.Server.SecureCookie)

	setString(&c.Secret, f.Auth.Secret)
	setString(&c.Issuer, f.Auth.Issuer)
	if f.Auth.SessionMaxAge > 0 {
		c.SessionMaxAge = f.Auth.SessionMaxAge
	}
	setBool(&c.RequireEmailConfirmation, f.Auth.RequireEmailConfirmation)

	setBool(&c.DisableCache, f.Cache.Disabled)
	if f.Cache.TTL > 0 {
		c.CacheTTL = f.Cache.TTL
	}
	if f.Cache.MaxSize > 0 {
		c.CacheMaxSize = f.Cache.MaxSize
	}

	setString(&c.DatabaseURL, f.Dependencies.PostgresURL)
	if f.Dependencies.MaxDBConns > 0 {
		c.MaxDBConns = f.Dependencies.MaxDBConns
	}
	setString(&c.RedisURL, f.Dependencies.RedisURL)
	if len(f.Dependencies.KafkaBrokers) > 0 {
		c.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
	}
	setString(&c.KafkaConsumerGroup, f.Dependencies.KafkaConsumerGroup)
	setString(&c.KafkaTopic, f.Dependencies.KafkaTopic)

	setString(&c.TwilioAccountSID, f.Twilio.AccountSID)
	setString(&c.TwilioAuthToken, f.Twilio.AuthToken)
	setString(&c.TwilioPhoneNumber, f.Twilio.PhoneNumber)
	setString(&c.TwilioWhatsAppNumber, f.Twilio.WhatsAppNumber)
	setString(&c.TestPhoneNumber, f.Twilio.TestPhoneNumber)

	setString(&c.VAPIDKey, f.Push.VAPIDKey)
	setString(&c.PushChannel, f.Push.Channel)

	if f.Log.Level != "" {
		if err := c.LogLevel.UnmarshalText([]byte(f.Log.Level)); err != nil {
			return fmt.Errorf("parse log level: %w", err)
		}
	}
	setString(&c.LogFormat, f.Log.Format)
	return nil
}

func (c *Config) applyEnv() error {
	c.HTTPAddr = envOrDefault("PULSETRACK_HTTP_ADDR", c.HTTPAddr)
	c.BasePath = envOrDefault("PULSETRACK_BASE_PATH", c.BasePath)
	c.SiteURL = envOrDefault("PULSETRACK_SITE_URL", envOrDefault("SITE_URL", c.SiteURL))
	c.CookieName = envOrDefault("PULSETRACK_COOKIE_NAME", c.CookieName)
	c.SecureCookie = envBool("PULSETRACK_SECURE_COOKIE", c.SecureCookie)

	c.Secret = envOrDefault("PULSETRACK_SECRET", c.Secret)
	c.Issuer = envOrDefault("PULSETRACK_ISSUER", c.Issuer)
	c.SessionMaxAge = envDuration("PULSETRACK_SESSION_MAX_AGE", c.SessionMaxAge)
	c.RequireEmailConfirmation = envBool("PULSETRACK_REQUIRE_EMAIL_CONFIRMATION", c.RequireEmailConfirmation)

	c.DisableCache = envBool("PULSETRACK_DISABLE_CACHE", c.DisableCache)
	c.CacheTTL = envDuration("PULSETRACK_CACHE_TTL", c.CacheTTL)
	c.CacheMaxSize = envInt("PULSETRACK_CACHE_MAX_SIZE", c.CacheMaxSize)

	c.DatabaseURL = envOrDefault("PULSETRACK_DATABASE_URL", envOrDefault("DATABASE_URL", c.DatabaseURL))
	c.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(c.MaxDBConns)))
	c.RedisURL = envOrDefault("REDIS_URL", c.RedisURL)
	c.KafkaBrokers = envCSV("KAFKA_BROKERS", c.KafkaBrokers)
	c.KafkaConsumerGroup = envOrDefault("KAFKA_CONSUMER_GROUP", c.KafkaConsumerGroup)
	c.KafkaTopic = envOrDefault("KAFKA_TOPIC_NOTIFICATIONS_REQUESTED", c.KafkaTopic)
	c.ConsumerPollInterval = envDuration("CONSUMER_POLL_INTERVAL", c.ConsumerPollInterval)

	c.TwilioAccountSID = envOrDefault("TWILIO_ACCOUNT_SID", c.TwilioAccountSID)
	c.TwilioAuthToken = envOrDefault("TWILIO_AUTH_TOKEN", c.TwilioAuthToken)
	c.TwilioPhoneNumber = envOrDefault("TWILIO_PHONE_NUMBER", c.TwilioPhoneNumber)
	c.TwilioWhatsAppNumber = envOrDefault("TWILIO_WHATSAPP_NUMBER", c.TwilioWhatsAppNumber)
	c.TestPhoneNumber = envOrDefault("TEST_PHONE_NUMBER", c.TestPhoneNumber)

	c.VAPIDKey = envOrDefault("PULSETRACK_VAPID_KEY", c.VAPIDKey)
	c.PushChannel = envOrDefault("PULSETRACK_PUSH_CHANNEL", c.PushChannel)

	if raw := os.Getenv("PULSETRACK_LOG_LEVEL"); raw != "" {
		if err := c.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			return fmt.Errorf("parse PULSETRACK_LOG_LEVEL: %w", err)
		}
	}
	c.LogFormat = envOrDefault("PULSETRACK_LOG_FORMAT", c.LogFormat)
	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setBool(dst *bool, value *bool) {
	if value != nil {
		*dst = *value
	}
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return trimNonEmpty(strings.Split(raw, ","))
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
