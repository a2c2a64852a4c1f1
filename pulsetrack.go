package pulsetrack

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lborres/pulsetrack/core"
	"github.com/lborres/pulsetrack/pkg/cache"
	"github.com/lborres/pulsetrack/pkg/crypto"
	"github.com/lborres/pulsetrack/services"
)

// interfaces
type (
	Storage           = core.Storage
	AuthStorage       = core.AuthStorage
	ProfileStore      = core.ProfileStore
	NotificationStore = core.NotificationStore
	SessionCache      = core.SessionCache

	IdentityProvider  = core.IdentityProvider
	PushProvider      = core.PushProvider
	MessageTransport  = core.MessageTransport
	Mailer            = core.Mailer
	OneTimeTokenStore = core.OneTimeTokenStore

	PasswordHandler = crypto.PasswordHandler
)

// structs
type (
	SessionConfig = core.SessionConfig
	CacheConfig   = cache.Config
)

type (
	User              = core.User
	Account           = core.Account
	Role              = core.Role
	Session           = core.Session
	SessionRecord     = core.SessionRecord
	SessionData       = core.SessionData
	Profile           = core.Profile
	NotificationEvent = core.NotificationEvent
	Navigation        = core.Navigation
	AccessDecision    = core.AccessDecision
	CacheStats        = cache.Stats
)

const (
	RolePatient   = core.RolePatient
	RoleDoctor    = core.RoleDoctor
	RoleCaregiver = core.RoleCaregiver
	RoleAdmin     = core.RoleAdmin
)

const (
	Version = "1.0.0"

	defaultBasePath  = "/api"
	defaultIssuer    = "pulsetrack"
	defaultSecretLen = crypto.MinSigningKeyLength
)

// Constructors & helpers (convenience re-exports)
var (
	NewArgon2            = crypto.NewArgon2
	DefaultSessionConfig = core.DefaultSessionConfig
	Decide               = services.Decide
)

var (
	ErrUserExists         = core.ErrUserExists
	ErrUserNotFound       = core.ErrUserNotFound
	ErrInvalidCredentials = core.ErrInvalidCredentials
	ErrEmailNotConfirmed  = core.ErrEmailNotConfirmed
	ErrNotLoggedIn        = core.ErrNotLoggedIn
)

var (
	ErrMissingAuthHeader = core.ErrMissingAuthHeader
	ErrInvalidToken      = core.ErrInvalidToken
	ErrSessionNotFound   = core.ErrSessionNotFound
	ErrSessionExpired    = core.ErrSessionExpired
	ErrInvalidResetToken = core.ErrInvalidResetToken
)

var (
	ErrInvalidAuthHeader = core.ErrInvalidAuthHeader
	ErrEmailRequired     = core.ErrEmailRequired
	ErrPasswordRequired  = core.ErrPasswordRequired
	ErrPasswordTooShort  = core.ErrPasswordTooShort
	ErrPasswordTooLong   = core.ErrPasswordTooLong
	ErrInvalidEmail      = core.ErrInvalidEmail
	ErrInvalidRole       = core.ErrInvalidRole
)

var (
	ErrDBAdapterRequired          = core.ErrDBAdapterRequired
	ErrHTTPAdapterRequired        = core.ErrHTTPAdapterRequired
	ErrSecretRequired             = core.ErrSecretRequired
	ErrSecretTooShort             = core.ErrSecretTooShort
	ErrIdentityNotConfigured      = core.ErrIdentityNotConfigured
	ErrProfilesNotConfigured      = core.ErrProfilesNotConfigured
	ErrNotificationsNotConfigured = core.ErrNotificationsNotConfigured
)

var (
	ErrNotImplemented = core.ErrNotImplemented
)

// HTTPAdapter binds the App's endpoints to a web framework.
type HTTPAdapter interface {
	RegisterRoutes(app *App) error
}

type Config struct {
	// Secret signs session tokens. At least 32 characters.
	Secret string
	Issuer string

	Database core.Storage
	HTTP     HTTPAdapter

	SessionCache  core.SessionCache
	DisableCache  bool
	CacheConfig   *CacheConfig
	SessionConfig *SessionConfig

	PasswordHasher PasswordHandler
	Tokens         core.OneTimeTokenStore
	Mailer         core.Mailer

	Push     core.PushProvider
	SMS      core.MessageTransport
	WhatsApp core.MessageTransport
	VAPIDKey string

	// BasePath prefixes every API route. Defaults to /api.
	BasePath string
	// SiteURL is the public origin used in mailed links.
	SiteURL string

	RequireEmailConfirmation bool

	Logger *slog.Logger
}

// App holds the wired services of one process. Per-request state lives in
// the managers it creates.
type App struct {
	Identity      *services.IdentityService
	Sessions      *services.SessionManager
	Profiles      core.ProfileStore
	Notifications core.NotificationStore
	Hub           *services.NotificationHub
	Dispatcher    *services.Dispatcher
	Push          core.PushProvider
	Endpoints     *services.EndpointRegistry

	BasePath string
	SiteURL  string
	VAPIDKey string
	Logger   *slog.Logger
}

func New(config Config) (*App, error) {
	if config.Secret == "" {
		return nil, ErrSecretRequired
	}
	if len(config.Secret) < defaultSecretLen {
		return nil, fmt.Errorf("%w - minimum of %d characters", ErrSecretTooShort, defaultSecretLen)
	}
	if config.Database == nil {
		return nil, ErrDBAdapterRequired
	}
	if config.HTTP == nil {
		return nil, ErrHTTPAdapterRequired
	}

	// Set Defaults

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cacheConfig := cache.Config{TTL: 5 * time.Minute, MaxSize: 500}
	if config.CacheConfig != nil {
		cacheConfig = *config.CacheConfig
	}

	sessionCache := config.SessionCache
	if sessionCache == nil && !config.DisableCache {
		sessionCache = cache.NewMemory[*core.SessionRecord](cacheConfig)
	}

	sessionConfig := core.DefaultSessionConfig()
	if config.SessionConfig != nil {
		sessionConfig = *config.SessionConfig
	}

	passwordHasher := config.PasswordHasher
	if passwordHasher == nil {
		passwordHasher = crypto.NewArgon2()
	}

	tokens := config.Tokens
	if tokens == nil {
		tokens = cache.NewTokenStore(cacheConfig)
	}

	mailer := config.Mailer
	if mailer == nil {
		mailer = &services.LogMailer{Logger: logger}
	}

	issuer := config.Issuer
	if issuer == "" {
		issuer = defaultIssuer
	}

	basePath := config.BasePath
	if basePath == "" {
		basePath = defaultBasePath
	}
	siteURL := strings.TrimRight(config.SiteURL, "/")

	signer, err := crypto.NewHS256Signer(config.Secret, issuer)
	if err != nil {
		return nil, err
	}

	sessionManager := services.NewSessionManager(sessionConfig, config.Database, sessionCache, signer)
	identity := services.NewIdentityService(
		config.Database,
		sessionManager,
		passwordHasher,
		tokens,
		mailer,
		services.IdentityOptions{
			RequireEmailConfirmation: config.RequireEmailConfirmation,
			ConfirmURL:               siteURL + basePath + "/auth/confirm",
		},
		logger,
	)

	app := &App{
		Identity:      identity,
		Sessions:      sessionManager,
		Profiles:      config.Database,
		Notifications: config.Database,
		Hub:           services.NewNotificationHub(config.Database),
		Dispatcher: services.NewDispatcher(services.DispatcherConfig{
			Store:    config.Database,
			Profiles: config.Database,
			Push:     config.Push,
			SMS:      config.SMS,
			WhatsApp: config.WhatsApp,
			Logger:   logger,
		}),
		Push:      config.Push,
		Endpoints: services.NewEndpointRegistry(),
		BasePath:  basePath,
		SiteURL:   siteURL,
		VAPIDKey:  config.VAPIDKey,
		Logger:    logger,
	}

	if err := config.HTTP.RegisterRoutes(app); err != nil {
		return nil, err
	}

	return app, nil
}

// NewAuthManager returns an AuthManager over a fresh session store seeded
// with session, which may be nil.
func (a *App) NewAuthManager(session *core.Session) *services.AuthManager {
	return services.NewAuthManager(a.Identity, a.Profiles, services.NewSessionStore(session), a.SiteURL, a.Logger)
}

// NewNotificationManager returns a manager following store. Push, the
// VAPID key and the logger come from the app. The caller starts it and
// must Close it.
func (a *App) NewNotificationManager(store *services.SessionStore, opts services.NotificationOptions) *services.NotificationManager {
	opts.Push = a.Push
	opts.VAPIDKey = a.VAPIDKey
	if opts.Logger == nil {
		opts.Logger = a.Logger
	}
	return services.NewNotificationManager(a.Notifications, a.Profiles, store, opts)
}
