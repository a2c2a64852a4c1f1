package fiber

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/pulsetrack"
	"github.com/lborres/pulsetrack/core"
	"github.com/lborres/pulsetrack/services"
)

const (
	defaultCookieName           = "auth_token"
	defaultStreamHeartbeat      = 25 * time.Second
	defaultSessionCheckInterval = 15 * time.Second
)

// Config customizes the session cookie and notification streams.
type Config struct {
	CookieName   string
	SecureCookie bool

	// StreamHeartbeat is the idle interval between keep-alive comments.
	StreamHeartbeat time.Duration
	// SessionCheckInterval is how often an open stream re-validates its
	// session while no events flow.
	SessionCheckInterval time.Duration
}

type Adapter struct {
	app    *fiber.App
	core   *pulsetrack.App
	config Config

	// streams is the parent context of every open notification stream.
	streams     context.Context
	stopStreams context.CancelFunc
}

var _ pulsetrack.HTTPAdapter = (*Adapter)(nil)

func New(app *fiber.App, config ...Config) *Adapter {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.CookieName == "" {
		cfg.CookieName = defaultCookieName
	}
	if cfg.StreamHeartbeat <= 0 {
		cfg.StreamHeartbeat = defaultStreamHeartbeat
	}
	if cfg.SessionCheckInterval <= 0 {
		cfg.SessionCheckInterval = defaultSessionCheckInterval
	}
	streams, stop := context.WithCancel(context.Background())
	return &Adapter{app: app, config: cfg, streams: streams, stopStreams: stop}
}

// Close ends every open notification stream. It runs before the Fiber
// app shuts down, so Shutdown does not wait on long-lived connections.
func (a *Adapter) Close() {
	a.stopStreams()
}

func (a *Adapter) RegisterRoutes(app *pulsetrack.App) error {
	a.core = app

	a.app.Hooks().OnPreShutdown(func() error {
		a.Close()
		return nil
	})
	a.app.Use(a.Gate)
	a.app.Get("/", handleHealth)

	handlers := a.handlers()
	api := a.app.Group(app.BasePath)

	for _, ep := range app.Endpoints.Endpoints() {
		handler := ep.Handler
		if handler == nil {
			handler = handlers[ep.Metadata.OperationID]
		}
		if handler == nil {
			return fmt.Errorf("no handler for %s %s (%s)", ep.Method, ep.Path, ep.Metadata.OperationID)
		}

		h := a.wrap(handler)
		methods := []string{strings.ToUpper(ep.Method)}
		if ep.Metadata.Protected {
			api.Add(methods, ep.Path, a.RequireSession, h)
		} else {
			api.Add(methods, ep.Path, h)
		}
	}

	// Protected areas. The gate has already run for these.
	for _, area := range services.ProtectedPrefixes {
		a.app.Get(area, handleArea(area))
		a.app.Get(area+"/*", handleArea(area))
	}

	return nil
}

func (a *Adapter) handlers() map[string]func(*core.RequestContext) error {
	return map[string]func(*core.RequestContext) error{
		services.OpIDSignUp:               handleSignUpFiber(a.core),
		services.OpIDSignIn:               handleSignInFiber(a.core, a.config),
		services.OpIDSignOut:              handleSignOutFiber(a.core, a.config),
		services.OpIDGetSession:           handleGetSessionFiber(a.core),
		services.OpIDRefresh:              handleRefreshFiber(a.core, a.config),
		services.OpIDResetPassword:        handleResetPasswordFiber(a.core),
		services.OpIDConfirmPasswordReset: handleConfirmPasswordResetFiber(a.core),
		services.OpIDConfirmEmail:         handleConfirmEmailFiber(a.core),
		services.OpIDUpdateProfile:        handleUpdateProfileFiber(a.core),
		services.OpIDListNotifications:    handleListNotificationsFiber(a.core),
		services.OpIDStreamNotifications:  handleStreamNotificationsFiber(a.core, a.streams, a.config),
		services.OpIDMarkNotificationRead: handleMarkNotificationReadFiber(a.core),
		services.OpIDRequestPermission:    handleRequestPermissionFiber(a.core),
	}
}

// wrap adapts a framework-agnostic handler to Fiber.
func (a *Adapter) wrap(handler func(*core.RequestContext) error) fiber.Handler {
	return func(c fiber.Ctx) error {
		session, _ := c.Locals(localsSession).(*core.Session)
		return handler(&core.RequestContext{Request: c, Session: session})
	}
}
