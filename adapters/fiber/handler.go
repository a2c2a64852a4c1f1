package fiber

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/pulsetrack"
	"github.com/lborres/pulsetrack/core"
	"github.com/lborres/pulsetrack/services"
)

type permissionInput struct {
	Permission string `json:"permission"`
}

type permissionResult struct {
	Granted bool   `json:"granted"`
	Token   string `json:"token,omitempty"`
}

func handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": pulsetrack.Version,
	})
}

func handleArea(area string) fiber.Handler {
	return func(c fiber.Ctx) error {
		session, _ := c.Locals(localsSession).(*core.Session)
		return c.JSON(fiber.Map{
			"area":    area,
			"session": session,
		})
	}
}

// handleSignUpFiber returns a handler for the sign-up endpoint
func handleSignUpFiber(app *pulsetrack.App) func(*core.RequestContext) error {
	return func(ctx *core.RequestContext) error {
		fctx := ctx.Request.(fiber.Ctx)

		var form core.SignUpForm
		if err := fctx.Bind().Body(&form); err != nil {
			return invalidBody(fctx)
		}

		fields, err := services.ValidateSignUpForm(form)
		if err != nil {
			return handleAuthError(fctx, err)
		}

		nav, err := app.NewAuthManager(nil).SignUp(requestContext(fctx), form.Email, form.Password, fields)
		if err != nil {
			return handleAuthError(fctx, err)
		}

		return fctx.Status(http.StatusCreated).JSON(core.AuthResult{Navigation: nav})
	}
}

// handleSignInFiber returns a handler for the sign-in endpoint
func handleSignInFiber(app *pulsetrack.App, cfg Config) func(*core.RequestContext) error {
	return func(ctx *core.RequestContext) error {
		fctx := ctx.Request.(fiber.Ctx)

		var input core.SignInInput
		if err := fctx.Bind().Body(&input); err != nil {
			return invalidBody(fctx)
		}

		manager := app.NewAuthManager(nil)
		nav, err := manager.SignIn(requestContext(fctx), input.Email, input.Password)
		if err != nil {
			return handleAuthError(fctx, err)
		}

		session := manager.Session()
		setSessionCookie(fctx, cfg, session)

		return fctx.Status(http.StatusOK).JSON(core.AuthResult{
			Session:    session,
			Token:      session.Token,
			Navigation: nav,
		})
	}
}

// handleSignOutFiber returns a handler for the sign-out endpoint
func handleSignOutFiber(app *pulsetrack.App, cfg Config) func(*core.RequestContext) error {
	return func(ctx *core.RequestContext) error {
		fctx := ctx.Request.(fiber.Ctx)

		nav, err := app.NewAuthManager(ctx.Session).SignOut(requestContext(fctx))
		if err != nil {
			return handleAuthError(fctx, err)
		}

		fctx.ClearCookie(cfg.CookieName)
		return fctx.Status(http.StatusOK).JSON(core.AuthResult{Navigation: nav})
	}
}

// handleGetSessionFiber returns the session with the caller's profile. A
// missing profile is not an error.
func handleGetSessionFiber(app *pulsetrack.App) func(*core.RequestContext) error {
	return func(ctx *core.RequestContext) error {
		fctx := ctx.Request.(fiber.Ctx)

		data := core.SessionData{Session: ctx.Session}
		if app.Profiles != nil {
			profile, err := app.Profiles.GetProfile(requestContext(fctx), ctx.Session.SubjectID)
			switch {
			case err == nil:
				data.Profile = profile
			case !errors.Is(err, core.ErrProfileNotFound):
				return handleAuthError(fctx, err)
			}
		}

		return fctx.Status(http.StatusOK).JSON(data)
	}
}

// handleRefreshFiber returns a handler for the refresh endpoint
func handleRefreshFiber(app *pulsetrack.App, cfg Config) func(*core.RequestContext) error {
	return func(ctx *core.RequestContext) error {
		fctx := ctx.Request.(fiber.Ctx)

		session, err := app.NewAuthManager(ctx.Session).Refresh(requestContext(fctx))
		if err != nil {
			return handleAuthError(fctx, err)
		}

		setSessionCookie(fctx, cfg, session)
		return fctx.Status(http.StatusOK).JSON(core.AuthResult{Session: session, Token: session.Token})
	}
}

func handleResetPasswordFiber(app *pulsetrack.App) func(*core.RequestContext) error {
	return func(ctx *core.RequestContext) error {
		fctx := ctx.Request.(fiber.Ctx)

		var input core.ResetPasswordInput
		if err := fctx.Bind().Body(&input); err != nil {
			return invalidBody(fctx)
		}

		if err := app.NewAuthManager(nil).ResetPassword(requestContext(fctx), input.Email); err != nil {
			return handleAuthError(fctx, err)
		}

		return fctx.Status(http.StatusOK).JSON(fiber.Map{
			"message": "if the address is registered, a reset link is on its way",
		})
	}
}

func handleConfirmPasswordResetFiber(app *pulsetrack.App) func(*core.RequestContext) error {
	return func(ctx *core.RequestContext) error {
		fctx := ctx.Request.(fiber.Ctx)

		var input core.ConfirmResetInput
		if err := fctx.Bind().Body(&input); err != nil {
			return invalidBody(fctx)
		}

		if err := app.Identity.ConfirmPasswordReset(requestContext(fctx), input.Token, input.Password); err != nil {
			return handleAuthError(fctx, err)
		}

		return fctx.Status(http.StatusOK).JSON(core.AuthResult{
			Navigation: &core.Navigation{To: services.LoginPath, Message: "Password updated, please sign in"},
		})
	}
}

// handleConfirmEmailFiber follows the link mailed at sign-up and sends the
// browser to the login page.
func handleConfirmEmailFiber(app *pulsetrack.App) func(*core.RequestContext) error {
	return func(ctx *core.RequestContext) error {
		fctx := ctx.Request.(fiber.Ctx)

		if err := app.Identity.ConfirmEmail(requestContext(fctx), fctx.Query("token")); err != nil {
			return handleAuthError(fctx, err)
		}

		return fctx.Redirect().Status(fiber.StatusFound).To(app.SiteURL + services.LoginPath)
	}
}

func handleUpdateProfileFiber(app *pulsetrack.App) func(*core.RequestContext) error {
	return func(ctx *core.RequestContext) error {
		fctx := ctx.Request.(fiber.Ctx)

		var update core.ProfileUpdate
		if err := fctx.Bind().Body(&update); err != nil {
			return invalidBody(fctx)
		}

		if err := app.NewAuthManager(ctx.Session).UpdateProfile(requestContext(fctx), update); err != nil {
			return handleAuthError(fctx, err)
		}

		return fctx.Status(http.StatusOK).JSON(fiber.Map{
			"message": "profile updated",
		})
	}
}

func handleListNotificationsFiber(app *pulsetrack.App) func(*core.RequestContext) error {
	return func(ctx *core.RequestContext) error {
		fctx := ctx.Request.(fiber.Ctx)

		if app.Notifications == nil {
			return handleAuthError(fctx, core.ErrNotificationsNotConfigured)
		}

		events, err := app.Notifications.ListByUser(requestContext(fctx), ctx.Session.SubjectID)
		if err != nil {
			return handleAuthError(fctx, err)
		}
		if events == nil {
			events = []core.NotificationEvent{}
		}

		return fctx.Status(http.StatusOK).JSON(events)
	}
}

func handleMarkNotificationReadFiber(app *pulsetrack.App) func(*core.RequestContext) error {
	return func(ctx *core.RequestContext) error {
		fctx := ctx.Request.(fiber.Ctx)

		id := fctx.Params("id")
		if id == "" {
			return handleAuthError(fctx, core.ErrInvalidRequest)
		}

		if err := app.Hub.MarkAsRead(requestContext(fctx), ctx.Session.SubjectID, id); err != nil {
			return handleAuthError(fctx, err)
		}

		return fctx.SendStatus(http.StatusNoContent)
	}
}

// handleRequestPermissionFiber relays the permission answer the client's
// platform gave and, when granted, returns the registration token.
func handleRequestPermissionFiber(app *pulsetrack.App) func(*core.RequestContext) error {
	return func(ctx *core.RequestContext) error {
		fctx := ctx.Request.(fiber.Ctx)

		var input permissionInput
		if err := fctx.Bind().Body(&input); err != nil {
			return invalidBody(fctx)
		}

		store := services.NewSessionStore(ctx.Session)
		manager := app.NewNotificationManager(store, services.NotificationOptions{
			Permission: services.StaticPermission(input.Permission),
		})
		defer manager.Close()

		token, granted := manager.RequestPermission(requestContext(fctx))
		return fctx.Status(http.StatusOK).JSON(permissionResult{Granted: granted, Token: token})
	}
}

// requestContext carries the caller's address into identity operations.
func requestContext(c fiber.Ctx) context.Context {
	return core.WithClientInfo(c.Context(), core.ClientInfo{
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	})
}

func setSessionCookie(c fiber.Ctx, cfg Config, session *core.Session) {
	c.Cookie(&fiber.Cookie{
		Name:     cfg.CookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
		Secure:   cfg.SecureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// extractToken extracts the authentication token from the request.
// Checks Authorization header (Bearer token) first, then falls back to cookie.
func extractToken(c fiber.Ctx, cookieName string) string {
	// Try Bearer token first
	authHeader := c.Get(fiber.HeaderAuthorization)
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		return authHeader[7:]
	}

	// Fall back to cookie
	return c.Cookies(cookieName)
}

func invalidBody(c fiber.Ctx) error {
	return c.Status(http.StatusBadRequest).JSON(core.ErrorResponse{
		Error: "invalid request body",
	})
}

// handleAuthError maps service errors to appropriate HTTP responses
func handleAuthError(c fiber.Ctx, err error) error {
	status := mapErrorToStatus(err)
	return c.Status(status).JSON(core.ErrorResponse{
		Error: err.Error(),
	})
}

// mapErrorToStatus maps service error types to HTTP status codes
func mapErrorToStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var formErr *services.FormError
	if errors.As(err, &formErr) {
		return http.StatusBadRequest
	}

	switch {
	case errors.Is(err, core.ErrInvalidCredentials),
		errors.Is(err, core.ErrInvalidToken),
		errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, core.ErrSessionExpired),
		errors.Is(err, core.ErrMissingAuthHeader),
		errors.Is(err, core.ErrInvalidAuthHeader),
		errors.Is(err, core.ErrNotLoggedIn):
		return http.StatusUnauthorized

	case errors.Is(err, core.ErrEmailNotConfirmed):
		return http.StatusForbidden

	case errors.Is(err, core.ErrEmailRequired),
		errors.Is(err, core.ErrPasswordRequired),
		errors.Is(err, core.ErrPasswordTooShort),
		errors.Is(err, core.ErrPasswordTooLong),
		errors.Is(err, core.ErrInvalidEmail),
		errors.Is(err, core.ErrInvalidRole),
		errors.Is(err, core.ErrInvalidRequest),
		errors.Is(err, core.ErrInvalidResetToken):
		return http.StatusBadRequest

	case errors.Is(err, core.ErrUserNotFound),
		errors.Is(err, core.ErrProfileNotFound),
		errors.Is(err, core.ErrNotificationNotFound):
		return http.StatusNotFound

	case errors.Is(err, core.ErrUserExists):
		return http.StatusConflict

	case errors.Is(err, core.ErrNoRecipient):
		return http.StatusUnprocessableEntity

	case errors.Is(err, core.ErrIdentityNotConfigured),
		errors.Is(err, core.ErrProfilesNotConfigured),
		errors.Is(err, core.ErrNotificationsNotConfigured),
		errors.Is(err, core.ErrTransportNotConfigured),
		errors.Is(err, core.ErrPushNotConfigured):
		return http.StatusServiceUnavailable

	case errors.Is(err, core.ErrNotImplemented):
		return http.StatusNotImplemented

	default:
		return http.StatusInternalServerError
	}
}
