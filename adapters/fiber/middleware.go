package fiber

import (
	"github.com/gofiber/fiber/v3"

	"github.com/lborres/pulsetrack"
	"github.com/lborres/pulsetrack/core"
	"github.com/lborres/pulsetrack/services"
)

const localsSession = "session"

// RequireSession validates the request's token and stores the session in
// the context for downstream handlers.
func (a *Adapter) RequireSession(c fiber.Ctx) error {
	token := extractToken(c, a.config.CookieName)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(core.ErrorResponse{
			Error: pulsetrack.ErrMissingAuthHeader.Error(),
		})
	}

	session, err := a.core.Identity.GetSession(requestContext(c), token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(core.ErrorResponse{
			Error: err.Error(),
		})
	}

	c.Locals(localsSession, session)
	return c.Next()
}

// Gate redirects requests for protected areas the session may not enter.
// Public paths pass through without touching the token.
func (a *Adapter) Gate(c fiber.Ctx) error {
	if services.Decide(nil, c.Path()).Allowed() {
		return c.Next()
	}

	var session *core.Session
	if token := extractToken(c, a.config.CookieName); token != "" {
		// An invalid token is the same as no session here
		session, _ = a.core.Identity.GetSession(requestContext(c), token)
	}

	decision := services.Decide(session, c.Path())
	if !decision.Allowed() {
		return c.Redirect().Status(fiber.StatusFound).To(decision.Redirect)
	}

	c.Locals(localsSession, session)
	return c.Next()
}

// SessionFrom returns the session stored by RequireSession or Gate, or nil.
func SessionFrom(c fiber.Ctx) *core.Session {
	session, _ := c.Locals(localsSession).(*core.Session)
	return session
}
