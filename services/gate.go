package services

import (
	"path"
	"strings"

	"github.com/lborres/pulsetrack/core"
)

const (
	HomePath      = "/"
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
	PatientPath   = "/patient"
	AdminPath     = "/admin"
)

// ProtectedPrefixes are the areas that require a session.
var ProtectedPrefixes = []string{DashboardPath, PatientPath, AdminPath}

// Decide returns the access decision for a request to requestPath made
// with session. It never fails: a missing or unknown role on a protected
// path is treated as no session.
func Decide(session *core.Session, requestPath string) core.AccessDecision {
	area := protectedArea(requestPath)
	if area == "" {
		return core.Allow()
	}

	if !session.Present() || !session.Role.Valid() {
		return core.RedirectTo(LoginPath)
	}

	switch session.Role {
	case core.RoleDoctor:
		if area == PatientPath {
			return core.RedirectTo(DashboardPath)
		}
	case core.RolePatient, core.RoleCaregiver:
		if area == DashboardPath || area == AdminPath {
			return core.RedirectTo(PatientPath)
		}
	case core.RoleAdmin:
		if area == DashboardPath || area == PatientPath {
			return core.RedirectTo(AdminPath)
		}
	}

	return core.Allow()
}

// protectedArea returns the protected prefix requestPath falls under, or "".
// Matching is per segment and case-insensitive, since the router is.
func protectedArea(requestPath string) string {
	p := strings.ToLower(path.Clean("/" + requestPath))
	for _, prefix := range ProtectedPrefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return prefix
		}
	}
	return ""
}
