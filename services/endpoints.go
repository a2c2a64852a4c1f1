package services

import (
	"fmt"
	"sort"

	"github.com/lborres/pulsetrack/core"
)

// Operation ids of the built-in endpoints. Adapters bind their handlers by
// these ids.
const (
	OpIDSignUp               = "signUpWithEmailAndPassword"
	OpIDSignIn               = "signInWithEmailAndPassword"
	OpIDSignOut              = "signOut"
	OpIDGetSession           = "getSession"
	OpIDRefresh              = "refreshToken"
	OpIDResetPassword        = "resetPassword"
	OpIDConfirmPasswordReset = "confirmPasswordReset"
	OpIDConfirmEmail         = "confirmEmail"
	OpIDUpdateProfile        = "updateProfile"
	OpIDListNotifications    = "listNotifications"
	OpIDStreamNotifications  = "streamNotifications"
	OpIDMarkNotificationRead = "markNotificationRead"
	OpIDRequestPermission    = "requestNotificationPermission"
)

// BaseEndpoints returns framework-agnostic endpoint specifications for the
// auth and notification APIs, relative to the API base path.
//
// Each endpoint is a template:
// - Path and Method are set
// - Handler is nil (provided by adapters)
// - Metadata carries the operation id and whether a session is required
func BaseEndpoints() []core.Endpoint {
	return append(AuthEndpoints(), NotificationEndpoints()...)
}

func AuthEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{
			Path:   "/auth/sign-up",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpIDSignUp,
				Description: "Sign up a user using email and password",
			},
		},
		{
			Path:   "/auth/sign-in",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpIDSignIn,
				Description: "Sign in a user using email and password",
			},
		},
		{
			Path:   "/auth/sign-out",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpIDSignOut,
				Description: "Sign out the current user and invalidate the session",
				Protected:   true,
			},
		},
		{
			Path:   "/auth/session",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpIDGetSession,
				Description: "Get the current user's session and profile",
				Protected:   true,
			},
		},
		{
			Path:   "/auth/refresh",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpIDRefresh,
				Description: "Replace the current session with a newly issued one",
				Protected:   true,
			},
		},
		{
			Path:   "/auth/reset-password",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpIDResetPassword,
				Description: "Send a password reset link",
			},
		},
		{
			Path:   "/auth/reset-password/confirm",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpIDConfirmPasswordReset,
				Description: "Set a new password using a reset token",
			},
		},
		{
			Path:   "/auth/confirm",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpIDConfirmEmail,
				Description: "Confirm the email address of a new account",
			},
		},
		{
			Path:   "/auth/profile",
			Method: "PATCH",
			Metadata: core.EndpointMetadata{
				OperationID: OpIDUpdateProfile,
				Description: "Update credentials and profile fields of the current user",
				Protected:   true,
			},
		},
	}
}

func NotificationEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{
			Path:   "/notifications",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpIDListNotifications,
				Description: "List the current user's notifications, newest first",
				Protected:   true,
			},
		},
		{
			Path:   "/notifications/stream",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpIDStreamNotifications,
				Description: "Stream the notification sequence as server-sent events",
				Protected:   true,
				Stream:      true,
			},
		},
		{
			Path:   "/notifications/:id/read",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpIDMarkNotificationRead,
				Description: "Mark a notification as read",
				Protected:   true,
			},
		},
		{
			Path:   "/notifications/permission",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpIDRequestPermission,
				Description: "Record the notification permission and register for push",
				Protected:   true,
			},
		},
	}
}

// EndpointRegistry manages a collection of framework-agnostic endpoints
// and handles conflict detection for duplicate METHOD:PATH combinations.
type EndpointRegistry struct {
	// endpoints stores all registered endpoints keyed by "METHOD:PATH"
	endpoints map[string]*core.Endpoint
}

// NewEndpointRegistry creates a new registry with all base endpoints
// pre-registered.
func NewEndpointRegistry() *EndpointRegistry {
	reg := &EndpointRegistry{
		endpoints: make(map[string]*core.Endpoint),
	}

	for _, ep := range BaseEndpoints() {
		ep := ep
		_ = reg.register(&ep)
	}

	return reg
}

func endpointKey(ep *core.Endpoint) string {
	return fmt.Sprintf("%s:%s", ep.Method, ep.Path)
}

// register adds a single endpoint to the registry with conflict detection.
func (r *EndpointRegistry) register(ep *core.Endpoint) error {
	key := endpointKey(ep)

	if _, exists := r.endpoints[key]; exists {
		return fmt.Errorf("endpoint conflict: %s %s already registered", ep.Method, ep.Path)
	}

	r.endpoints[key] = ep
	return nil
}

// RegisterPlugin registers additional endpoints. If any of them conflicts
// with a registered endpoint or with another in the same batch, none are
// registered.
func (r *EndpointRegistry) RegisterPlugin(endpoints []core.Endpoint) error {
	seen := make(map[string]bool)
	for i := range endpoints {
		ep := &endpoints[i]
		key := endpointKey(ep)

		if _, exists := r.endpoints[key]; exists {
			return fmt.Errorf("plugin endpoint conflict: %s %s already registered", ep.Method, ep.Path)
		}
		if seen[key] {
			return fmt.Errorf("plugin contains duplicate endpoint: %s %s", ep.Method, ep.Path)
		}
		seen[key] = true
	}

	for i := range endpoints {
		ep := endpoints[i]
		r.endpoints[endpointKey(&ep)] = &ep
	}

	return nil
}

// Endpoints returns all registered endpoints ordered by path, then method.
func (r *EndpointRegistry) Endpoints() []*core.Endpoint {
	result := make([]*core.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		result = append(result, ep)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Path != result[j].Path {
			return result[i].Path < result[j].Path
		}
		return result[i].Method < result[j].Method
	})
	return result
}

// Lookup returns the endpoint registered under operationID.
func (r *EndpointRegistry) Lookup(operationID string) (*core.Endpoint, bool) {
	for _, ep := range r.endpoints {
		if ep.Metadata.OperationID == operationID {
			return ep, true
		}
	}
	return nil, false
}
