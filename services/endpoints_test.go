package services

import (
	"strings"
	"testing"

	"github.com/lborres/pulsetrack/core"
)

func pluginEndpoint(method, path, opID string) core.Endpoint {
	return core.Endpoint{
		Path:     path,
		Method:   method,
		Metadata: core.EndpointMetadata{OperationID: opID, Description: "plugin"},
	}
}

// Requirement: every built-in route is a template (nil handler) carrying
// its operation id and whether it needs a session.
func TestBaseEndpoints_Routes(t *testing.T) {
	type route struct {
		method    string
		opID      string
		protected bool
	}
	want := map[string]route{
		"/auth/sign-up":                {"POST", OpIDSignUp, false},
		"/auth/sign-in":                {"POST", OpIDSignIn, false},
		"/auth/sign-out":               {"POST", OpIDSignOut, true},
		"/auth/session":                {"GET", OpIDGetSession, true},
		"/auth/refresh":                {"POST", OpIDRefresh, true},
		"/auth/reset-password":         {"POST", OpIDResetPassword, false},
		"/auth/reset-password/confirm": {"POST", OpIDConfirmPasswordReset, false},
		"/auth/confirm":                {"GET", OpIDConfirmEmail, false},
		"/auth/profile":                {"PATCH", OpIDUpdateProfile, true},
		"/notifications":               {"GET", OpIDListNotifications, true},
		"/notifications/stream":        {"GET", OpIDStreamNotifications, true},
		"/notifications/:id/read":      {"POST", OpIDMarkNotificationRead, true},
		"/notifications/permission":    {"POST", OpIDRequestPermission, true},
	}

	// Act
	endpoints := BaseEndpoints()

	// Assert
	if len(endpoints) != len(want) {
		t.Fatalf("BaseEndpoints() returned %d endpoints, want %d", len(endpoints), len(want))
	}
	seenOps := make(map[string]bool)
	for _, ep := range endpoints {
		ep := ep
		t.Run(ep.Method+" "+ep.Path, func(t *testing.T) {
			r, ok := want[ep.Path]
			if !ok {
				t.Fatalf("unexpected endpoint %s %s", ep.Method, ep.Path)
			}
			if ep.Method != r.method || ep.Metadata.OperationID != r.opID || ep.Metadata.Protected != r.protected {
				t.Errorf("got (%s, %s, protected=%v), want (%s, %s, protected=%v)",
					ep.Method, ep.Metadata.OperationID, ep.Metadata.Protected, r.method, r.opID, r.protected)
			}
			if ep.Handler != nil {
				t.Error("base endpoints must not carry a handler")
			}
			if !strings.HasPrefix(ep.Path, "/") {
				t.Errorf("path %q must be relative to the base path and start with /", ep.Path)
			}
		})
		if seenOps[ep.Metadata.OperationID] {
			t.Errorf("duplicate operation id %q", ep.Metadata.OperationID)
		}
		seenOps[ep.Metadata.OperationID] = true
	}
}

// Requirement: only the notification stream holds the connection open.
func TestBaseEndpoints_StreamFlag(t *testing.T) {
	for _, ep := range BaseEndpoints() {
		wantStream := ep.Metadata.OperationID == OpIDStreamNotifications
		if ep.Metadata.Stream != wantStream {
			t.Errorf("%s: Stream = %v, want %v", ep.Metadata.OperationID, ep.Metadata.Stream, wantStream)
		}
	}
}

// Requirement: the registry starts with the base endpoints, sorted by path
// and then method, and finds them by operation id.
func TestEndpointRegistry_BaseEndpoints(t *testing.T) {
	// Arrange & Act
	registry := NewEndpointRegistry()
	endpoints := registry.Endpoints()

	// Assert
	if len(endpoints) != len(BaseEndpoints()) {
		t.Fatalf("registry has %d endpoints, want %d", len(endpoints), len(BaseEndpoints()))
	}
	for i := 1; i < len(endpoints); i++ {
		prev, cur := endpoints[i-1], endpoints[i]
		if prev.Path > cur.Path || (prev.Path == cur.Path && prev.Method > cur.Method) {
			t.Errorf("endpoints out of order: %s %s before %s %s", prev.Method, prev.Path, cur.Method, cur.Path)
		}
	}

	ep, ok := registry.Lookup(OpIDStreamNotifications)
	if !ok || ep.Path != "/notifications/stream" {
		t.Errorf("Lookup(%q) = (%v, %v)", OpIDStreamNotifications, ep, ok)
	}
	if _, ok := registry.Lookup("doesNotExist"); ok {
		t.Error("Lookup should not find unknown operation ids")
	}
}

// Requirement: plugin batches are all-or-nothing. A batch that clashes with
// a registered METHOD:PATH, or with itself, registers nothing.
func TestEndpointRegistry_RegisterPlugin(t *testing.T) {
	base := len(BaseEndpoints())
	tests := []struct {
		name      string
		plugin    []core.Endpoint
		wantErr   string
		wantCount int
	}{
		{
			name:      "new route",
			plugin:    []core.Endpoint{pluginEndpoint("POST", "/appointments", "createAppointment")},
			wantCount: base + 1,
		},
		{
			name:      "same path, different method",
			plugin:    []core.Endpoint{pluginEndpoint("GET", "/auth/sign-up", "signUpForm")},
			wantCount: base + 1,
		},
		{
			name: "several routes",
			plugin: []core.Endpoint{
				pluginEndpoint("POST", "/auth/verify-phone", "verifyPhone"),
				pluginEndpoint("GET", "/appointments", "listAppointments"),
				pluginEndpoint("DELETE", "/appointments/:id", "cancelAppointment"),
			},
			wantCount: base + 3,
		},
		{
			name:      "clashes with a base route",
			plugin:    []core.Endpoint{pluginEndpoint("GET", "/auth/session", "mySession")},
			wantErr:   "already registered",
			wantCount: base,
		},
		{
			name: "clash after a valid route",
			plugin: []core.Endpoint{
				pluginEndpoint("POST", "/appointments", "createAppointment"),
				pluginEndpoint("POST", "/auth/sign-in", "otherSignIn"),
			},
			wantErr:   "already registered",
			wantCount: base,
		},
		{
			name: "duplicate inside the batch",
			plugin: []core.Endpoint{
				pluginEndpoint("POST", "/auth/verify-phone", "verifyPhone"),
				pluginEndpoint("POST", "/auth/verify-phone", "verifyPhoneAgain"),
			},
			wantErr:   "duplicate endpoint",
			wantCount: base,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			registry := NewEndpointRegistry()

			// Act
			err := registry.RegisterPlugin(test.plugin)

			// Assert
			switch {
			case test.wantErr == "" && err != nil:
				t.Fatalf("RegisterPlugin() error = %v", err)
			case test.wantErr != "" && (err == nil || !strings.Contains(err.Error(), test.wantErr)):
				t.Fatalf("RegisterPlugin() error = %v, want it to mention %q", err, test.wantErr)
			}
			if got := len(registry.Endpoints()); got != test.wantCount {
				t.Errorf("registry has %d endpoints, want %d", got, test.wantCount)
			}
		})
	}
}
