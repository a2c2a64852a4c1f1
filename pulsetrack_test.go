package pulsetrack

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lborres/pulsetrack/core"
	"github.com/lborres/pulsetrack/pkg/crypto"
	"github.com/lborres/pulsetrack/services"
)

const testSecret = "01234567890123456789012345678901"

// dummy HTTP Adapter
type dummyHTTP struct {
	registered *App
	err        error
}

func (d *dummyHTTP) RegisterRoutes(app *App) error {
	d.registered = app
	return d.err
}

func cheapHasher() PasswordHandler {
	return &crypto.Argon2{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func TestNewShouldValidateRequiredConfig(t *testing.T) {
	storage := services.NewFakeStorageProvider()

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "missing secret", cfg: Config{Database: storage, HTTP: &dummyHTTP{}}, wantErr: ErrSecretRequired},
		{name: "short secret", cfg: Config{Secret: "short-secret", Database: storage, HTTP: &dummyHTTP{}}, wantErr: ErrSecretTooShort},
		{name: "missing database", cfg: Config{Secret: testSecret, HTTP: &dummyHTTP{}}, wantErr: ErrDBAdapterRequired},
		{name: "missing http adapter", cfg: Config{Secret: testSecret, Database: storage}, wantErr: ErrHTTPAdapterRequired},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			_, err := New(test.cfg)
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("expected %v, got %v", test.wantErr, err)
			}
		})
	}
}

func TestNewShouldReturnErrSecretTooShort(t *testing.T) {
	_, err := New(Config{Secret: "short-secret", Database: services.NewFakeStorageProvider(), HTTP: &dummyHTTP{}})
	if !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("expected ErrSecretTooShort sentinel (errors.Is), got %v", err)
	}
	// Message should include the minimum length
	if !strings.Contains(err.Error(), "32") {
		t.Fatalf("expected error message to include minimum length, got %v", err)
	}
}

func TestNewShouldApplyDefaultsAndRegisterRoutes(t *testing.T) {
	adapter := &dummyHTTP{}

	app, err := New(Config{Secret: testSecret, Database: services.NewFakeStorageProvider(), HTTP: adapter, SiteURL: "https://app.test/"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if adapter.registered != app {
		t.Fatal("expected the adapter to receive the app")
	}
	if app.BasePath != "/api" {
		t.Errorf("expected default base path /api, got %q", app.BasePath)
	}
	if app.SiteURL != "https://app.test" {
		t.Errorf("expected trailing slash trimmed, got %q", app.SiteURL)
	}
	if len(app.Endpoints.Endpoints()) != len(services.BaseEndpoints()) {
		t.Errorf("expected base endpoints registered, got %d", len(app.Endpoints.Endpoints()))
	}
}

func TestNewShouldPropagateAdapterError(t *testing.T) {
	boom := errors.New("route conflict")
	_, err := New(Config{Secret: testSecret, Database: services.NewFakeStorageProvider(), HTTP: &dummyHTTP{err: boom}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected adapter error, got %v", err)
	}
}

func TestNewShouldNotUseCacheWhenDisableCacheTrue(t *testing.T) {
	storage := services.NewFakeStorageProvider()
	app, err := New(Config{Secret: testSecret, Database: storage, HTTP: &dummyHTTP{}, DisableCache: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	res, err := app.Sessions.Create(ctx, &core.User{ID: "user1", Email: "user1@example.com", Role: RolePatient})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// With no cache, Verify has to hit storage and fail once the record is gone
	_ = storage.DeleteSessionByHash(ctx, res.Record.TokenHash)
	_, err = app.Sessions.Verify(ctx, res.Session.Token)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound because cache disabled, got %v", err)
	}
}

func TestAppManagersShareTheWiredServices(t *testing.T) {
	storage := services.NewFakeStorageProvider()
	app, err := New(Config{Secret: testSecret, Database: storage, HTTP: &dummyHTTP{}, PasswordHasher: cheapHasher()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	auth := app.NewAuthManager(nil)
	if _, err := auth.SignUp(ctx, "ana@example.com", "secret1", core.ProfileFields{FirstName: "Ana", Role: RoleDoctor}); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	nav, err := auth.SignIn(ctx, "ana@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if nav.To != "/dashboard" {
		t.Errorf("expected /dashboard, got %q", nav.To)
	}

	notifications := app.NewNotificationManager(auth.Store(), services.NotificationOptions{})
	if err := notifications.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer notifications.Close()

	result, err := app.Dispatcher.Dispatch(ctx, core.NotificationRequest{UserID: auth.Session().SubjectID, Title: "Welcome", Message: "Hello"})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if events := notifications.Events(); len(events) != 1 || events[0].ID != result.Event.ID {
		t.Errorf("expected the dispatched event in the feed, got %v", events)
	}
}
