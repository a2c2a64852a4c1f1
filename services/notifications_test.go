package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lborres/pulsetrack/core"
)

// eventually polls cond until it holds or a second has passed.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func seedEvent(t *testing.T, storage *FakeStorageProvider, id, userID string, at time.Time) {
	t.Helper()
	err := storage.Insert(context.Background(), &core.NotificationEvent{ID: id, UserID: userID, Title: "t-" + id, Message: "m", CreatedAt: at})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
}

func eventIDs(events []core.NotificationEvent) []string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// Requirement: signing in fetches once, subscribes once, and live inserts are prepended.
func TestNotificationManager_SubjectTransition(t *testing.T) {
	// Arrange
	storage := NewFakeStorageProvider()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	seedEvent(t, storage, "e1", "u1", base)
	seedEvent(t, storage, "e2", "u1", base.Add(time.Minute))
	seedEvent(t, storage, "x1", "u2", base)

	sessions := NewSessionStore(nil)
	m := NewNotificationManager(storage, storage, sessions, NotificationOptions{})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Close()

	if lists, subs, _ := storage.Calls(); len(lists) != 0 || len(subs) != 0 {
		t.Fatalf("no fetch expected without a session, lists=%v subs=%v", lists, subs)
	}

	// Act
	sessions.Set(&core.Session{SubjectID: "u1", Role: core.RolePatient})
	eventually(t, func() bool { return storage.ActiveFeeds() == 1 }, "feed for u1 opened")

	// Assert
	lists, subs, _ := storage.Calls()
	if !equalIDs(lists, []string{"u1"}) || !equalIDs(subs, []string{"u1"}) {
		t.Fatalf("lists=%v subs=%v, want exactly one of each for u1", lists, subs)
	}
	if got := eventIDs(m.Events()); !equalIDs(got, []string{"e2", "e1"}) {
		t.Errorf("events = %v, want newest first", got)
	}

	seedEvent(t, storage, "e9", "u1", base.Add(time.Hour))
	seedEvent(t, storage, "x2", "u2", base.Add(time.Hour))
	if got := eventIDs(m.Events()); !equalIDs(got, []string{"e9", "e2", "e1"}) {
		t.Errorf("events after insert = %v", got)
	}
}

// Requirement: switching subjects tears the old feed down before opening the new one.
func TestNotificationManager_SwitchAndSignOut(t *testing.T) {
	storage := NewFakeStorageProvider()
	seedEvent(t, storage, "e1", "u1", time.Now())
	seedEvent(t, storage, "x1", "u2", time.Now())
	sessions := NewSessionStore(&core.Session{SubjectID: "u1", Role: core.RolePatient})
	m := NewNotificationManager(storage, storage, sessions, NotificationOptions{})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Close()
	if got := eventIDs(m.Events()); !equalIDs(got, []string{"e1"}) {
		t.Fatalf("initial events = %v", got)
	}

	sessions.Set(&core.Session{SubjectID: "u2", Role: core.RoleDoctor})
	eventually(t, func() bool { return m.SubjectID() == "u2" && storage.ActiveFeeds() == 1 }, "switched to u2")
	if got := eventIDs(m.Events()); !equalIDs(got, []string{"x1"}) {
		t.Errorf("events for u2 = %v", got)
	}

	sessions.Clear()
	eventually(t, func() bool { return m.SubjectID() == "" && storage.ActiveFeeds() == 0 }, "feed closed on sign out")
	if len(m.Events()) != 0 {
		t.Errorf("events after sign out = %v", m.Events())
	}
	if _, _, unsubs := storage.Calls(); unsubs != 2 {
		t.Errorf("unsubscribes = %d, want 2", unsubs)
	}
}

// Requirement: the same event delivered twice appears once.
func TestNotificationManager_DedupesInserts(t *testing.T) {
	storage := NewFakeStorageProvider()
	seedEvent(t, storage, "e1", "u1", time.Now())
	sessions := NewSessionStore(&core.Session{SubjectID: "u1"})
	m := NewNotificationManager(storage, storage, sessions, NotificationOptions{})
	_ = m.Start(context.Background())
	defer m.Close()

	m.onInsert("u1", core.NotificationEvent{ID: "e1", UserID: "u1"})
	m.onInsert("u1", core.NotificationEvent{ID: "e5", UserID: "u2"})

	if got := eventIDs(m.Events()); !equalIDs(got, []string{"e1"}) {
		t.Errorf("events = %v", got)
	}
}

// Requirement: a failed fetch leaves an empty sequence but the feed still opens.
func TestNotificationManager_FetchFailure(t *testing.T) {
	storage := NewFakeStorageProvider()
	storage.ListErr = errors.New("db down")
	sessions := NewSessionStore(&core.Session{SubjectID: "u1"})
	m := NewNotificationManager(storage, storage, sessions, NotificationOptions{})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Close()

	if len(m.Events()) != 0 || storage.ActiveFeeds() != 1 {
		t.Errorf("events = %v, feeds = %d", m.Events(), storage.ActiveFeeds())
	}
	seedEvent(t, storage, "e1", "u1", time.Now())
	if got := eventIDs(m.Events()); !equalIDs(got, []string{"e1"}) {
		t.Errorf("events = %v", got)
	}
}

// Requirement: marking read is idempotent and keeps the event in place.
func TestNotificationManager_MarkAsRead(t *testing.T) {
	storage := NewFakeStorageProvider()
	seedEvent(t, storage, "e1", "u1", time.Now().Add(-time.Minute))
	seedEvent(t, storage, "e2", "u1", time.Now())
	sessions := NewSessionStore(&core.Session{SubjectID: "u1"})
	m := NewNotificationManager(storage, storage, sessions, NotificationOptions{})
	_ = m.Start(context.Background())
	defer m.Close()

	for i := 0; i < 2; i++ {
		if err := m.MarkAsRead(context.Background(), "e1"); err != nil {
			t.Fatalf("MarkAsRead() call %d error = %v", i+1, err)
		}
	}

	events := m.Events()
	if !equalIDs(eventIDs(events), []string{"e2", "e1"}) {
		t.Fatalf("order changed: %v", eventIDs(events))
	}
	if events[0].Read || !events[1].Read {
		t.Errorf("read flags = %v/%v, want false/true", events[0].Read, events[1].Read)
	}
	if stored, _ := storage.Notification("e1"); !stored.Read {
		t.Error("stored event should be read")
	}
}

// Requirement: a failed store update still flips the cached copy and returns the error.
func TestNotificationManager_MarkAsRead_RemoteFailure(t *testing.T) {
	storage := NewFakeStorageProvider()
	seedEvent(t, storage, "e1", "u1", time.Now())
	sessions := NewSessionStore(&core.Session{SubjectID: "u1"})
	m := NewNotificationManager(storage, storage, sessions, NotificationOptions{})
	_ = m.Start(context.Background())
	defer m.Close()
	storage.MarkReadErr = errors.New("update failed")

	err := m.MarkAsRead(context.Background(), "e1")

	if err == nil {
		t.Fatal("MarkAsRead() should return the store error")
	}
	if !m.Events()[0].Read {
		t.Error("cached copy should be read")
	}

	signedOut := NewNotificationManager(storage, storage, NewSessionStore(nil), NotificationOptions{})
	if err := signedOut.MarkAsRead(context.Background(), "e1"); !errors.Is(err, core.ErrNotLoggedIn) {
		t.Errorf("MarkAsRead() without subject error = %v", err)
	}
}

// Requirement: granting permission saves the registration token on the profile.
func TestNotificationManager_RequestPermission(t *testing.T) {
	tests := []struct {
		name       string
		permission core.PermissionRequester
		push       *FakePushProvider
		wantToken  string
		wantOK     bool
		wantSaved  bool
	}{
		{name: "granted", permission: StaticPermission(core.PermissionGranted), push: &FakePushProvider{Token: "reg-1"}, wantToken: "reg-1", wantOK: true, wantSaved: true},
		{name: "denied", permission: StaticPermission(core.PermissionDenied), push: &FakePushProvider{Token: "reg-1"}},
		{name: "unsupported", push: &FakePushProvider{Token: "reg-1"}},
		{name: "token failure", permission: StaticPermission(core.PermissionGranted), push: &FakePushProvider{TokenErr: errors.New("no service worker")}},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			storage := NewFakeStorageProvider()
			_ = storage.CreateProfile(context.Background(), &core.Profile{ID: "u1"})
			sessions := NewSessionStore(&core.Session{SubjectID: "u1"})
			m := NewNotificationManager(storage, storage, sessions, NotificationOptions{Push: test.push, Permission: test.permission})

			token, ok := m.RequestPermission(context.Background())

			if token != test.wantToken || ok != test.wantOK {
				t.Errorf("RequestPermission() = (%q, %v), want (%q, %v)", token, ok, test.wantToken, test.wantOK)
			}
			profile, _ := storage.GetProfile(context.Background(), "u1")
			saved := profile.NotificationToken != nil && *profile.NotificationToken == test.wantToken
			if saved != test.wantSaved {
				t.Errorf("token saved = %v, want %v", saved, test.wantSaved)
			}
		})
	}
}

// Requirement: a failed token save is logged, the token is still returned.
func TestNotificationManager_RequestPermission_SaveFailure(t *testing.T) {
	storage := NewFakeStorageProvider()
	storage.UpdateProfileErr = errors.New("update failed")
	m := NewNotificationManager(storage, storage, NewSessionStore(&core.Session{SubjectID: "u1"}), NotificationOptions{
		Push:       &FakePushProvider{Token: "reg-1"},
		Permission: StaticPermission(core.PermissionGranted),
	})

	token, ok := m.RequestPermission(context.Background())

	if token != "reg-1" || !ok || m.Token() != "reg-1" || m.Permission() != core.PermissionGranted {
		t.Errorf("RequestPermission() = (%q, %v)", token, ok)
	}
}

// Requirement: foreground messages reach the callback and never enter the sequence.
func TestNotificationManager_ForegroundMessages(t *testing.T) {
	storage := NewFakeStorageProvider()
	push := &FakePushProvider{}
	var mu sync.Mutex
	var received []string
	m := NewNotificationManager(storage, storage, NewSessionStore(&core.Session{SubjectID: "u1"}), NotificationOptions{
		Push: push,
		OnForeground: func(msg core.PushMessage) {
			mu.Lock()
			received = append(received, msg.Title)
			mu.Unlock()
		},
	})
	_ = m.Start(context.Background())

	push.Emit(core.PushMessage{Title: "BP reading due"})
	m.Close()
	push.Emit(core.PushMessage{Title: "after close"})

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "BP reading due" {
		t.Errorf("received = %v", received)
	}
	if len(m.Events()) != 0 {
		t.Errorf("events = %v", m.Events())
	}
}

// Requirement: Close releases every subscription exactly once and stops updates.
func TestNotificationManager_Close(t *testing.T) {
	storage := NewFakeStorageProvider()
	push := &FakePushProvider{}
	sessions := NewSessionStore(&core.Session{SubjectID: "u1"})
	changes := 0
	m := NewNotificationManager(storage, storage, sessions, NotificationOptions{
		Push:     push,
		OnChange: func([]core.NotificationEvent) { changes++ },
	})
	_ = m.Start(context.Background())

	m.Close()
	m.Close()
	before := changes
	seedEvent(t, storage, "e1", "u1", time.Now())

	if storage.ActiveFeeds() != 0 || sessions.Subscribers() != 0 || push.Listeners() != 0 {
		t.Errorf("feeds=%d sessions=%d listeners=%d", storage.ActiveFeeds(), sessions.Subscribers(), push.Listeners())
	}
	if _, _, unsubs := storage.Calls(); unsubs != 1 || push.Unsubscribes != 1 {
		t.Errorf("unsubscribes = %d/%d, want 1/1", unsubs, push.Unsubscribes)
	}
	if changes != before {
		t.Error("no change callbacks after Close")
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Start() after Close error = %v", err)
	}
}
