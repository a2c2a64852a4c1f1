package services

import (
	"context"
	"testing"
	"time"

	"github.com/lborres/pulsetrack/core"
)

// Requirement: marking read through the hub updates every open manager of the subject once.
func TestNotificationHub_MarkAsRead(t *testing.T) {
	// Arrange
	storage := NewFakeStorageProvider()
	seedEvent(t, storage, "e1", "u1", time.Now())
	hub := NewNotificationHub(storage)

	var managers []*NotificationManager
	for i := 0; i < 2; i++ {
		m := NewNotificationManager(storage, storage, NewSessionStore(&core.Session{SubjectID: "u1"}), NotificationOptions{})
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		defer m.Close()
		dispose := hub.Register("u1", m)
		defer dispose()
		managers = append(managers, m)
	}

	// Act
	err := hub.MarkAsRead(context.Background(), "u1", "e1")

	// Assert
	if err != nil {
		t.Fatalf("MarkAsRead() error = %v", err)
	}
	for i, m := range managers {
		if !m.Events()[0].Read {
			t.Errorf("manager %d did not see the read flag", i)
		}
	}
	if stored, _ := storage.Notification("e1"); !stored.Read {
		t.Error("stored event should be read")
	}
}

// Requirement: without open managers the hub writes to the store directly.
func TestNotificationHub_MarkAsRead_NoManagers(t *testing.T) {
	storage := NewFakeStorageProvider()
	seedEvent(t, storage, "e1", "u1", time.Now())
	hub := NewNotificationHub(storage)

	if err := hub.MarkAsRead(context.Background(), "u1", "e1"); err != nil {
		t.Fatalf("MarkAsRead() error = %v", err)
	}
	if stored, _ := storage.Notification("e1"); !stored.Read {
		t.Error("stored event should be read")
	}
	if err := hub.MarkAsRead(context.Background(), "u2", "e1"); err == nil {
		t.Error("another subject's event should not be found")
	}
}

// Requirement: disposing a registration removes only that manager.
func TestNotificationHub_Register(t *testing.T) {
	hub := NewNotificationHub(NewFakeStorageProvider())
	a := &NotificationManager{}
	b := &NotificationManager{}

	disposeA := hub.Register("u1", a)
	disposeB := hub.Register("u1", b)
	disposeA()
	disposeA()

	if hub.Open("u1") != 1 {
		t.Errorf("Open() = %d, want 1", hub.Open("u1"))
	}
	disposeB()
	if hub.Open("u1") != 0 {
		t.Errorf("Open() = %d, want 0", hub.Open("u1"))
	}
}
