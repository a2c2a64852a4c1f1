package services

import (
	"context"
	"errors"
	"testing"

	"github.com/lborres/pulsetrack/core"
)

func strPtr(s string) *string { return &s }

// Requirement: a dispatch stores the event and delivers it once per requested channel.
func TestDispatcher_Dispatch(t *testing.T) {
	tests := []struct {
		name          string
		profile       *core.Profile
		channels      []core.Channel
		push          *FakePushProvider
		sms           *FakeTransport
		wantDelivered []core.Channel
		wantFailed    map[core.Channel]error
	}{
		{
			name:     "stores only when no channel is requested",
			profile:  &core.Profile{ID: "u1"},
			channels: nil,
		},
		{
			name:          "delivers push and sms once each",
			profile:       &core.Profile{ID: "u1", Phone: strPtr("+15550100"), NotificationToken: strPtr("reg-1")},
			channels:      []core.Channel{core.ChannelPush, core.ChannelSMS, core.ChannelSMS},
			push:          &FakePushProvider{},
			sms:           &FakeTransport{},
			wantDelivered: []core.Channel{core.ChannelPush, core.ChannelSMS},
		},
		{
			name:          "missing phone fails only sms",
			profile:       &core.Profile{ID: "u1", NotificationToken: strPtr("reg-1")},
			channels:      []core.Channel{core.ChannelSMS, core.ChannelPush},
			push:          &FakePushProvider{},
			sms:           &FakeTransport{},
			wantDelivered: []core.Channel{core.ChannelPush},
			wantFailed:    map[core.Channel]error{core.ChannelSMS: core.ErrNoRecipient},
		},
		{
			name:       "unconfigured channels fail",
			profile:    &core.Profile{ID: "u1", Phone: strPtr("+15550100")},
			channels:   []core.Channel{core.ChannelWhatsApp, core.ChannelPush},
			wantFailed: map[core.Channel]error{core.ChannelWhatsApp: core.ErrTransportNotConfigured, core.ChannelPush: core.ErrPushNotConfigured},
		},
		{
			name:       "unknown recipient fails every channel",
			channels:   []core.Channel{core.ChannelSMS},
			sms:        &FakeTransport{},
			wantFailed: map[core.Channel]error{core.ChannelSMS: core.ErrProfileNotFound},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			storage := NewFakeStorageProvider()
			if test.profile != nil {
				_ = storage.CreateProfile(context.Background(), test.profile)
			}
			cfg := DispatcherConfig{Store: storage, Profiles: storage}
			if test.push != nil {
				cfg.Push = test.push
			}
			if test.sms != nil {
				cfg.SMS = test.sms
			}
			d := NewDispatcher(cfg)

			// Act
			result, err := d.Dispatch(context.Background(), core.NotificationRequest{
				UserID:   "u1",
				Title:    "Medication",
				Message:  "Take 5mg now",
				Type:     "reminder",
				Channels: test.channels,
			})

			// Assert
			if err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			if _, ok := storage.Notification(result.Event.ID); !ok {
				t.Error("event should be stored")
			}
			if len(result.Delivered) != len(test.wantDelivered) {
				t.Fatalf("delivered = %v, want %v", result.Delivered, test.wantDelivered)
			}
			for i, ch := range test.wantDelivered {
				if result.Delivered[i] != ch {
					t.Errorf("delivered[%d] = %q, want %q", i, result.Delivered[i], ch)
				}
			}
			if len(result.Failed) != len(test.wantFailed) {
				t.Fatalf("failed = %v, want %v", result.Failed, test.wantFailed)
			}
			for ch, want := range test.wantFailed {
				if !errors.Is(result.Failed[ch], want) {
					t.Errorf("failed[%q] = %v, want %v", ch, result.Failed[ch], want)
				}
			}
			if test.sms != nil && len(test.wantDelivered) > 1 && len(test.sms.Sent) != 1 {
				t.Errorf("sms sent %d times, want 1", len(test.sms.Sent))
			}
		})
	}
}

// Requirement: incomplete requests are rejected before anything is stored.
func TestDispatcher_Dispatch_InvalidRequest(t *testing.T) {
	storage := NewFakeStorageProvider()
	d := NewDispatcher(DispatcherConfig{Store: storage})

	_, err := d.Dispatch(context.Background(), core.NotificationRequest{UserID: "u1", Title: "no message"})

	if !errors.Is(err, core.ErrInvalidRequest) {
		t.Fatalf("Dispatch() error = %v, want ErrInvalidRequest", err)
	}
	if events, _ := storage.ListByUser(context.Background(), "u1"); len(events) != 0 {
		t.Errorf("nothing should be stored, got %v", events)
	}
}

// Requirement: an open manager of the recipient sees the dispatched event.
func TestDispatcher_ReachesOpenManager(t *testing.T) {
	storage := NewFakeStorageProvider()
	m := NewNotificationManager(storage, storage, NewSessionStore(&core.Session{SubjectID: "u1"}), NotificationOptions{})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Close()

	result, err := NewDispatcher(DispatcherConfig{Store: storage}).Dispatch(context.Background(), core.NotificationRequest{UserID: "u1", Title: "Lab", Message: "Results ready"})

	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if events := m.Events(); len(events) != 1 || events[0].ID != result.Event.ID {
		t.Errorf("events = %v", events)
	}
}
