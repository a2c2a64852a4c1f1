package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lborres/pulsetrack/core"
)

// Dispatcher turns notification requests into stored events and delivers
// them over the requested channels.
type Dispatcher struct {
	store    core.NotificationStore
	profiles core.ProfileStore
	push     core.PushProvider
	sms      core.MessageTransport
	whatsapp core.MessageTransport
	logger   *slog.Logger
	now      func() time.Time
}

type DispatcherConfig struct {
	Store    core.NotificationStore
	Profiles core.ProfileStore
	Push     core.PushProvider
	SMS      core.MessageTransport
	WhatsApp core.MessageTransport
	Logger   *slog.Logger
}

// DispatchResult reports what happened on each channel. Channel failures
// do not fail the dispatch; the event is already stored.
type DispatchResult struct {
	Event     *core.NotificationEvent
	Delivered []core.Channel
	Failed    map[core.Channel]error
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:    cfg.Store,
		profiles: cfg.Profiles,
		push:     cfg.Push,
		sms:      cfg.SMS,
		whatsapp: cfg.WhatsApp,
		logger:   logger.With("component", "dispatcher"),
		now:      time.Now,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req core.NotificationRequest) (*DispatchResult, error) {
	if d.store == nil {
		return nil, core.ErrNotificationsNotConfigured
	}
	if req.UserID == "" || req.Title == "" || req.Message == "" {
		return nil, fmt.Errorf("%w: user_id, title and message are required", core.ErrInvalidRequest)
	}

	event := &core.NotificationEvent{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Title:     req.Title,
		Message:   req.Message,
		Type:      req.Type,
		Data:      req.Data,
		CreatedAt: d.now().UTC(),
	}
	if err := d.store.Insert(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}

	result := &DispatchResult{Event: event, Failed: make(map[core.Channel]error)}
	if len(req.Channels) == 0 {
		return result, nil
	}

	var profile *core.Profile
	seen := make(map[core.Channel]bool, len(req.Channels))
	for _, ch := range req.Channels {
		if seen[ch] {
			continue
		}
		seen[ch] = true

		if profile == nil {
			p, err := d.recipient(ctx, req.UserID)
			if err != nil {
				for _, rest := range req.Channels {
					result.Failed[rest] = err
				}
				d.logger.ErrorContext(ctx, "recipient lookup failed", "operation", "dispatch", "user_id", req.UserID, "error", err)
				return result, nil
			}
			profile = p
		}

		if err := d.deliver(ctx, ch, profile, event); err != nil {
			result.Failed[ch] = err
			d.logger.WarnContext(ctx, "delivery failed", "operation", "dispatch", "channel", ch, "notification_id", event.ID, "error", err)
			continue
		}
		result.Delivered = append(result.Delivered, ch)
	}

	d.logger.InfoContext(ctx, "notification dispatched", "operation", "dispatch", "notification_id", event.ID, "delivered", len(result.Delivered), "failed", len(result.Failed))
	return result, nil
}

func (d *Dispatcher) recipient(ctx context.Context, userID string) (*core.Profile, error) {
	if d.profiles == nil {
		return nil, core.ErrProfilesNotConfigured
	}
	return d.profiles.GetProfile(ctx, userID)
}

func (d *Dispatcher) deliver(ctx context.Context, ch core.Channel, profile *core.Profile, event *core.NotificationEvent) error {
	body := event.Title + "\n" + event.Message

	switch ch {
	case core.ChannelPush:
		if d.push == nil {
			return core.ErrPushNotConfigured
		}
		if profile.NotificationToken == nil || *profile.NotificationToken == "" {
			return core.ErrNoRecipient
		}
		return d.push.Send(ctx, *profile.NotificationToken, core.PushMessage{
			Title: event.Title,
			Body:  event.Message,
			Data:  map[string]string{"notification_id": event.ID, "type": event.Type},
		})
	case core.ChannelSMS:
		return sendText(ctx, d.sms, profile, body)
	case core.ChannelWhatsApp:
		return sendText(ctx, d.whatsapp, profile, body)
	default:
		return fmt.Errorf("%w: unknown channel %q", core.ErrInvalidRequest, ch)
	}
}

func sendText(ctx context.Context, transport core.MessageTransport, profile *core.Profile, body string) error {
	if transport == nil {
		return core.ErrTransportNotConfigured
	}
	if profile.Phone == nil || *profile.Phone == "" {
		return core.ErrNoRecipient
	}
	_, err := transport.Send(ctx, *profile.Phone, body)
	return err
}
