package fiber

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/pulsetrack"
	"github.com/lborres/pulsetrack/core"
	"github.com/lborres/pulsetrack/services"
)

// handleStreamNotificationsFiber streams the caller's notification
// sequence as server-sent events. Every change sends the full snapshot;
// a slow client only ever sees the latest one.
//
// The session is re-validated before every write and on a timer. Once it
// is revoked or expired the stream clears its session store, sends a
// session_ended event and closes.
func handleStreamNotificationsFiber(app *pulsetrack.App, streams context.Context, cfg Config) func(*core.RequestContext) error {
	return func(ctx *core.RequestContext) error {
		fctx := ctx.Request.(fiber.Ctx)

		if app.Notifications == nil {
			return handleAuthError(fctx, core.ErrNotificationsNotConfigured)
		}
		session := ctx.Session

		snapshots := make(chan []core.NotificationEvent, 1)
		publish := func(events []core.NotificationEvent) {
			if events == nil {
				events = []core.NotificationEvent{}
			}
			for {
				select {
				case snapshots <- events:
					return
				default:
				}
				// Drop the stale snapshot and retry
				select {
				case <-snapshots:
				default:
				}
			}
		}

		// Foreground pushes are forwarded only when addressed to the token
		// saved on the caller's profile.
		pushes := make(chan core.PushMessage, 16)
		token := profileToken(fctx.Context(), app, session.SubjectID)
		forward := func(msg core.PushMessage) {
			if token == "" || msg.Token != token {
				return
			}
			select {
			case pushes <- msg:
			default:
			}
		}

		store := services.NewSessionStore(session)
		manager := app.NewNotificationManager(store, services.NotificationOptions{
			OnChange:     publish,
			OnForeground: forward,
		})

		// The stream outlives the request handler. Its context ends with the
		// adapter.
		streamCtx, cancel := context.WithCancel(streams)
		if err := manager.Start(streamCtx); err != nil {
			cancel()
			return handleAuthError(fctx, err)
		}
		unregister := app.Hub.Register(session.SubjectID, manager)
		publish(manager.Events())

		logger := app.Logger.With("component", "notification_stream", "subject_id", session.SubjectID)

		// live reports why the session no longer stands, or nil. A dead
		// session clears the store, which tears down the feed.
		live := func() error {
			current, err := app.Identity.GetSession(streamCtx, session.Token)
			if err == nil && current.Expired(time.Now()) {
				err = core.ErrSessionExpired
			}
			if err != nil {
				store.Clear()
			}
			return err
		}

		fctx.Set(fiber.HeaderContentType, "text/event-stream")
		fctx.Set(fiber.HeaderCacheControl, "no-cache")
		fctx.Set(fiber.HeaderConnection, "keep-alive")

		return fctx.SendStreamWriter(func(w *bufio.Writer) {
			outcome := "closed"
			defer func() {
				unregister()
				manager.Close()
				cancel()
				logger.Debug("stream closed", "operation", "stream", "outcome", outcome)
			}()

			heartbeat := time.NewTicker(cfg.StreamHeartbeat)
			defer heartbeat.Stop()
			check := time.NewTicker(cfg.SessionCheckInterval)
			defer check.Stop()
			expiry := time.NewTimer(time.Until(session.ExpiresAt))
			defer expiry.Stop()

			ended := func(err error) {
				outcome = "session_ended"
				logger.Info("session ended, closing stream", "operation", "stream", "error", err)
				_ = writeEvent(w, "session_ended", core.ErrorResponse{Error: err.Error()})
			}

			for {
				var err error
				select {
				case events := <-snapshots:
					if err = live(); err != nil {
						ended(err)
						return
					}
					err = writeEvent(w, "notifications", events)
				case msg := <-pushes:
					if err = live(); err != nil {
						ended(err)
						return
					}
					err = writeEvent(w, "push", msg)
				case <-check.C:
					if err = live(); err != nil {
						ended(err)
						return
					}
				case <-expiry.C:
					store.Clear()
					ended(core.ErrSessionExpired)
					return
				case <-heartbeat.C:
					err = writeComment(w, "ping")
				case <-streamCtx.Done():
					return
				}
				if err != nil {
					return
				}
			}
		})
	}
}

func profileToken(ctx context.Context, app *pulsetrack.App, subjectID string) string {
	if app.Profiles == nil {
		return ""
	}
	profile, err := app.Profiles.GetProfile(ctx, subjectID)
	if err != nil || profile.NotificationToken == nil {
		return ""
	}
	return *profile.NotificationToken
}

func writeEvent(w *bufio.Writer, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return w.Flush()
}

func writeComment(w *bufio.Writer, text string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", text); err != nil {
		return err
	}
	return w.Flush()
}
