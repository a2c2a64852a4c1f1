package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lborres/pulsetrack/core"
)

var ErrManagerClosed = errors.New("notification manager is closed")

type NotificationOptions struct {
	Push       core.PushProvider
	Permission core.PermissionRequester
	VAPIDKey   string
	// OnForeground receives push messages delivered while the manager is
	// open. They are not added to the event sequence.
	OnForeground func(core.PushMessage)
	// OnChange receives a snapshot after every change to the sequence.
	OnChange func([]core.NotificationEvent)
	Logger   *slog.Logger
}

// NotificationManager keeps the live, newest-first event sequence of the
// current subject of a SessionStore.
type NotificationManager struct {
	store    core.NotificationStore
	profiles core.ProfileStore
	sessions *SessionStore
	opts     NotificationOptions
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.RWMutex
	subject    string
	events     []core.NotificationEvent
	token      string
	permission core.Permission

	// procMu serializes subject transitions.
	procMu sync.Mutex

	lifeMu          sync.Mutex
	started         bool
	closed          atomic.Bool
	unsubSession    core.Disposer
	unsubFeed       core.Disposer
	unsubForeground core.Disposer
	cancel          context.CancelFunc

	pendingMu  sync.Mutex
	pending    string
	hasPending bool
	wake       chan struct{}
	done       chan struct{}
}

func NewNotificationManager(store core.NotificationStore, profiles core.ProfileStore, sessions *SessionStore, opts NotificationOptions) *NotificationManager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationManager{
		store:      store,
		profiles:   profiles,
		sessions:   sessions,
		opts:       opts,
		logger:     logger.With("component", "notification_manager"),
		now:        time.Now,
		permission: core.PermissionDefault,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Start subscribes to session changes and the foreground channel, and
// loads the feed of the current subject before returning.
func (m *NotificationManager) Start(ctx context.Context) error {
	if m.store == nil {
		return core.ErrNotificationsNotConfigured
	}

	m.lifeMu.Lock()
	if m.closed.Load() {
		m.lifeMu.Unlock()
		return ErrManagerClosed
	}
	if m.started {
		m.lifeMu.Unlock()
		return nil
	}
	m.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel

	m.unsubSession = m.sessions.Subscribe(func(s *core.Session) {
		subject := ""
		if s != nil {
			subject = s.SubjectID
		}
		m.enqueue(subject)
	})

	if m.opts.Push != nil {
		m.unsubForeground = m.opts.Push.OnForegroundMessage(func(msg core.PushMessage) {
			if m.closed.Load() || m.opts.OnForeground == nil {
				return
			}
			m.opts.OnForeground(msg)
		})
	}
	m.lifeMu.Unlock()

	m.switchSubject(ctx, m.sessions.SubjectID())

	go m.loop(runCtx)
	return nil
}

func (m *NotificationManager) enqueue(subject string) {
	m.pendingMu.Lock()
	m.pending = subject
	m.hasPending = true
	m.pendingMu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *NotificationManager) loop(ctx context.Context) {
	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
			m.pendingMu.Lock()
			subject, ok := m.pending, m.hasPending
			m.hasPending = false
			m.pendingMu.Unlock()
			if ok {
				m.switchSubject(ctx, subject)
			}
		}
	}
}

// switchSubject tears down the current feed and, for a concrete subject,
// fetches its events once and opens one feed subscription.
func (m *NotificationManager) switchSubject(ctx context.Context, subject string) {
	m.procMu.Lock()
	defer m.procMu.Unlock()

	if m.closed.Load() {
		return
	}

	m.mu.RLock()
	current := m.subject
	m.mu.RUnlock()
	if subject == current {
		return
	}

	m.lifeMu.Lock()
	unsub := m.unsubFeed
	m.unsubFeed = nil
	m.lifeMu.Unlock()
	if unsub != nil {
		unsub()
	}

	m.mu.Lock()
	m.subject = subject
	m.events = nil
	m.mu.Unlock()
	m.changed()

	if subject == "" {
		return
	}

	events, err := m.store.ListByUser(ctx, subject)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to fetch notifications", "operation", "list", "subject_id", subject, "error", err)
	} else {
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].CreatedAt.After(events[j].CreatedAt)
		})
		m.mu.Lock()
		m.events = events
		m.mu.Unlock()
		m.changed()
	}

	feed, err := m.store.SubscribeInserts(ctx, subject, func(e core.NotificationEvent) {
		m.onInsert(subject, e)
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to subscribe to notifications", "operation", "subscribe", "subject_id", subject, "error", err)
		return
	}

	m.lifeMu.Lock()
	if m.closed.Load() {
		m.lifeMu.Unlock()
		feed()
		return
	}
	m.unsubFeed = feed
	m.lifeMu.Unlock()
}

func (m *NotificationManager) onInsert(subject string, e core.NotificationEvent) {
	if m.closed.Load() || e.UserID != subject {
		return
	}

	m.mu.Lock()
	if m.subject != subject {
		m.mu.Unlock()
		return
	}
	for _, existing := range m.events {
		if existing.ID == e.ID {
			m.mu.Unlock()
			return
		}
	}
	m.events = append([]core.NotificationEvent{e}, m.events...)
	m.mu.Unlock()

	m.changed()
}

func (m *NotificationManager) changed() {
	if m.opts.OnChange == nil || m.closed.Load() {
		return
	}
	m.opts.OnChange(m.Events())
}

// Events returns a copy of the sequence, newest first.
func (m *NotificationManager) Events() []core.NotificationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.NotificationEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *NotificationManager) SubjectID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subject
}

func (m *NotificationManager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *NotificationManager) Permission() core.Permission {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.permission
}

// RequestPermission asks for notification permission and, once granted,
// obtains a registration token and saves it on the subject's profile.
// Denial, an unsupported platform and a missing provider all yield
// ("", false); only the log tells them apart.
func (m *NotificationManager) RequestPermission(ctx context.Context) (string, bool) {
	if m.opts.Permission == nil || m.opts.Push == nil {
		m.logger.InfoContext(ctx, "notifications unsupported", "operation", "request_permission", "outcome", "unsupported")
		return "", false
	}

	perm, err := m.opts.Permission.RequestPermission(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "permission request failed", "operation", "request_permission", "error", err)
		return "", false
	}

	m.mu.Lock()
	m.permission = perm
	m.mu.Unlock()

	if perm != core.PermissionGranted {
		m.logger.InfoContext(ctx, "notification permission not granted", "operation", "request_permission", "outcome", string(perm))
		return "", false
	}

	token, err := m.opts.Push.RegistrationToken(ctx, m.opts.VAPIDKey)
	if err != nil || token == "" {
		m.logger.ErrorContext(ctx, "no registration token", "operation", "request_permission", "error", err)
		return "", false
	}

	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	if subject := m.sessions.SubjectID(); subject != "" && m.profiles != nil {
		patch := core.ProfilePatch{NotificationToken: &token, UpdatedAt: m.now().UTC()}
		if err := m.profiles.UpdateProfile(ctx, subject, patch); err != nil {
			m.logger.ErrorContext(ctx, "failed to save notification token", "operation", "request_permission", "subject_id", subject, "error", err)
		}
	}

	return token, true
}

// MarkAsRead sets read on the stored event, then on the cached copy. The
// cached copy is flipped even when the store update fails; that error is
// still returned.
func (m *NotificationManager) MarkAsRead(ctx context.Context, id string) error {
	subject := m.SubjectID()
	if subject == "" {
		return core.ErrNotLoggedIn
	}

	err := m.store.MarkRead(ctx, subject, id)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to mark notification read", "operation", "mark_read", "notification_id", id, "error", err)
	}

	m.markLocal(id)
	return err
}

// markLocal flips read on the cached copy of id without moving it.
func (m *NotificationManager) markLocal(id string) bool {
	m.mu.Lock()
	flipped := false
	for i := range m.events {
		if m.events[i].ID == id && !m.events[i].Read {
			m.events[i].Read = true
			flipped = true
			break
		}
	}
	m.mu.Unlock()

	if flipped {
		m.changed()
	}
	return flipped
}

// Close releases the session subscription, the feed and the foreground
// listener, each exactly once. It is safe to call more than once.
func (m *NotificationManager) Close() {
	m.lifeMu.Lock()
	if m.closed.Swap(true) {
		m.lifeMu.Unlock()
		return
	}
	unsubSession, unsubFeed, unsubForeground := m.unsubSession, m.unsubFeed, m.unsubForeground
	m.unsubSession, m.unsubFeed, m.unsubForeground = nil, nil, nil
	cancel := m.cancel
	m.lifeMu.Unlock()

	close(m.done)

	for _, dispose := range []core.Disposer{unsubSession, unsubFeed, unsubForeground} {
		if dispose != nil {
			dispose()
		}
	}
	if cancel != nil {
		cancel()
	}
}

// StaticPermission answers every permission request with itself. The HTTP
// layer uses it to relay the answer the client's platform already gave.
type StaticPermission core.Permission

func (p StaticPermission) RequestPermission(context.Context) (core.Permission, error) {
	return core.Permission(p), nil
}
