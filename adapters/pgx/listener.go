package pgx

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lborres/pulsetrack/core"
)

// NotificationChannel is the LISTEN channel the insert trigger notifies on.
const NotificationChannel = "notifications_insert"

const (
	minReconnectDelay = 250 * time.Millisecond
	maxReconnectDelay = 10 * time.Second
)

// insertPayload is what the trigger sends. The row itself is fetched by id
// because pg_notify payloads are capped at 8000 bytes.
type insertPayload struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

type fetchFunc func(ctx context.Context, id string) (core.NotificationEvent, error)

type subscription struct {
	userID string
	fn     func(core.NotificationEvent)
}

// Listener holds one LISTEN connection and fans notifications out to
// per-subject subscribers. It starts on the first Subscribe.
type Listener struct {
	pool    *pgxpool.Pool
	channel string
	fetch   fetchFunc
	logger  *slog.Logger

	mu      sync.Mutex
	subs    map[uint64]subscription
	next    uint64
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewListener(pool *pgxpool.Pool, channel string, fetch fetchFunc, logger *slog.Logger) *Listener {
	return &Listener{
		pool:    pool,
		channel: channel,
		fetch:   fetch,
		logger:  logger,
		subs:    make(map[uint64]subscription),
	}
}

func (l *Listener) Subscribe(userID string, fn func(core.NotificationEvent)) core.Disposer {
	l.mu.Lock()
	id := l.next
	l.next++
	l.subs[id] = subscription{userID: userID, fn: fn}
	if !l.started && l.pool != nil {
		ctx, cancel := context.WithCancel(context.Background())
		l.started = true
		l.cancel = cancel
		done := make(chan struct{})
		l.done = done
		go l.run(ctx, done)
	}
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		})
	}
}

func (l *Listener) Close() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.started = false
	l.cancel = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// run closes done on return. A restarted listener gets a new channel, so
// run must not read l.done.
func (l *Listener) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	delay := minReconnectDelay
	for ctx.Err() == nil {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("notification listener disconnected", "channel", l.channel, "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return err
	}
	l.logger.Debug("listening for notifications", "channel", l.channel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.handle(ctx, n.Payload)
	}
}

func (l *Listener) handle(ctx context.Context, raw string) {
	payload, err := decodePayload(raw)
	if err != nil {
		l.logger.Warn("dropping malformed notification payload", "error", err)
		return
	}

	targets := l.subscribers(payload.UserID)
	if len(targets) == 0 {
		return
	}

	event, err := l.fetch(ctx, payload.ID)
	if err != nil {
		l.logger.Error("failed to load inserted notification", "id", payload.ID, "error", err)
		return
	}
	for _, fn := range targets {
		fn(event)
	}
}

func (l *Listener) subscribers(userID string) []func(core.NotificationEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var fns []func(core.NotificationEvent)
	for _, s := range l.subs {
		if s.userID == userID {
			fns = append(fns, s.fn)
		}
	}
	return fns
}

func decodePayload(raw string) (insertPayload, error) {
	var p insertPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, err
	}
	if p.ID == "" || p.UserID == "" {
		return p, errMalformedPayload
	}
	return p, nil
}
