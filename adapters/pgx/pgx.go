package pgx

import (
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lborres/pulsetrack/core"
)

const uniqueViolation = "23505"

var (
	errAccountNotFound  = errors.New("account not found")
	errMalformedPayload = errors.New("notification payload missing id or user_id")
)

type Adapter struct {
	pool     *pgxpool.Pool
	listener *Listener
}

var _ core.Storage = (*Adapter)(nil)

func New(pool *pgxpool.Pool, logger ...*slog.Logger) *Adapter {
	l := slog.Default()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	a := &Adapter{pool: pool}
	a.listener = NewListener(pool, NotificationChannel, a.getNotification, l)
	return a
}

// Close stops the notification listener. The pool belongs to the caller.
func (a *Adapter) Close() {
	a.listener.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
