package pgx

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lborres/pulsetrack/core"
)

const notificationColumns = `id, user_id, title, message, read, created_at, type, data`

func scanNotification(row pgx.Row) (core.NotificationEvent, error) {
	var e core.NotificationEvent
	var data []byte
	err := row.Scan(&e.ID, &e.UserID, &e.Title, &e.Message, &e.Read, &e.CreatedAt, &e.Type, &data)
	if len(data) > 0 {
		e.Data = data
	}
	return e, err
}

func (a *Adapter) ListByUser(ctx context.Context, userID string) ([]core.NotificationEvent, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := a.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []core.NotificationEvent{}
	for rows.Next() {
		e, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (a *Adapter) Insert(ctx context.Context, e *core.NotificationEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var data []byte
	if len(e.Data) > 0 {
		data = e.Data
	}

	query := `INSERT INTO notifications (id, user_id, title, message, read, created_at, type, data)
	          VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7, $8)
	          RETURNING id`
	return a.pool.QueryRow(ctx, query,
		e.ID, e.UserID, e.Title, e.Message, e.Read, e.CreatedAt, e.Type, data,
	).Scan(&e.ID)
}

func (a *Adapter) MarkRead(ctx context.Context, userID, id string) error {
	tag, err := a.pool.Exec(ctx, `UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotificationNotFound
	}
	return nil
}

func (a *Adapter) SubscribeInserts(ctx context.Context, userID string, fn func(core.NotificationEvent)) (core.Disposer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.listener.Subscribe(userID, fn), nil
}

func (a *Adapter) getNotification(ctx context.Context, id string) (core.NotificationEvent, error) {
	e, err := scanNotification(a.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return e, core.ErrNotificationNotFound
	}
	return e, err
}
