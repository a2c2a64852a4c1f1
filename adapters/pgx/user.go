package pgx

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lborres/pulsetrack/core"
)

const userColumns = `id, email, email_verified, first_name, last_name, role, created_at, updated_at`

func scanUser(row pgx.Row) (*core.User, error) {
	user := &core.User{}
	err := row.Scan(&user.ID, &user.Email, &user.EmailVerified, &user.FirstName, &user.LastName, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (a *Adapter) CreateUser(ctx context.Context, user *core.User) error {
	query := `INSERT INTO users (email, email_verified, first_name, last_name, role)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id, created_at, updated_at`

	var id string
	var createdAt, updatedAt time.Time
	err := a.pool.QueryRow(ctx, query, user.Email, user.EmailVerified, user.FirstName, user.LastName, user.Role).Scan(&id, &createdAt, &updatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrUserExists
		}
		return err
	}

	user.ID = id
	user.CreatedAt = createdAt
	user.UpdatedAt = updatedAt
	return nil
}

func (a *Adapter) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	return scanUser(a.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (a *Adapter) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return scanUser(a.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (a *Adapter) UpdateUser(ctx context.Context, user *core.User) error {
	q := `UPDATE users SET email = $1, email_verified = $2, first_name = $3, last_name = $4, role = $5, updated_at = now()
	      WHERE id = $6 RETURNING updated_at`
	var updatedAt time.Time
	err := a.pool.QueryRow(ctx, q, user.Email, user.EmailVerified, user.FirstName, user.LastName, user.Role, user.ID).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.ErrUserNotFound
		}
		if isUniqueViolation(err) {
			return core.ErrUserExists
		}
		return err
	}
	user.UpdatedAt = updatedAt
	return nil
}

func (a *Adapter) DeleteUser(ctx context.Context, id string) error {
	_, err := a.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}
