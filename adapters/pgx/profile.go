package pgx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lborres/pulsetrack/core"
)

func (a *Adapter) CreateProfile(ctx context.Context, p *core.Profile) error {
	query := `INSERT INTO profiles (id, email, first_name, last_name, role, phone, preferred_language, notification_token, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	if p.PreferredLanguage == "" {
		p.PreferredLanguage = core.DefaultPreferredLanguage
	}

	_, err := a.pool.Exec(ctx, query,
		p.ID, p.Email, p.FirstName, p.LastName, p.Role, p.Phone, p.PreferredLanguage, p.NotificationToken, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrUserExists
		}
		return err
	}
	return nil
}

func (a *Adapter) GetProfile(ctx context.Context, id string) (*core.Profile, error) {
	query := `SELECT id, email, first_name, last_name, role, phone, preferred_language, notification_token, created_at, updated_at
	          FROM profiles WHERE id = $1`

	p := &core.Profile{}
	err := a.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Role, &p.Phone, &p.PreferredLanguage, &p.NotificationToken, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrProfileNotFound
		}
		return nil, err
	}
	return p, nil
}

func (a *Adapter) UpdateProfile(ctx context.Context, id string, patch core.ProfilePatch) error {
	query, args := profileUpdateQuery(id, patch)
	tag, err := a.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrProfileNotFound
	}
	return nil
}

// profileUpdateQuery builds an UPDATE touching only the columns set in
// patch. updated_at is always written.
func profileUpdateQuery(id string, patch core.ProfilePatch) (string, []any) {
	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.FirstName != nil {
		set("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		set("last_name", *patch.LastName)
	}
	if patch.Phone != nil {
		set("phone", *patch.Phone)
	}
	if patch.PreferredLanguage != nil {
		set("preferred_language", *patch.PreferredLanguage)
	}
	if patch.NotificationToken != nil {
		set("notification_token", *patch.NotificationToken)
	}

	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	set("updated_at", updatedAt)

	args = append(args, id)
	query := fmt.Sprintf("UPDATE profiles SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	return query, args
}
