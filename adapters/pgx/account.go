package pgx

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lborres/pulsetrack/core"
)

const accountColumns = `id, user_id, provider_id, account_id, password, created_at, updated_at`

func (a *Adapter) CreateAccount(ctx context.Context, acc *core.Account) error {
	query := `INSERT INTO accounts (id, user_id, provider_id, account_id, password)
	          VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5)
	          RETURNING id, created_at, updated_at`

	var createdAt, updatedAt time.Time
	err := a.pool.QueryRow(ctx, query,
		acc.ID, acc.UserID, acc.ProviderID, acc.AccountID, acc.Password,
	).Scan(&acc.ID, &createdAt, &updatedAt)
	if err != nil {
		return err
	}

	acc.CreatedAt = createdAt
	acc.UpdatedAt = updatedAt
	return nil
}

func (a *Adapter) GetAccountByID(ctx context.Context, id string) (*core.Account, error) {
	acc := &core.Account{}
	err := a.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id).Scan(
		&acc.ID, &acc.UserID, &acc.ProviderID, &acc.AccountID, &acc.Password, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

func (a *Adapter) GetAccountByUserAndProvider(ctx context.Context, userID, providerID string) ([]*core.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 AND provider_id = $2`

	rows, err := a.pool.Query(ctx, query, userID, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*core.Account
	for rows.Next() {
		acc := &core.Account{}
		err := rows.Scan(&acc.ID, &acc.UserID, &acc.ProviderID, &acc.AccountID, &acc.Password, &acc.CreatedAt, &acc.UpdatedAt)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}

func (a *Adapter) UpdateAccount(ctx context.Context, acc *core.Account) error {
	query := `UPDATE accounts SET account_id = $1, password = $2, updated_at = now()
	          WHERE id = $3 RETURNING updated_at`

	var updatedAt time.Time
	err := a.pool.QueryRow(ctx, query, acc.AccountID, acc.Password, acc.ID).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errAccountNotFound
		}
		return err
	}

	acc.UpdatedAt = updatedAt
	return nil
}

func (a *Adapter) DeleteAccount(ctx context.Context, id string) error {
	_, err := a.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return err
}
