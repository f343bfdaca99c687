package pgx

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/lborres/bantay/core"
)

const accountColumns = `id, user_id, provider_id, account_id, password, access_token, refresh_token, expires_at, created_at, updated_at`

func scanAccount(row pgx.Row) (*core.Account, error) {
	acc := &core.Account{}
	err := row.Scan(
		&acc.ID, &acc.UserID, &acc.ProviderID, &acc.AccountID, &acc.Password, &acc.AccessToken, &acc.RefreshToken, &acc.ExpiresAt, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (t *tx) CreateAccount(ctx context.Context, acc *core.Account) error {
	query := `INSERT INTO accounts (` + accountColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := t.q.Exec(ctx, query,
		acc.ID, acc.UserID, acc.ProviderID, acc.AccountID, acc.Password, acc.AccessToken, acc.RefreshToken, acc.ExpiresAt, acc.CreatedAt, acc.UpdatedAt,
	)
	err = mapError(err)
	if errors.Is(err, core.ErrAlreadyLinked) && acc.ProviderID == core.ProviderCredential {
		return core.ErrAlreadyHasCredential
	}
	return err
}

func (t *tx) GetUserAccounts(ctx context.Context, userID string) ([]*core.Account, error) {
	return scanAll(ctx, t.q, scanAccount,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY created_at, id`, userID)
}

func (t *tx) GetAccountByProvider(ctx context.Context, providerID, accountID string) (*core.Account, error) {
	return scanOne(ctx, t.q, core.ErrMethodNotFound, scanAccount,
		`SELECT `+accountColumns+` FROM accounts WHERE provider_id = $1 AND account_id = $2`, providerID, accountID)
}

func (t *tx) UpdateAccount(ctx context.Context, acc *core.Account) error {
	query := `UPDATE accounts SET account_id = $1, password = $2, access_token = $3, refresh_token = $4, expires_at = $5, updated_at = $6
	          WHERE id = $7`
	return execOne(ctx, t.q, core.ErrMethodNotFound, query,
		acc.AccountID, acc.Password, acc.AccessToken, acc.RefreshToken, acc.ExpiresAt, acc.UpdatedAt, acc.ID,
	)
}

func (t *tx) DeleteAccount(ctx context.Context, id string) error {
	return execOne(ctx, t.q, core.ErrMethodNotFound, `DELETE FROM accounts WHERE id = $1`, id)
}
