package pgx

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lborres/bantay/core"
)

const verificationColumns = `id, user_id, kind, payload, token_hash, attempts, issued_at, expires_at, consumed_at, superseded_at`

func scanVerification(row pgx.Row) (*core.Verification, error) {
	v := &core.Verification{}
	var kind string
	err := row.Scan(&v.ID, &v.UserID, &kind, &v.Payload, &v.TokenHash, &v.Attempts,
		&v.IssuedAt, &v.ExpiresAt, &v.ConsumedAt, &v.SupersededAt)
	if err != nil {
		return nil, err
	}
	v.Kind = core.VerificationKind(kind)
	return v, nil
}

func (t *tx) CreateVerification(ctx context.Context, v *core.Verification) error {
	query := `INSERT INTO verifications (` + verificationColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := t.q.Exec(ctx, query,
		v.ID, v.UserID, string(v.Kind), v.Payload, v.TokenHash, v.Attempts,
		v.IssuedAt, v.ExpiresAt, v.ConsumedAt, v.SupersededAt,
	)
	return mapError(err)
}

func (t *tx) LockVerification(ctx context.Context, tokenHash string) (*core.Verification, error) {
	return scanOne(ctx, t.q, core.ErrTokenNotFound, scanVerification,
		`SELECT `+verificationColumns+` FROM verifications WHERE token_hash = $1
		 ORDER BY issued_at DESC LIMIT 1 FOR UPDATE`, tokenHash)
}

func (t *tx) LockPendingVerification(ctx context.Context, userID string, kind core.VerificationKind) (*core.Verification, error) {
	return scanOne(ctx, t.q, core.ErrTokenNotFound, scanVerification,
		`SELECT `+verificationColumns+` FROM verifications
		 WHERE user_id = $1 AND kind = $2 AND consumed_at IS NULL AND superseded_at IS NULL
		 ORDER BY issued_at DESC LIMIT 1 FOR UPDATE`, userID, string(kind))
}

func (t *tx) UpdateVerification(ctx context.Context, v *core.Verification) error {
	return execOne(ctx, t.q, core.ErrTokenNotFound,
		`UPDATE verifications SET payload = $1, attempts = $2, consumed_at = $3, superseded_at = $4 WHERE id = $5`,
		v.Payload, v.Attempts, v.ConsumedAt, v.SupersededAt, v.ID,
	)
}

func (t *tx) SupersedeVerifications(ctx context.Context, userID string, kind core.VerificationKind, at time.Time) (int, error) {
	return execCount(ctx, t.q,
		`UPDATE verifications SET superseded_at = $1
		 WHERE user_id = $2 AND kind = $3 AND consumed_at IS NULL AND superseded_at IS NULL`,
		at, userID, string(kind))
}
