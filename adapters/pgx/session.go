package pgx

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lborres/bantay/core"
)

const sessionColumns = `id, user_id, token_hash, ip_address, user_agent, expires_at, created_at, updated_at`

func scanSession(row pgx.Row) (*core.Session, error) {
	s := &core.Session{}
	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.IPAddress, &s.UserAgent, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (t *tx) CreateSession(ctx context.Context, session *core.Session) error {
	query := `INSERT INTO sessions (` + sessionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := t.q.Exec(ctx, query,
		session.ID, session.UserID, session.TokenHash, session.IPAddress, session.UserAgent,
		session.ExpiresAt, session.CreatedAt, session.UpdatedAt,
	)
	return mapError(err)
}

func (t *tx) GetSessionByHash(ctx context.Context, tokenHash string) (*core.Session, error) {
	return scanOne(ctx, t.q, core.ErrSessionNotFound, scanSession,
		`SELECT `+sessionColumns+` FROM sessions WHERE token_hash = $1`, tokenHash)
}

func (t *tx) GetSessionByID(ctx context.Context, id string) (*core.Session, error) {
	return scanOne(ctx, t.q, core.ErrSessionNotFound, scanSession,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
}

func (t *tx) GetUserSessions(ctx context.Context, userID string) ([]*core.Session, error) {
	return scanAll(ctx, t.q, scanSession,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1`, userID)
}

func (t *tx) UpdateSession(ctx context.Context, session *core.Session) error {
	return execOne(ctx, t.q, core.ErrSessionNotFound,
		`UPDATE sessions SET ip_address = $1, user_agent = $2, expires_at = $3, updated_at = $4 WHERE id = $5`,
		session.IPAddress, session.UserAgent, session.ExpiresAt, session.UpdatedAt, session.ID,
	)
}

func (t *tx) DeleteSessionByID(ctx context.Context, id string) error {
	return execOne(ctx, t.q, core.ErrSessionNotFound, `DELETE FROM sessions WHERE id = $1`, id)
}

func (t *tx) DeleteSessionByHash(ctx context.Context, tokenHash string) error {
	return execOne(ctx, t.q, core.ErrSessionNotFound, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
}

func (t *tx) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	return execCount(ctx, t.q, `DELETE FROM sessions WHERE user_id = $1`, userID)
}

func (t *tx) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	return execCount(ctx, t.q, `DELETE FROM sessions WHERE expires_at < $1`, now)
}
