// Package pgx is a PostgreSQL core.Storage backed by a pgxpool.Pool.
package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lborres/bantay/core"
)

// Ensure Adapter implements core.Storage
var _ core.Storage = (*Adapter)(nil)

type Adapter struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Adapter {
	return &Adapter{
		pool: pool,
	}
}

// Connect opens a pool for databaseURL and checks that it answers.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, core.ErrUpstreamUnavailable.Wrap(err)
	}
	return pool, nil
}

func (a *Adapter) WithTx(ctx context.Context, fn func(tx core.Tx) error) error {
	pgtx, err := a.pool.Begin(ctx)
	if err != nil {
		return mapError(err)
	}
	// no-op once committed
	defer pgtx.Rollback(context.WithoutCancel(ctx))

	if err := fn(&tx{q: pgtx}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// querier is the part of pgx.Tx the storage methods use.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type tx struct {
	q querier
}

// scanOne runs a single-row query, turning pgx.ErrNoRows into notFound.
func scanOne[T any](ctx context.Context, q querier, notFound error, scan func(pgx.Row) (*T, error), sql string, args ...any) (*T, error) {
	v, err := scan(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	return v, nil
}

func scanAll[T any](ctx context.Context, q querier, scan func(pgx.Row) (*T, error), sql string, args ...any) ([]*T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// execOne runs a statement that must touch exactly one row.
func execOne(ctx context.Context, q querier, notFound error, sql string, args ...any) error {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

func execCount(ctx context.Context, q querier, sql string, args ...any) (int, error) {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError(err)
	}
	return int(tag.RowsAffected()), nil
}
