package pgx

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/lborres/bantay/core"
)

func TestMapError(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"email taken", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"}, core.ErrUserExists},
		{"external id taken", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_provider_account_key"}, core.ErrExternalIDInUse},
		{"provider linked twice", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_user_provider_key"}, core.ErrAlreadyLinked},
		{"unknown unique constraint", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "other_key"}, core.ErrValidation},
		{"missing parent", &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}, core.ErrUserNotFound},
		{"serialization failure", &pgconn.PgError{Code: pgerrcode.SerializationFailure}, core.ErrUpstreamUnavailable},
		{"connection lost", &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, core.ErrUpstreamUnavailable},
		{"too many connections", &pgconn.PgError{Code: pgerrcode.TooManyConnections}, core.ErrUpstreamUnavailable},
		{"wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"}), core.ErrUserExists},
		{"canceled", context.Canceled, context.Canceled},
		{"other", boom, boom},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := mapError(test.err)
			if test.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, test.want)
		})
	}
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/bantay?sslmode=disable", migrateURL("postgres://u:p@db:5432/bantay?sslmode=disable"))
	assert.Equal(t, "pgx5://db/bantay", migrateURL("postgresql://db/bantay"))
	assert.Equal(t, "pgx5://db/bantay", migrateURL("pgx5://db/bantay"))
}
