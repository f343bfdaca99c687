package pgx

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lborres/bantay/core"
)

// constraintErrors maps unique constraints to the domain conflict they mean.
var constraintErrors = map[string]error{
	"users_email_key":               core.ErrUserExists,
	"accounts_provider_account_key": core.ErrExternalIDInUse,
	"accounts_user_provider_key":    core.ErrAlreadyLinked,
}

// mapError translates driver errors into domain errors. Unknown errors pass through.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation:
			if mapped, ok := constraintErrors[pgErr.ConstraintName]; ok {
				return mapped
			}
			return core.ErrValidation.WithMessage("duplicate value").Wrap(err)
		case pgErr.Code == pgerrcode.ForeignKeyViolation:
			return core.ErrUserNotFound
		case pgErr.Code == pgerrcode.SerializationFailure, pgErr.Code == pgerrcode.DeadlockDetected:
			return core.ErrUpstreamUnavailable.WithMessage("transaction conflict, retry").Wrap(err)
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsInsufficientResources(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code):
			return core.ErrUpstreamUnavailable.Wrap(err)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) || pgconn.Timeout(err) {
		return core.ErrUpstreamUnavailable.Wrap(err)
	}
	return err
}
