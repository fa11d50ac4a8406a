package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nsvirk/tickcollector/internal/errs"
)

// RowFailure names one row of a batch that could not be written and the
// classified reason, by its index into the slice the caller submitted.
type RowFailure struct {
	Index int
	Err   error
}

// classifyWriteError wraps a raw GORM/pgx write error as errs.Permanent or
// errs.Transient per the taxonomy in spec §7, so the Batch Writer's
// retry/DLQ policy (spec §4.6) can tell a constraint violation (drop the
// row, keep going) from a connection-level failure (retry the batch).
func classifyWriteError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "23", "22": // integrity_constraint_violation, data_exception
			return errs.NewPermanent(op, err)
		}
		// serialization_failure (40001), deadlock_detected (40P01),
		// connection_exception (08xxx) and anything else the server itself
		// reports is treated as transient -- retry rather than drop.
		return errs.NewTransient(op, err)
	}

	// Errors that never make it to a *pgconn.PgError -- connection resets,
	// dial timeouts, context deadlines -- are network-level and transient.
	return errs.NewTransient(op, err)
}
