package repository

import (
	ierr "pluto/internal/errors"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres SQLSTATEs
const (
	pgUniqueViolation = "23505"
	pgNumericOverflow = "22003"
)

// translateError maps driver and gorm errors onto the domain error kinds.
// Unique violations can only come from the partition indexes, so they are
// reported as overlap conflicts.
func translateError(err error, entity string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ierr.WithError(err).
			WithHintf("%s not found", entity).
			Mark(ierr.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ierr.WithError(err).
			WithHint("tax rule overlaps an existing rule in the same partition").
			WithReportableDetails(map[string]any{"constraint": pgErr.ConstraintName}).
			Mark(ierr.ErrOverlapConflict)
	}

	if errors.As(err, &pgErr) && pgErr.Code == pgNumericOverflow {
		return ierr.WithError(err).
			WithHint("rate is out of range").
			Mark(ierr.ErrValidation)
	}

	return ierr.WithError(err).
		WithHintf("failed to access %s", entity).
		Mark(ierr.ErrDatabase)
}

func notFound(entity string) error {
	return ierr.NewError(entity + " not found").
		WithHintf("%s not found", entity).
		Mark(ierr.ErrNotFound)
}
