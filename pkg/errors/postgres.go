package errors

import (
	stdErrors "errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGError is the driver-independent part of a Postgres error. Both pgx
// (gorm's driver) and lib/pq (goose's) surface these.
type PGError struct {
	SQLState   string
	Constraint string
	Table      string
	Detail     string
}

// Postgres finds the first Postgres server error in err's chain.
func Postgres(err error) (PGError, bool) {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return PGError{
			SQLState:   pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Detail:     pgxErr.Detail,
		}, true
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return PGError{
			SQLState:   string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Detail:     pqErr.Detail,
		}, true
	}
	return PGError{}, false
}

// Fields flattens err into structured log fields.
func Fields(err error) map[string]any {
	if err == nil {
		return nil
	}
	fields := map[string]any{}
	if typed := As(err); typed != nil {
		fields["error_code"] = string(typed.code)
		fields["retryable"] = MetadataFor(typed.code).Retryable
	}
	if pg, ok := Postgres(err); ok {
		fields["pg_sqlstate"] = pg.SQLState
		if pg.Constraint != "" {
			fields["pg_constraint"] = pg.Constraint
		}
		if pg.Table != "" {
			fields["pg_table"] = pg.Table
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
