package db

import (
	"strings"

	pkgerrors "github.com/salesops/basket-engine/pkg/errors"
)

// SQLSTATEs meaning the transaction lost its row lock or a serialization race.
var lockFailureStates = map[string]bool{
	"55P03": true, // lock_not_available, raised by lock_timeout
	"40P01": true, // deadlock_detected
	"40001": true, // serialization_failure
	"57014": true, // query_canceled, raised by statement_timeout
}

// IsLockFailure reports whether err means the transaction could not take or
// keep its row lock. SQLite's busy error counts too, for tests.
func IsLockFailure(err error) bool {
	if err == nil {
		return false
	}
	if pg, ok := pkgerrors.Postgres(err); ok {
		return lockFailureStates[pg.SQLState]
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "deadlock")
}
