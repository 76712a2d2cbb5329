// Package errs defines the error taxonomy shared by the repositories, the
// order engine and the HTTP layer. Driver failures are classified into kinds
// by MySQL error number so callers never match on message text.
package errs

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

type Kind int

const (
	// Unknown covers errors produced outside this package.
	Unknown Kind = iota
	InvalidInput
	NotFound
	Conflict
	InsufficientStock
	LockWaitTimeout
	Database
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case InsufficientStock:
		return "insufficient_stock"
	case LockWaitTimeout:
		return "lock_wait_timeout"
	case Database:
		return "database_error"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a kinded error with a formatted message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of err, walking the wrap chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is lets errors.Is match on kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// MySQL server error numbers the engine cares about.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
	mysqlFKParentMissing = 1452
	mysqlFKRowReferenced = 1451
)

// Classify maps a driver error onto the taxonomy. Non-MySQL errors and
// unrecognized numbers come back as Database errors carrying the statement
// class for context; bound parameters are never included.
func Classify(err error, stmtClass string) *Error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return Wrap(Conflict, err, "%s: duplicate key", stmtClass)
		case mysqlLockWaitTimeout, mysqlDeadlock:
			return Wrap(LockWaitTimeout, err, "%s: lock contention", stmtClass)
		case mysqlFKRowReferenced:
			return Wrap(Conflict, err, "%s: row is referenced by other rows", stmtClass)
		case mysqlFKParentMissing:
			return Wrap(Conflict, err, "%s: referenced row does not exist", stmtClass)
		}
	}
	return Wrap(Database, err, "%s failed", stmtClass)
}
