package batch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind classifies the single terminal error of a batch.
type ErrorKind string

const (
	KindInput      ErrorKind = "input"
	KindConflict   ErrorKind = "conflict"
	KindConnection ErrorKind = "connection"
	KindTxStart    ErrorKind = "tx_start"
	KindStorage    ErrorKind = "storage"
	KindCommit     ErrorKind = "commit"
)

// Error is the only error type Submit returns.
type Error struct {
	Kind   ErrorKind
	Reason string // human readable, safe to show to the caller
	ItemID int64  // zero when the error is not tied to one item
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the error kind to the HTTP status a handler should answer with.
func (e *Error) Status() int {
	switch e.Kind {
	case KindInput:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// NewInputError builds a client error for input rejected outside the engine,
// such as an unreadable upload.
func NewInputError(format string, args ...any) *Error {
	return inputError(0, format, args...)
}

func inputError(itemID int64, format string, args ...any) *Error {
	return &Error{Kind: KindInput, ItemID: itemID, Reason: fmt.Sprintf(format, args...)}
}

// storageError wraps a resolve or write failure, promoting constraint
// violations to conflicts and rejected values to input errors.
func storageError(itemID int64, reason string, err error) *Error {
	kind := KindStorage
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			kind = KindConflict
			reason = fmt.Sprintf("record for item %d already exists", itemID)
		case "23503": // foreign_key_violation
			kind = KindConflict
			reason = fmt.Sprintf("item %d references a missing row", itemID)
		default:
			// Class 22 is data_exception: out of range, bad format, too long.
			if strings.HasPrefix(pgErr.Code, "22") {
				kind = KindInput
				reason = fmt.Sprintf("invalid value for item %d", itemID)
			}
		}
	}
	return &Error{Kind: kind, ItemID: itemID, Reason: reason, Err: err}
}

// StatusOf returns the HTTP status for any error produced by this package,
// and 500 for anything else.
func StatusOf(err error) int {
	var be *Error
	if errors.As(err, &be) {
		return be.Status()
	}
	return http.StatusInternalServerError
}

// ReasonOf returns the caller-facing reason of err.
func ReasonOf(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Reason
	}
	return "internal error"
}
