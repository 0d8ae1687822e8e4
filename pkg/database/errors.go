package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// StoreError wraps a storage failure with an explicit retryability flag set by
// this adapter, so callers never classify errors by message text.
type StoreError struct {
	Op        string
	Retryable bool
	Err       error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying driver error.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Classify wraps a database error as a StoreError, deciding retryability from
// the driver's SQLSTATE rather than the message. Nil errors and sql.ErrNoRows
// pass through untouched so callers keep their not-found handling.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return &StoreError{Op: op, Retryable: retryable(err), Err: err}
}

// IsRetryable reports whether the error is a transient storage failure worth
// retrying. It understands StoreError wrappers as well as raw driver errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StoreError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return retryable(err)
}

func retryable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch code {
		case "40001": // serialization_failure
			return true
		case "40P01": // deadlock_detected
			return true
		case "55P03": // lock_not_available
			return true
		case "57014": // query_canceled (statement timeout)
			return true
		}
		// Class 08: connection exceptions.
		if strings.HasPrefix(code, "08") {
			return true
		}
	}

	return false
}
