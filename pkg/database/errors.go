package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"net"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/pkg/errors"
)

// ErrorKind classifies a relational store failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindPoolTimeout: no pooled connection became available in time. Retryable.
	KindPoolTimeout
	// KindConstraint: key, foreign key, not-null or check violation.
	KindConstraint
	// KindData: a value the store could not convert or store.
	KindData
	// KindConnectivity: the store is unreachable or dropped the session.
	KindConnectivity
)

func (k ErrorKind) String() string {
	switch k {
	case KindPoolTimeout:
		return "pool_timeout"
	case KindConstraint:
		return "constraint"
	case KindData:
		return "data"
	case KindConnectivity:
		return "connectivity"
	default:
		return "unknown"
	}
}

// StoreError is returned by every loader operation that fails.
type StoreError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err, classifying it from the driver error it carries.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Kind: Classify(err), Op: op, Err: err}
}

// KindOf extracts the kind of a StoreError anywhere in the chain.
func KindOf(err error) ErrorKind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return Classify(err)
}

// IsRetryable reports whether the caller may simply try again.
func IsRetryable(err error) bool {
	return KindOf(err) == KindPoolTimeout
}

// Classify maps driver errors of lib/pq, go-mssqldb and go-sqlite3 onto kinds.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "23":
			return KindConstraint
		case "22":
			return KindData
		case "08", "57":
			return KindConnectivity
		}
		return KindUnknown
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		switch msErr.Number {
		case 2627, 2601, 547, 515:
			return KindConstraint
		case 241, 242, 245, 8114, 8115, 8152, 2628:
			return KindData
		}
		return KindUnknown
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrConstraint:
			return KindConstraint
		case sqlite3.ErrMismatch, sqlite3.ErrRange, sqlite3.ErrTooBig:
			return KindData
		case sqlite3.ErrCantOpen, sqlite3.ErrNotADB:
			return KindConnectivity
		}
		return KindUnknown
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindConnectivity
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnectivity
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindConnectivity
	}
	return KindUnknown
}
