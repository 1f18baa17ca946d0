package store

import (
	"errors"
	"fmt"
)

// Op names a store operation for error reporting.
type Op string

const (
	OpSelect    Op = "select"
	OpInsert    Op = "insert"
	OpDelete    Op = "delete"
	OpUpsert    Op = "upsert"
	OpSubscribe Op = "subscribe"
)

// ErrUnknownTable is returned for tables outside Tables.
var ErrUnknownTable = errors.New("unknown table")

// Error is the failure type of every store operation. Implementations
// never retry internally.
type Error struct {
	Op    Op
	Table Table
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns nil for a nil err and a *Error otherwise.
func Wrap(op Op, table Table, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Table: table, Err: err}
}
