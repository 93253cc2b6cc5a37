package persistence

import (
	"errors"
	"fmt"
)

// ErrResultShape is matched by every ResultShapeError.
var ErrResultShape = errors.New("unexpected result shape")

// ConnectionError reports that a backing store could not be opened. Fatal.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("open store %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SchemaError reports a failed table creation. Fatal.
type SchemaError struct {
	Table string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("create table %s: %v", e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// DataFileError reports a reference data file that could not be read. The
// caller logs it and continues with the next file.
type DataFileError struct {
	Table string
	Key   string
	Err   error
}

func (e *DataFileError) Error() string {
	return fmt.Sprintf("read data file %s for %s: %v", e.Key, e.Table, e.Err)
}

func (e *DataFileError) Unwrap() error { return e.Err }

// QueryError reports a failed statement. The unit of work has been rolled
// back; the process is expected to terminate.
type QueryError struct {
	Query  string
	Caller string
	Err    error
}

func (e *QueryError) Error() string {
	if e.Caller != "" {
		return fmt.Sprintf("query failed (%s): %v; query: %s", e.Caller, e.Err, e.Query)
	}
	return fmt.Sprintf("query failed: %v; query: %s", e.Err, e.Query)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ResultShapeError reports that a single-row or single-value accessor was
// used on a result of another shape. Non-fatal.
type ResultShapeError struct {
	Want string
	Rows int
	Cols int
}

func (e *ResultShapeError) Error() string {
	return fmt.Sprintf("not a %s: %d rows, %d columns", e.Want, e.Rows, e.Cols)
}

func (e *ResultShapeError) Is(target error) bool { return target == ErrResultShape }

// IsFatal reports whether err must terminate the process.
func IsFatal(err error) bool {
	var (
		connErr   *ConnectionError
		schemaErr *SchemaError
		queryErr  *QueryError
	)
	return errors.As(err, &connErr) || errors.As(err, &schemaErr) || errors.As(err, &queryErr)
}
