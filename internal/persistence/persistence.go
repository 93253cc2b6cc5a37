// Package persistence defines the query contract shared by the current and
// legacy backing stores, together with the error taxonomy of the storage layer.
package persistence

import (
	"context"
	"io"
	"time"
)

// Querier is the minimal contract both backing stores satisfy. Every call is
// its own unit of work: committed on success, rolled back on failure.
type Querier interface {
	// Execute runs query once with args and returns every row it produced.
	Execute(ctx context.Context, query string, args ...any) (Result, error)
	// ExecuteBatch runs query once per row pulled from rows, inside a single
	// unit of work. Rows are consumed as they are produced.
	ExecuteBatch(ctx context.Context, query string, rows RowSource) (int64, error)
}

// TableLister enumerates the tables present in a store.
type TableLister interface {
	Tables(ctx context.Context) ([]string, error)
}

// LegacyStore is the view of the prior release's store used by migration.
type LegacyStore interface {
	Querier
	TableLister
}

// RowSource yields parameter tuples for a batched statement. Next returns
// io.EOF once exhausted.
type RowSource interface {
	Next() ([]any, error)
}

// Rows is an in-memory RowSource.
type Rows [][]any

// Source returns a RowSource over the rows.
func (r Rows) Source() RowSource { return &sliceSource{rows: r} }

type sliceSource struct {
	rows Rows
	idx  int
}

func (s *sliceSource) Next() ([]any, error) {
	if s.idx >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.idx]
	s.idx++
	return row, nil
}

// MetricsRecorder receives the outcome of every executed statement.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}
