package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
)

// RunStatement executes query in its own transaction on db and collects any
// rows it returns. The transaction is rolled back on every error.
func RunStatement(ctx context.Context, db *sql.DB, query string, args []any) (res Result, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if ReturnsRows(query) {
		res, err = collect(ctx, tx, query, args)
	} else {
		_, err = tx.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return res, nil
}

func collect(ctx context.Context, tx *sql.Tx, query string, args []any) (Result, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = rows.Close() }()
	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}
	res := Result{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("scan: %w", err)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	return res, nil
}

// RunBatch prepares query once and executes it for every row of src inside
// one transaction. sqlErr reports a statement failure, srcErr a failure to
// read src; either rolls the whole batch back.
func RunBatch(ctx context.Context, db *sql.DB, query string, src RowSource) (n int64, sqlErr, srcErr error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err), nil
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err), nil
	}
	defer func() { _ = stmt.Close() }()
	for {
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, nil, err
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return n, fmt.Errorf("row %d: %w", n+1, err), nil
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return n, fmt.Errorf("commit: %w", err), nil
	}
	committed = true
	return n, nil, nil
}

// ReturnsRows reports whether query produces a result set.
func ReturnsRows(query string) bool {
	switch StatementKind(query) {
	case "select", "with", "pragma", "values", "explain", "show":
		return true
	}
	for _, f := range strings.Fields(query) {
		if strings.EqualFold(strings.Trim(f, "(),;"), "returning") {
			return true
		}
	}
	return false
}

// StatementKind returns the lower-cased leading keyword of query.
func StatementKind(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(strings.TrimLeft(fields[0], "("))
}
