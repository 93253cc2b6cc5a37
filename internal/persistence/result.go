package persistence

import (
	"fmt"
	"strconv"
	"strings"
)

// Result is the full row set returned by one Execute call. It is a value:
// reading it never changes it and a later Execute never invalidates it.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Len reports the number of rows.
func (r Result) Len() int { return len(r.Rows) }

// Empty reports whether the statement produced no rows.
func (r Result) Empty() bool { return len(r.Rows) == 0 }

// All returns every row.
func (r Result) All() [][]any { return r.Rows }

// OneRow returns the only row. It fails with a ResultShapeError unless exactly
// one row is present.
func (r Result) OneRow() ([]any, error) {
	if len(r.Rows) != 1 {
		return nil, &ResultShapeError{Want: "single row", Rows: len(r.Rows), Cols: r.width()}
	}
	return r.Rows[0], nil
}

// Scalar returns the single value of a one-row, one-column result. Any other
// shape fails with a ResultShapeError; in particular a multi-row result never
// yields its first value.
func (r Result) Scalar() (any, error) {
	if len(r.Rows) != 1 || len(r.Rows[0]) != 1 {
		return nil, &ResultShapeError{Want: "single value", Rows: len(r.Rows), Cols: r.width()}
	}
	return r.Rows[0][0], nil
}

// Strings returns the first column of every row rendered as text.
func (r Result) Strings() []string {
	out := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		if len(row) == 0 {
			continue
		}
		out = append(out, AsString(row[0]))
	}
	return out
}

func (r Result) width() int {
	if len(r.Rows) == 0 {
		return len(r.Columns)
	}
	return len(r.Rows[0])
}

// AsString renders a driver value as text. Byte slices decode as UTF-8 text;
// nil renders as the empty string.
func AsString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// AsFloat converts a numeric driver value to float64.
func AsFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case int:
		return float64(t), true
	case []byte:
		return AsFloat(string(t))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// AsInt converts an integral driver value to int64.
func AsInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case int:
		return int64(t), true
	case float64:
		if t == float64(int64(t)) {
			return int64(t), true
		}
	case []byte:
		return AsInt(string(t))
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return i, err == nil
	}
	return 0, false
}
