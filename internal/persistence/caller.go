package persistence

import (
	"context"
	"fmt"
	"regexp"
)

type callerKey struct{}

// WithCaller labels statements executed under ctx for diagnostics.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the label attached by WithCaller.
func CallerFrom(ctx context.Context) string {
	if v, ok := ctx.Value(callerKey{}).(string); ok {
		return v
	}
	return ""
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NextID returns MAX(column)+1 over table, or 1 when the table is empty.
func NextID(ctx context.Context, q Querier, column, table string) (int64, error) {
	if !identifier.MatchString(column) || !identifier.MatchString(table) {
		return 0, fmt.Errorf("next id: invalid identifier %q.%q", table, column)
	}
	res, err := q.Execute(ctx, fmt.Sprintf("SELECT MAX(%s) FROM %s", column, table))
	if err != nil {
		return 0, err
	}
	v, err := res.Scalar()
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 1, nil
	}
	n, ok := AsInt(v)
	if !ok {
		return 0, fmt.Errorf("next id: %s.%s holds non-integer %v", table, column, v)
	}
	return n + 1, nil
}
