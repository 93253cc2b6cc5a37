package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubDBStoresAndQueriesRows(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	_, err := conn.ExecContext(ctx, "INSERT INTO measure (msre_no, msre_desc) VALUES ($1,$2)", []driver.NamedValue{
		{Value: int64(1)},
		{Value: "cup"},
	})
	if err != nil {
		t.Fatalf("ExecContext insert: %v", err)
	}
	conn.AddRows("measure", map[string]any{"MSRE_NO": int64(2), "msre_desc": "tbsp"})

	rows, err := conn.QueryContext(ctx, "SELECT msre_desc FROM measure WHERE msre_no = $1", []driver.NamedValue{{Value: int64(2)}})
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	defer func() { _ = rows.Close() }()
	dest := make([]driver.Value, 1)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "tbsp" {
		t.Fatalf("unexpected row values: %v", dest)
	}
	if err := rows.Next(dest); err == nil {
		t.Fatalf("expected a single filtered row")
	}
}

func TestStubListsTables(t *testing.T) {
	_, conn := NewStubDB()
	conn.AddRows("person", map[string]any{"person_no": int64(1)})
	conn.Tables["measure"] = nil
	rows, err := conn.QueryContext(context.Background(), "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema()", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	dest := make([]driver.Value, 1)
	var names []string
	for rows.Next(dest) == nil {
		names = append(names, dest[0].(string))
	}
	if len(names) != 2 || names[0] != "measure" || names[1] != "person" {
		t.Fatalf("tables = %v", names)
	}
}

func TestStubFailures(t *testing.T) {
	_, conn := NewStubDB()
	if _, err := conn.QueryContext(context.Background(), "SELECT a FROM missing", nil); err == nil {
		t.Fatalf("expected missing relation error")
	}
	if _, err := conn.QueryContext(context.Background(), "DELETE FROM x", nil); err == nil {
		t.Fatalf("expected parse error")
	}
	conn.FailExec = true
	if err := conn.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping failure")
	}
}
