package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gnutrition/internal/persistence"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession(filepath.Join(t.TempDir(), "gnutr_db.lt3"))
	if _, err := s.Open(context.Background()); err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustExec(t *testing.T, s *Session, query string, args ...any) persistence.Result {
	t.Helper()
	res, err := s.Execute(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("execute %q: %v", query, err)
	}
	return res
}

func countRows(t *testing.T, s *Session, table string) int64 {
	t.Helper()
	v, err := mustExec(t, s, "SELECT COUNT(*) FROM "+table).Scalar()
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	n, _ := persistence.AsInt(v)
	return n
}

func TestOpenIsIdempotent(t *testing.T) {
	s := newTestSession(t)
	first, err := s.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	second, err := s.Open(context.Background())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if first != second {
		t.Fatalf("expected the same handle on every open")
	}
}

func TestCloseIsSafeAndFinal(t *testing.T) {
	s := NewSession(filepath.Join(t.TempDir(), "db.lt3"))
	if err := s.Close(); err != nil {
		t.Fatalf("close unopened: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close twice: %v", err)
	}
	_, err := s.Execute(context.Background(), "SELECT 1")
	var connErr *persistence.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError after close, got %v", err)
	}
}

func TestOpenFailureIsConnectionError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := NewSession(filepath.Join(blocker, "nested", "db.lt3"))
	_, err := s.Open(context.Background())
	var connErr *persistence.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if !persistence.IsFatal(err) {
		t.Fatalf("connection errors are fatal")
	}
}

func TestExecuteReturnsRowsAsValues(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE fd_group (FdGrp_Cd TEXT PRIMARY KEY NOT NULL, FdGrp_Desc TEXT NOT NULL)")
	mustExec(t, s, "INSERT INTO fd_group VALUES (?, ?)", "0100", "Dairy and Egg Products")
	res := mustExec(t, s, "SELECT FdGrp_Cd, FdGrp_Desc FROM fd_group")
	row, err := res.OneRow()
	if err != nil {
		t.Fatalf("one row: %v", err)
	}
	if row[0] != "0100" || row[1] != "Dairy and Egg Products" {
		t.Fatalf("unexpected row %#v", row)
	}
	// A later statement leaves the earlier result intact.
	mustExec(t, s, "INSERT INTO fd_group VALUES (?, ?)", "0200", "Spices and Herbs")
	if res.Len() != 1 {
		t.Fatalf("earlier result changed: %d rows", res.Len())
	}
}

func TestExecuteFailureRollsBack(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE person (person_no INTEGER PRIMARY KEY, person_name TEXT)")
	mustExec(t, s, "INSERT INTO person VALUES (1, 'a')")
	ctx := persistence.WithCaller(context.Background(), "test")
	_, err := s.Execute(ctx, "INSERT INTO person VALUES (1, 'dup')")
	var qErr *persistence.QueryError
	if !errors.As(err, &qErr) {
		t.Fatalf("expected QueryError, got %v", err)
	}
	if qErr.Caller != "test" {
		t.Fatalf("expected caller label, got %q", qErr.Caller)
	}
	if got := countRows(t, s, "person"); got != 1 {
		t.Fatalf("expected 1 row after failed insert, got %d", got)
	}
}

func TestExecuteBatch(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE category (category_no INTEGER PRIMARY KEY NOT NULL, category_desc TEXT NOT NULL)")
	n, err := s.ExecuteBatch(context.Background(), "INSERT INTO category VALUES (?, ?)",
		persistence.Rows{{1, "Soups"}, {2, "Salads"}, {3, "Desserts"}}.Source())
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if n != 3 || countRows(t, s, "category") != 3 {
		t.Fatalf("expected 3 rows, batch reported %d", n)
	}
}

func TestExecuteBatchFailureRollsBackWholeBatch(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE category (category_no INTEGER PRIMARY KEY NOT NULL, category_desc TEXT NOT NULL)")
	_, err := s.ExecuteBatch(context.Background(), "INSERT INTO category VALUES (?, ?)",
		persistence.Rows{{1, "Soups"}, {1, "Again"}}.Source())
	var qErr *persistence.QueryError
	if !errors.As(err, &qErr) {
		t.Fatalf("expected QueryError, got %v", err)
	}
	if got := countRows(t, s, "category"); got != 0 {
		t.Fatalf("expected rollback, found %d rows", got)
	}
}

type failingSource struct{ n int }

func (f *failingSource) Next() ([]any, error) {
	f.n++
	if f.n > 1 {
		return nil, errors.New("truncated record")
	}
	return []any{f.n, "x"}, nil
}

func TestExecuteBatchSourceErrorIsNotQueryError(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE category (category_no INTEGER PRIMARY KEY NOT NULL, category_desc TEXT NOT NULL)")
	_, err := s.ExecuteBatch(context.Background(), "INSERT INTO category VALUES (?, ?)", &failingSource{})
	if err == nil {
		t.Fatalf("expected source error")
	}
	if persistence.IsFatal(err) {
		t.Fatalf("source errors are not statement failures: %v", err)
	}
	if got := countRows(t, s, "category"); got != 0 {
		t.Fatalf("expected rollback, found %d rows", got)
	}
}

func TestCustomFunctions(t *testing.T) {
	s := newTestSession(t)
	v, err := mustExec(t, s, "SELECT TO_DAYS('1904-03-01')").Scalar()
	if err != nil {
		t.Fatalf("scalar: %v", err)
	}
	if v != int64(365*4+31+29) {
		t.Fatalf("TO_DAYS = %v", v)
	}
	diff, _ := mustExec(t, s, "SELECT TO_DAYS('2012-03-01') - TO_DAYS('2012-02-01')").Scalar()
	if diff != int64(29) {
		t.Fatalf("interval = %v", diff)
	}
	mustExec(t, s, "CREATE TABLE weight (NDB_No TEXT, Msre_Desc TEXT)")
	mustExec(t, s, "INSERT INTO weight VALUES ('01001', 'cup'), ('01001', 'tbsp'), ('01001', 'pat (1\" sq, 1/3\" high)')")
	res := mustExec(t, s, "SELECT Msre_Desc FROM weight WHERE Msre_Desc REGEXP ? ORDER BY Msre_Desc", "^(cup|tbsp)$")
	got := res.Strings()
	if len(got) != 2 || got[0] != "cup" || got[1] != "tbsp" {
		t.Fatalf("REGEXP filter = %v", got)
	}
	if _, err := s.Execute(context.Background(), "SELECT TO_DAYS('not a date')"); err == nil {
		t.Fatalf("expected malformed date to fail the statement")
	}
}

func TestMatch(t *testing.T) {
	ok, err := Match(`c.p`, "1 cup")
	if err != nil || !ok {
		t.Fatalf("Match = %v, %v", ok, err)
	}
	if _, err := Match(`(`, "x"); err == nil {
		t.Fatalf("expected bad pattern error")
	}
}

func TestTablesAndNextID(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE recipe (recipe_no INTEGER PRIMARY KEY AUTOINCREMENT, recipe_name TEXT NOT NULL)")
	mustExec(t, s, "CREATE TABLE measure (msre_no INTEGER, msre_desc TEXT)")
	tables, err := s.Tables(context.Background())
	if err != nil {
		t.Fatalf("tables: %v", err)
	}
	if len(tables) != 2 || tables[0] != "measure" || tables[1] != "recipe" {
		t.Fatalf("tables = %v", tables)
	}
	id, err := persistence.NextID(context.Background(), s, "recipe_no", "recipe")
	if err != nil || id != 1 {
		t.Fatalf("NextID empty = %d, %v", id, err)
	}
	mustExec(t, s, "INSERT INTO recipe VALUES (41, 'Soup')")
	id, err = persistence.NextID(context.Background(), s, "recipe_no", "recipe")
	if err != nil || id != 42 {
		t.Fatalf("NextID = %d, %v", id, err)
	}
	if _, err := persistence.NextID(context.Background(), s, "x; DROP TABLE recipe", "recipe"); err == nil {
		t.Fatalf("expected identifier validation error")
	}
}
