package persistence

import "testing"

func TestReturnsRows(t *testing.T) {
	cases := []struct {
		query string
		want  bool
	}{
		{"SELECT 1", true},
		{"  (select 1)", true},
		{"PRAGMA table_info(weight)", true},
		{"INSERT INTO recipe VALUES (?, ?)", false},
		{"INSERT INTO recipe (recipe_name) VALUES (?) RETURNING recipe_no", true},
		{"INSERT INTO recipe (recipe_name) VALUES (?)\nRETURNING recipe_no", true},
		{"DELETE FROM person WHERE person_no = ?\n\treturning person_no", true},
		{"UPDATE person SET user_name = ? WHERE person_no = ?", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ReturnsRows(tc.query); got != tc.want {
			t.Fatalf("ReturnsRows(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestStatementKind(t *testing.T) {
	if got := StatementKind("\n  Insert INTO x VALUES (1)"); got != "insert" {
		t.Fatalf("StatementKind = %q", got)
	}
	if got := StatementKind("   "); got != "" {
		t.Fatalf("StatementKind(blank) = %q", got)
	}
}
