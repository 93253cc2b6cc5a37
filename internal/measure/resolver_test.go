package measure

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gnutrition/internal/infra/persistence/sqlite"
	"gnutrition/internal/persistence"
)

var butter = []Candidate{
	{Description: `pat (1" sq, 1/3" high)`, GramWeight: 5},
	{Description: "tbsp", GramWeight: 14.2},
	{Description: "cup", GramWeight: 227.02},
	{Description: "stick", GramWeight: 113},
}

func TestMatchTiers(t *testing.T) {
	cases := []struct {
		name       string
		desc       string
		weight     float64
		haveWeight bool
		want       string
		tier       Tier
	}{
		{"exact wins over weight", "cup", 14.2, true, "cup", TierExact},
		{"exact weight", "tablespoon", 14.2, true, "tbsp", TierWeight},
		{"tolerant weight", "8 oz container", 227.5, true, "cup", TierTolerant},
		{"tolerant before substring", "1 stick of cup", 227.5, true, "cup", TierTolerant},
		{"canonical inside supplied", "1 cup, melted", 0, false, "cup", TierSubstring},
		{"supplied inside canonical", "sq, 1/3", 0, false, `pat (1" sq, 1/3" high)`, TierSubstring},
		{"pattern characters are literal", `pat (1" sq`, 0, false, `pat (1" sq, 1/3" high)`, TierSubstring},
		{"weight ignored without legacy weight", "stick", 14.2, false, "stick", TierExact},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Match(butter, tc.desc, tc.weight, tc.haveWeight)
			if !ok {
				t.Fatalf("expected a match")
			}
			if got.Description != tc.want || got.Tier != tc.tier {
				t.Fatalf("got %q via %s, want %q via %s", got.Description, got.Tier, tc.want, tc.tier)
			}
		})
	}
}

func TestMatchDuplicateWeightsTakeFirstInSequence(t *testing.T) {
	apples := []Candidate{
		{Description: "cup, quartered or chopped", GramWeight: 125},
		{Description: "cup slices", GramWeight: 125},
		{Description: "large", GramWeight: 223},
	}
	got, ok := Match(apples, "1 c. sliced", 125, true)
	if !ok {
		t.Fatalf("expected a match")
	}
	if got.Description != "cup, quartered or chopped" || got.Tier != TierWeight {
		t.Fatalf("got %q via %s, want first equal weight via %s", got.Description, got.Tier, TierWeight)
	}
	reordered := []Candidate{apples[1], apples[0], apples[2]}
	if got, _ := Match(reordered, "1 c. sliced", 125, true); got.Description != "cup slices" || got.Tier != TierWeight {
		t.Fatalf("sequence order must decide, got %q via %s", got.Description, got.Tier)
	}
}

func TestMatchFailures(t *testing.T) {
	cases := []struct {
		name   string
		desc   string
		weight float64
		have   bool
	}{
		{"nothing in common", "slice", 0, false},
		{"regexp metacharacters do not match", ".*", 0, false},
		{"empty description", "", 0, false},
		{"weight far off", "slice", 60, true},
	}
	for _, tc := range cases {
		if got, ok := Match(butter, tc.desc, tc.weight, tc.have); ok {
			t.Fatalf("%s: unexpected match %#v", tc.name, got)
		}
	}
}

func TestWithinHalfGram(t *testing.T) {
	if !withinHalfGram(227.02, 227.5) {
		t.Fatalf("227.02 vs 227.5 should match")
	}
	if withinHalfGram(227.02, 229) {
		t.Fatalf("227.02 vs 229 should not match")
	}
	if !withinHalfGram(14.2, 13.8) {
		t.Fatalf("14.2 vs 13.8 should match")
	}
}

type countingMetrics map[string]int

func (m countingMetrics) Resolved(tier string) { m[tier]++ }

type refusingQuerier struct{ t *testing.T }

func (q refusingQuerier) Execute(context.Context, string, ...any) (persistence.Result, error) {
	q.t.Fatalf("legacy store must not be queried")
	return persistence.Result{}, nil
}

func (q refusingQuerier) ExecuteBatch(context.Context, string, persistence.RowSource) (int64, error) {
	q.t.Fatalf("legacy store must not be queried")
	return 0, nil
}

func session(t *testing.T, name string, stmts ...string) *sqlite.Session {
	t.Helper()
	s := sqlite.NewSession(filepath.Join(t.TempDir(), name))
	if _, err := s.Open(context.Background()); err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	for _, stmt := range stmts {
		if _, err := s.Execute(context.Background(), stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	return s
}

func currentStore(t *testing.T) *sqlite.Session {
	return session(t, "gnutr_db.lt3",
		"CREATE TABLE weight (NDB_No TEXT NOT NULL, Seq INTEGER NOT NULL, Amount REAL NOT NULL, Msre_Desc TEXT NOT NULL, Gm_wgt REAL NOT NULL, Num_Data_Pts INTEGER, Std_Dev REAL, PRIMARY KEY (NDB_No, Seq))",
		`INSERT INTO weight VALUES ('01001', 1, 1, 'pat (1" sq, 1/3" high)', 5, NULL, NULL)`,
		"INSERT INTO weight VALUES ('01001', 2, 1, 'tbsp', 14.2, NULL, NULL)",
		"INSERT INTO weight VALUES ('01001', 3, 1, 'cup', 227.02, NULL, NULL)",
	)
}

func legacyStore(t *testing.T) *sqlite.Session {
	return session(t, "legacy.lt3",
		"CREATE TABLE measure (msre_no INTEGER PRIMARY KEY, msre_desc TEXT)",
		"CREATE TABLE weight (fd_no INTEGER, msre_no INTEGER, wgt_val REAL)",
		"INSERT INTO measure VALUES (1, 'cup'), (2, '8 oz container'), (3, 'tablespoon'), (4, 'slice')",
		"INSERT INTO weight VALUES (1001, 1, 14.2), (1001, 2, 227.5), (1001, 3, 14.2), (1001, 4, 60)",
	)
}

func TestResolveByDescription(t *testing.T) {
	m := countingMetrics{}
	r := NewResolver(currentStore(t), WithMetrics(m))
	res, err := r.Resolve(context.Background(), "01001", Description("tbsp"))
	if err != nil || res.Description != "tbsp" || res.Tier != TierExact {
		t.Fatalf("resolve = %#v, %v", res, err)
	}
	res, err = r.Resolve(context.Background(), "01001", Description("1 cup, melted"))
	if err != nil || res.Description != "cup" || res.Tier != TierSubstring {
		t.Fatalf("resolve = %#v, %v", res, err)
	}
	if m["exact"] != 1 || m["substring"] != 1 {
		t.Fatalf("metrics = %v", m)
	}
}

func TestResolveByLegacyCode(t *testing.T) {
	r := NewResolver(currentStore(t), WithLegacy(legacyStore(t)))
	cases := []struct {
		code int64
		want string
		tier Tier
	}{
		{1, "cup", TierExact},
		{2, "cup", TierTolerant},
		{3, "tbsp", TierWeight},
	}
	for _, tc := range cases {
		res, err := r.Resolve(context.Background(), "01001", Code(tc.code))
		if err != nil {
			t.Fatalf("code %d: %v", tc.code, err)
		}
		if res.Description != tc.want || res.Tier != tc.tier {
			t.Fatalf("code %d: got %q via %s", tc.code, res.Description, res.Tier)
		}
	}
	_, err := r.Resolve(context.Background(), "01001", Code(4))
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("code 4: expected unresolved, got %v", err)
	}
	var re *ResolutionError
	if !errors.As(err, &re) || re.FoodID != "01001" {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if persistence.IsFatal(err) {
		t.Fatalf("resolution failures are not fatal")
	}
}

func TestResolveWithoutCanonicalRowsFailsFast(t *testing.T) {
	m := countingMetrics{}
	r := NewResolver(currentStore(t), WithLegacy(refusingQuerier{t}), WithMetrics(m))
	_, err := r.Resolve(context.Background(), "99999", Code(1))
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected unresolved, got %v", err)
	}
	if m["unresolved"] != 1 {
		t.Fatalf("metrics = %v", m)
	}
}

func TestResolveRejectsInvalidReferences(t *testing.T) {
	r := NewResolver(refusingQuerier{t})
	for _, ref := range []Ref{{}, {Description: "cup", Code: 1, HasCode: true}} {
		if _, err := r.Resolve(context.Background(), "01001", ref); !errors.Is(err, ErrInvalidReference) {
			t.Fatalf("ref %#v: expected ErrInvalidReference, got %v", ref, err)
		}
	}
	if _, err := r.Resolve(context.Background(), "01001", Code(1)); !errors.Is(err, ErrNoLegacyStore) {
		t.Fatalf("expected ErrNoLegacyStore, got %v", err)
	}
}

func TestCandidatesInSequenceOrder(t *testing.T) {
	r := NewResolver(currentStore(t))
	got, err := r.Candidates(context.Background(), "01001")
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 3 || got[0].GramWeight != 5 || got[2].Description != "cup" {
		t.Fatalf("candidates = %#v", got)
	}
}

func TestLegacyFoodNumber(t *testing.T) {
	if v := legacyFoodNumber("01001"); v != int64(1001) {
		t.Fatalf("legacyFoodNumber = %#v", v)
	}
	if v := legacyFoodNumber("A1"); v != "A1" {
		t.Fatalf("legacyFoodNumber = %#v", v)
	}
}
