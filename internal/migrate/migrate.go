// Package migrate carries user data from the store of an earlier release
// into the current store. It runs once, on upgrade.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gnutrition/internal/calendar"
	"gnutrition/internal/logging"
	"gnutrition/internal/measure"
	"gnutrition/internal/persistence"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Unknown replaces a measurement description that could not be resolved.
const Unknown = "Unknown"

// Generation identifies how a legacy store referenced measurements.
type Generation int

const (
	// GenerationCode stores numeric measure codes into a measure lookup table.
	GenerationCode Generation = iota + 1
	// GenerationDescription stores the measurement description text.
	GenerationDescription
)

func (g Generation) String() string {
	switch g {
	case GenerationCode:
		return "measure-code"
	case GenerationDescription:
		return "measure-description"
	default:
		return "unknown"
	}
}

// Tables lists the legacy tables carried forward, in migration order.
// category is reloaded from its data file and nutr_goal is recomputed, so
// neither is migrated.
var Tables = []string{"recipe", "ingredient", "preparation", "person", "food_plan", "recipe_plan"}

const lookupTable = "measure"

// Report summarises a migration run.
type Report struct {
	RunID      string
	Generation Generation
	// Found lists the migrated tables that existed in the legacy store.
	Found []string
	// Rows counts the rows inserted per table.
	Rows map[string]int
	// Unresolved counts rows inserted with the Unknown measurement.
	Unresolved int
	// Skipped counts rows dropped for a malformed date or time.
	Skipped  int
	Duration time.Duration
}

// Metrics receives migration outcomes. *metrics.Recorder satisfies it.
type Metrics interface {
	measure.Metrics
	Migrated(table string, n int)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(e *Engine) { e.log = logging.OrNop(l) } }

// WithMetrics sets the outcome sink.
func WithMetrics(m Metrics) Option { return func(e *Engine) { e.metrics = m } }

// Engine writes migrated rows into the current store. The current store's
// user tables and reference data must already be installed.
type Engine struct {
	current persistence.Querier
	log     logging.Logger
	metrics Metrics
}

// New returns an Engine writing through current.
func New(current persistence.Querier, opts ...Option) *Engine {
	e := &Engine{current: current, log: logging.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run holds the state of one Migrate call.
type run struct {
	*Engine
	legacy   persistence.LegacyStore
	resolver *measure.Resolver
	log      logging.Logger
	report   *Report
}

// Migrate copies every known table present in legacy. Rows whose
// measurement cannot be resolved are inserted with Unknown; rows with a
// malformed date or time are skipped. Statement failures on either store
// abort the run.
func (e *Engine) Migrate(ctx context.Context, legacy persistence.LegacyStore) (Report, error) {
	start := time.Now()
	rep := Report{RunID: uuid.NewString(), Rows: make(map[string]int)}
	ctx = persistence.WithCaller(ctx, "migrate")

	present, err := legacy.Tables(ctx)
	if err != nil {
		return rep, err
	}
	have := make(map[string]bool, len(present))
	for _, t := range present {
		have[strings.ToLower(t)] = true
	}
	rep.Generation = GenerationDescription
	if have[lookupTable] {
		rep.Generation = GenerationCode
	}
	for _, t := range Tables {
		if have[t] {
			rep.Found = append(rep.Found, t)
		}
	}

	var resolverMetrics measure.Metrics
	if e.metrics != nil {
		resolverMetrics = e.metrics
	}
	log := logging.With(e.log, "run_id", rep.RunID)
	r := &run{
		Engine: e,
		legacy: legacy,
		log:    log,
		report: &rep,
		resolver: measure.NewResolver(e.current,
			measure.WithLegacy(legacy),
			measure.WithLogger(log),
			measure.WithMetrics(resolverMetrics)),
	}
	r.log.Info("migration started", "generation", rep.Generation.String(), "tables", strings.Join(rep.Found, ","))

	for _, table := range rep.Found {
		n, err := r.table(ctx, table)
		if err != nil {
			return rep, fmt.Errorf("migrate %s: %w", table, err)
		}
		rep.Rows[table] = n
		if e.metrics != nil {
			e.metrics.Migrated(table, n)
		}
		r.log.Info("table migrated", "table", table, "rows", humanize.Comma(int64(n)))
	}
	rep.Duration = time.Since(start)
	r.log.Info("migration finished", "unresolved", rep.Unresolved, "skipped", rep.Skipped, "duration", rep.Duration.String())
	return rep, nil
}

func (r *run) table(ctx context.Context, table string) (int, error) {
	switch table {
	case "recipe":
		return r.copy(ctx, "SELECT recipe_no, recipe_name, no_serv, no_ingr, category_no FROM recipe",
			"INSERT INTO recipe VALUES (?, ?, ?, ?, ?)")
	case "preparation":
		return r.copy(ctx, "SELECT recipe_no, prep_time, prep_desc FROM preparation",
			"INSERT INTO preparation VALUES (?, ?, ?)")
	case "person":
		return r.copy(ctx, "SELECT person_no, person_name, user_name FROM person",
			"INSERT INTO person VALUES (?, ?, ?)")
	case "ingredient":
		return r.ingredients(ctx)
	case "food_plan":
		return r.foodPlan(ctx)
	case "recipe_plan":
		return r.recipePlan(ctx)
	default:
		return 0, fmt.Errorf("no migration for table %s", table)
	}
}

// copy moves rows unchanged.
func (r *run) copy(ctx context.Context, selectSQL, insertSQL string) (int, error) {
	res, err := r.legacy.Execute(ctx, selectSQL)
	if err != nil {
		return 0, err
	}
	return r.insert(ctx, insertSQL, res.All())
}

func (r *run) insert(ctx context.Context, insertSQL string, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := r.current.ExecuteBatch(ctx, insertSQL, persistence.Rows(rows).Source())
	return int(n), err
}

func (r *run) ingredients(ctx context.Context) (int, error) {
	q := "SELECT recipe_no, amount, Msre_Desc, NDB_No FROM ingredient"
	if r.report.Generation == GenerationCode {
		q = "SELECT recipe_no, amount, msre_no, fd_no FROM ingredient"
	}
	res, err := r.legacy.Execute(ctx, q)
	if err != nil {
		return 0, err
	}
	rows := make([][]any, 0, res.Len())
	for _, row := range res.All() {
		foodID := FoodID(row[3])
		desc, err := r.measure(ctx, "ingredient", foodID, row[2])
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{row[0], row[1], desc, foodID})
	}
	return r.insert(ctx, "INSERT INTO ingredient VALUES (?, ?, ?, ?)", rows)
}

func (r *run) foodPlan(ctx context.Context) (int, error) {
	q := "SELECT person_no, date, time, amount, Msre_Desc, NDB_No FROM food_plan"
	if r.report.Generation == GenerationCode {
		q = "SELECT person_no, date, time, amount, msre_no, fd_no FROM food_plan"
	}
	res, err := r.legacy.Execute(ctx, q)
	if err != nil {
		return 0, err
	}
	rows := make([][]any, 0, res.Len())
	for _, row := range res.All() {
		date, clock, ok := r.when("food_plan", row[1], row[2])
		if !ok {
			continue
		}
		foodID := FoodID(row[5])
		desc, err := r.measure(ctx, "food_plan", foodID, row[4])
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{row[0], date, clock, row[3], desc, foodID})
	}
	return r.insert(ctx, "INSERT INTO food_plan VALUES (?, ?, ?, ?, ?, ?)", rows)
}

func (r *run) recipePlan(ctx context.Context) (int, error) {
	res, err := r.legacy.Execute(ctx, "SELECT person_no, date, time, no_portions, recipe_no FROM recipe_plan")
	if err != nil {
		return 0, err
	}
	rows := make([][]any, 0, res.Len())
	for _, row := range res.All() {
		date, clock, ok := r.when("recipe_plan", row[1], row[2])
		if !ok {
			continue
		}
		rows = append(rows, []any{row[0], date, clock, row[3], row[4]})
	}
	return r.insert(ctx, "INSERT INTO recipe_plan VALUES (?, ?, ?, ?, ?)", rows)
}

// when converts a legacy date and time. Malformed values skip the row.
func (r *run) when(table string, date, clock any) (string, string, bool) {
	d, err := calendar.FormatDate(date)
	if err == nil {
		var c string
		if c, err = calendar.FormatTime(clock); err == nil {
			return d, c, true
		}
	}
	r.report.Skipped++
	r.log.Warn("skipping row with malformed date or time", "table", table, "date", date, "time", clock, "error", err)
	return "", "", false
}

// measure resolves a legacy measurement value, falling back to Unknown.
func (r *run) measure(ctx context.Context, table, foodID string, v any) (string, error) {
	ref := measure.Description(strings.TrimSpace(persistence.AsString(v)))
	if r.report.Generation == GenerationCode {
		code, ok := persistence.AsInt(v)
		if !ok {
			ref = measure.Ref{}
		} else {
			ref = measure.Code(code)
		}
	}
	res, err := r.resolver.Resolve(ctx, foodID, ref)
	switch {
	case err == nil:
		return res.Description, nil
	case errors.Is(err, measure.ErrUnresolved), errors.Is(err, measure.ErrInvalidReference):
		r.report.Unresolved++
		r.log.Warn("measurement unresolved", "table", table, "food_id", foodID, "measure", v, "error", err)
		return Unknown, nil
	default:
		return "", err
	}
}

// FoodID normalises a legacy food reference to the five digit text form of
// the current reference data.
func FoodID(v any) string {
	if n, ok := persistence.AsInt(v); ok && n >= 0 {
		return fmt.Sprintf("%05d", n)
	}
	return strings.TrimSpace(persistence.AsString(v))
}
