// Package postgres reads the store of an earlier release kept in Postgres. It
// satisfies the same query contract as the current SQLite session so the
// migration engine can treat both alike.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"gnutrition/internal/logging"
	"gnutrition/internal/persistence"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion.
var _ persistence.LegacyStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/gnutr_db?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for statement diagnostics.
func WithLogger(l logging.Logger) Option { return func(s *Store) { s.log = logging.OrNop(l) } }

// WithMetrics sets the recorder observing every statement.
func WithMetrics(m persistence.MetricsRecorder) Option {
	return func(s *Store) { s.metrics = m }
}

// Store is a legacy store reached over database/sql with the pgx driver.
// Statements use ? placeholders and are rebound to $n before execution.
type Store struct {
	db      *sql.DB
	dsn     string
	log     logging.Logger
	metrics persistence.MetricsRecorder
}

// Open connects to the Postgres database at dsn (falls back to defaultDSN).
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, &persistence.ConnectionError{Target: redact(dsn), Err: fmt.Errorf("open postgres: %w", err)}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &persistence.ConnectionError{Target: redact(dsn), Err: fmt.Errorf("ping postgres: %w", err)}
	}
	s := &Store{db: db, dsn: dsn, log: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.log.Info("opened legacy store", "dsn", redact(dsn))
	return s, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Execute runs query once in its own transaction.
func (s *Store) Execute(ctx context.Context, query string, args ...any) (persistence.Result, error) {
	bound := Rebind(query)
	start := time.Now()
	res, err := persistence.RunStatement(ctx, s.db, bound, args)
	s.observe(ctx, query, err == nil, time.Since(start))
	if err != nil {
		return persistence.Result{}, s.fail(ctx, bound, err)
	}
	s.log.Debug("legacy statement executed", "caller", persistence.CallerFrom(ctx), "sql", bound, "rows", res.Len())
	return res, nil
}

// ExecuteBatch runs query for every row of rows in one transaction.
func (s *Store) ExecuteBatch(ctx context.Context, query string, rows persistence.RowSource) (int64, error) {
	bound := Rebind(query)
	start := time.Now()
	n, sqlErr, srcErr := persistence.RunBatch(ctx, s.db, bound, rows)
	s.observe(ctx, query, sqlErr == nil && srcErr == nil, time.Since(start))
	if srcErr != nil {
		return 0, fmt.Errorf("batch source after %d rows: %w", n, srcErr)
	}
	if sqlErr != nil {
		return 0, s.fail(ctx, bound, sqlErr)
	}
	return n, nil
}

// Tables lists the base tables of the current schema.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	res, err := s.Execute(ctx, `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	return res.Strings(), nil
}

func (s *Store) fail(ctx context.Context, query string, err error) error {
	caller := persistence.CallerFrom(ctx)
	s.log.Error("legacy statement failed", "caller", caller, "sql", query, "error", err)
	return &persistence.QueryError{Query: query, Caller: caller, Err: err}
}

func (s *Store) observe(ctx context.Context, query string, ok bool, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.Observe(ctx, persistence.StatementKind(query), ok, d)
}

// Rebind rewrites ? placeholders as $1, $2, ... Question marks inside quoted
// literals and identifiers are left alone.
func Rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var (
		b     strings.Builder
		n     int
		quote byte
	)
	b.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// redact hides the password of a URL-style DSN.
func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	userinfo := dsn[scheme+3 : at]
	if i := strings.Index(userinfo, ":"); i >= 0 {
		return dsn[:scheme+3] + userinfo[:i] + ":xxxxx" + dsn[at:]
	}
	return dsn
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
