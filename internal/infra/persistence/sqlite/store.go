// Package sqlite provides the current backing store: a single SQLite session
// per process, opened lazily, with the application's custom SQL functions
// registered on it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gnutrition/internal/logging"
	"gnutrition/internal/persistence"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertions.
var (
	_ persistence.Querier     = (*Session)(nil)
	_ persistence.LegacyStore = (*Session)(nil)
)

const driverName = "sqlite"

var errClosed = errors.New("session closed")

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for statement diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) { s.log = logging.OrNop(l) }
}

// WithMetrics sets the recorder observing every statement.
func WithMetrics(m persistence.MetricsRecorder) Option {
	return func(s *Session) { s.metrics = m }
}

// Session owns the process's single connection to the SQLite store. The
// first use opens the connection; later uses share it. Close releases it for
// good.
type Session struct {
	path    string
	log     logging.Logger
	metrics persistence.MetricsRecorder

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewSession returns an unopened session for the database file at path.
func NewSession(path string, opts ...Option) *Session {
	s := &Session{path: path, log: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the configured database path.
func (s *Session) Path() string { return s.path }

// Open connects on first call and returns the live handle on every call.
// It never opens a second connection.
func (s *Session) Open(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &persistence.ConnectionError{Target: s.path, Err: errClosed}
	}
	if s.db != nil {
		return s.db, nil
	}
	db, err := s.connect(ctx)
	if err != nil {
		return nil, &persistence.ConnectionError{Target: s.path, Err: err}
	}
	s.db = db
	s.log.Info("opened store", "path", s.path)
	return db, nil
}

func (s *Session) connect(ctx context.Context) (*sql.DB, error) {
	if s.path == "" {
		return nil, errors.New("empty database path")
	}
	if err := registerFunctions(); err != nil {
		return nil, fmt.Errorf("register functions: %w", err)
	}
	if !isMemoryPath(s.path) {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open(driverName, s.path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection for the life of the process; pragmas and :memory:
	// databases are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return db, nil
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file:")
}

// Close releases the connection. Closing an unopened or already closed
// session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// DB exposes the underlying handle for integration tests, opening it if needed.
func (s *Session) DB(ctx context.Context) (*sql.DB, error) { return s.Open(ctx) }

// Execute runs query once inside its own transaction and returns every row it
// produced. On failure the transaction is rolled back and a *QueryError is
// returned.
func (s *Session) Execute(ctx context.Context, query string, args ...any) (persistence.Result, error) {
	db, err := s.Open(ctx)
	if err != nil {
		return persistence.Result{}, err
	}
	start := time.Now()
	res, err := persistence.RunStatement(ctx, db, query, args)
	s.observe(ctx, query, err == nil, time.Since(start))
	if err != nil {
		return persistence.Result{}, s.fail(ctx, query, args, err)
	}
	s.log.Debug("statement executed", "caller", persistence.CallerFrom(ctx), "sql", query, "params", len(args), "rows", res.Len())
	return res, nil
}

// ExecuteBatch prepares query once and runs it for every row of rows inside a
// single transaction. A read error from rows aborts the batch without being
// reported as a statement failure.
func (s *Session) ExecuteBatch(ctx context.Context, query string, rows persistence.RowSource) (int64, error) {
	db, err := s.Open(ctx)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	n, sqlErr, srcErr := persistence.RunBatch(ctx, db, query, rows)
	s.observe(ctx, query, sqlErr == nil && srcErr == nil, time.Since(start))
	if srcErr != nil {
		return 0, fmt.Errorf("batch source after %d rows: %w", n, srcErr)
	}
	if sqlErr != nil {
		return 0, s.fail(ctx, query, nil, sqlErr)
	}
	s.log.Debug("batch executed", "caller", persistence.CallerFrom(ctx), "sql", query, "rows", n)
	return n, nil
}

// Tables lists the user tables present in the database.
func (s *Session) Tables(ctx context.Context) ([]string, error) {
	res, err := s.Execute(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return res.Strings(), nil
}

func (s *Session) fail(ctx context.Context, query string, args []any, err error) error {
	caller := persistence.CallerFrom(ctx)
	s.log.Error("statement failed", "caller", caller, "sql", query, "params", args, "error", err)
	return &persistence.QueryError{Query: query, Caller: caller, Err: err}
}

func (s *Session) observe(ctx context.Context, query string, ok bool, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.Observe(ctx, persistence.StatementKind(query), ok, d)
}
