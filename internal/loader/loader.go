// Package loader streams reference data files into the current store.
package loader

import (
	"context"
	"strings"

	"gnutrition/internal/logging"
	"gnutrition/internal/persistence"
	"gnutrition/internal/refdata"
)

// Metrics receives load outcomes. *metrics.Recorder satisfies it.
type Metrics interface {
	RowsLoaded(table string, n int64)
	FileFailed(table string)
}

// Option configures a Loader.
type Option func(*Loader)

// WithPrefix sets the key prefix data files are read under.
func WithPrefix(prefix string) Option { return func(l *Loader) { l.prefix = prefix } }

// WithLogger sets the logger.
func WithLogger(log logging.Logger) Option { return func(l *Loader) { l.log = logging.OrNop(log) } }

// WithMetrics sets the load metrics sink.
func WithMetrics(m Metrics) Option { return func(l *Loader) { l.metrics = m } }

// Loader copies delimited files from a reference data source into tables.
type Loader struct {
	db      persistence.Querier
	src     refdata.Store
	prefix  string
	log     logging.Logger
	metrics Metrics
}

// New returns a Loader writing through db and reading from src.
func New(db persistence.Querier, src refdata.Store, opts ...Option) *Loader {
	l := &Loader{db: db, src: src, log: logging.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the data file key for table.
func (l *Loader) Key(table string) string { return refdata.Key(l.prefix, table) }

// Load streams every record of the file at key into one batched execution of
// insertSQL. A file that cannot be opened or parsed yields a
// *persistence.DataFileError and leaves the table unchanged; statement
// failures are returned as the store reports them.
func (l *Loader) Load(ctx context.Context, table, insertSQL, key string) (int64, error) {
	rc, err := l.src.Open(ctx, key)
	if err != nil {
		return 0, l.fileFailed(table, key, err)
	}
	defer func() { _ = rc.Close() }()

	rd := NewReader(rc)
	rd.FieldsPerRecord = strings.Count(insertSQL, "?")
	n, err := l.db.ExecuteBatch(persistence.WithCaller(ctx, "load "+table), insertSQL, rd)
	if err != nil {
		if persistence.IsFatal(err) {
			return 0, err
		}
		return 0, l.fileFailed(table, key, err)
	}
	if l.metrics != nil {
		l.metrics.RowsLoaded(table, n)
	}
	l.log.Info("loaded table", "table", table, "key", key, "rows", n)
	return n, nil
}

func (l *Loader) fileFailed(table, key string, err error) error {
	if l.metrics != nil {
		l.metrics.FileFailed(table)
	}
	l.log.Warn("failed to load table", "table", table, "key", key, "error", err)
	return &persistence.DataFileError{Table: table, Key: key, Err: err}
}
