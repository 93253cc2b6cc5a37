package schema

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gnutrition/internal/loader"
	"gnutrition/internal/logging"
	"gnutrition/internal/persistence"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// TableLoad is the outcome of loading one table's data file.
type TableLoad struct {
	Table string
	Key   string
	Rows  int64
	// Err is set when the data file could not be read; the table was left
	// empty (reference) or unchanged (user).
	Err error
}

// Report summarises an install run.
type Report struct {
	RunID    string
	Loads    []TableLoad
	Duration time.Duration
}

// Failed returns the loads whose data file could not be read.
func (r Report) Failed() []TableLoad {
	var out []TableLoad
	for _, l := range r.Loads {
		if l.Err != nil {
			out = append(out, l)
		}
	}
	return out
}

// Rows returns the rows loaded for table.
func (r Report) Rows(table string) int64 {
	for _, l := range r.Loads {
		if l.Table == table {
			return l.Rows
		}
	}
	return 0
}

// Installer builds the current store: every reference table is rebuilt and
// loaded from its data file, then the user tables are ensured and the
// category lookup is loaded additively.
type Installer struct {
	schema *Manager
	loader *loader.Loader
	log    logging.Logger
}

// NewInstaller returns an Installer. A nil logger discards output.
func NewInstaller(m *Manager, l *loader.Loader, log logging.Logger) *Installer {
	return &Installer{schema: m, loader: l, log: logging.OrNop(log)}
}

// Install runs the install. Unreadable data files are logged and reported;
// schema and statement failures abort the run.
func (i *Installer) Install(ctx context.Context) (Report, error) {
	start := time.Now()
	rep := Report{RunID: uuid.NewString()}
	log := logging.With(i.log, "run_id", rep.RunID)
	log.Info("install started")

	for _, t := range Reference {
		if err := i.schema.Recreate(ctx, t); err != nil {
			return rep, err
		}
		load, err := i.load(ctx, t)
		if err != nil {
			return rep, err
		}
		rep.Loads = append(rep.Loads, load)
	}
	if err := i.schema.CreateUserSchema(ctx); err != nil {
		return rep, err
	}
	for _, t := range User {
		if t.Fields == 0 {
			continue
		}
		load, err := i.load(ctx, t)
		if err != nil {
			return rep, err
		}
		rep.Loads = append(rep.Loads, load)
	}

	rep.Duration = time.Since(start)
	for _, l := range rep.Loads {
		if l.Err == nil {
			log.Info("table loaded", "table", l.Table, "rows", humanize.Comma(l.Rows))
		}
	}
	log.Info("install finished", "failed_files", len(rep.Failed()), "duration", rep.Duration.String())
	return rep, nil
}

func (i *Installer) load(ctx context.Context, t Table) (TableLoad, error) {
	key := i.loader.Key(t.Name)
	n, err := i.loader.Load(ctx, t.Name, t.InsertSQL(), key)
	var dfe *persistence.DataFileError
	if errors.As(err, &dfe) {
		return TableLoad{Table: t.Name, Key: key, Err: err}, nil
	}
	if err != nil {
		return TableLoad{}, err
	}
	return TableLoad{Table: t.Name, Key: key, Rows: n}, nil
}

// InstallTable reloads one table from its data file. A reference table is
// dropped and recreated first; a lookup table keeps its rows and gains any
// missing ones. A missing data file is reported in the load, not returned.
func (i *Installer) InstallTable(ctx context.Context, name string) (TableLoad, error) {
	t, ok := Lookup(name)
	if !ok {
		return TableLoad{}, fmt.Errorf("unknown table %q", name)
	}
	if t.User {
		if t.Fields == 0 {
			return TableLoad{}, fmt.Errorf("table %s has no data file", t.Name)
		}
		if err := i.schema.Create(ctx, t); err != nil {
			return TableLoad{}, err
		}
	} else if err := i.schema.Recreate(ctx, t); err != nil {
		return TableLoad{}, err
	}
	load, err := i.load(ctx, t)
	if err != nil {
		return TableLoad{}, err
	}
	if load.Err == nil {
		i.log.Info("table loaded", "table", t.Name, "rows", humanize.Comma(load.Rows))
	}
	return load, nil
}
