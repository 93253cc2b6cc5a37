package schema

import (
	"context"

	"gnutrition/internal/logging"
	"gnutrition/internal/persistence"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(m *Manager) { m.log = logging.OrNop(l) } }

// Manager creates tables through a Querier.
type Manager struct {
	db  persistence.Querier
	log logging.Logger
}

// NewManager returns a Manager writing through db.
func NewManager(db persistence.Querier, opts ...Option) *Manager {
	m := &Manager{db: db, log: logging.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateReferenceSchema drops and recreates every reference table.
func (m *Manager) CreateReferenceSchema(ctx context.Context) error {
	for _, t := range Reference {
		if err := m.Recreate(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// CreateUserSchema creates the user tables that do not exist yet. Existing
// tables and their rows are left alone.
func (m *Manager) CreateUserSchema(ctx context.Context) error {
	for _, t := range User {
		if err := m.Create(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Recreate drops t if present and creates it empty.
func (m *Manager) Recreate(ctx context.Context, t Table) error {
	ctx = persistence.WithCaller(ctx, "schema "+t.Name)
	if _, err := m.db.Execute(ctx, "DROP TABLE IF EXISTS "+t.Name); err != nil {
		return &persistence.SchemaError{Table: t.Name, Err: err}
	}
	return m.Create(ctx, t)
}

// Create runs t's CREATE statement.
func (m *Manager) Create(ctx context.Context, t Table) error {
	ctx = persistence.WithCaller(ctx, "schema "+t.Name)
	if _, err := m.db.Execute(ctx, t.CreateSQL()); err != nil {
		return &persistence.SchemaError{Table: t.Name, Err: err}
	}
	m.log.Debug("created table", "table", t.Name)
	return nil
}
