// Package refdata is the entry point for reading nutrient database release
// files. Callers depend on the Store interface; the backends live under
// internal/infra/refdata and are selected by Open.
package refdata

import (
	"context"
	"fmt"

	infraFS "gnutrition/internal/infra/refdata/fs"
	infraMemory "gnutrition/internal/infra/refdata/memory"
	infraS3 "gnutrition/internal/infra/refdata/s3"
	"gnutrition/internal/refdata/core"
)

type (
	Store  = core.Store
	Info   = core.Info
	Driver = core.Driver
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// ErrNotFound is returned when a data file does not exist.
var ErrNotFound = core.ErrNotFound

// S3Config re-exports the infra S3 configuration.
type S3Config = infraS3.Config

// Config selects and configures a backend.
type Config struct {
	Driver Driver
	// Root is the data directory for the fs driver.
	Root string
	S3   S3Config
}

// Key returns the key of table's data file under prefix.
func Key(prefix, table string) string { return core.Key(prefix, table) }

// Open returns the Store described by cfg. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return infraFS.New(cfg.Root)
	case DriverS3:
		return infraS3.New(ctx, cfg.S3)
	case DriverMemory:
		return infraMemory.New(), nil
	default:
		return nil, fmt.Errorf("unknown reference data driver %q", cfg.Driver)
	}
}

// NewMemory returns an empty in-memory store.
func NewMemory() *infraMemory.Store { return infraMemory.New() }

// NewMockS3ForTests exposes the in-memory S3 fake for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
