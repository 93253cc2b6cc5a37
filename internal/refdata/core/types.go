// Package core defines the abstractions for reference data sources: the
// places the delimited nutrient database release files are read from.
package core

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// Driver identifies a concrete reference data backend.
type Driver string

const (
	// DriverFilesystem reads files under a local install directory.
	DriverFilesystem Driver = "fs" // local install directory (default)
	// DriverS3 reads objects from an S3 / MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory holds files in process memory, typically for tests.
	DriverMemory Driver = "memory"
)

// Info describes one stored data file.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Store provides keyed access to reference data files. Keys use forward
// slashes regardless of platform.
type Store interface {
	// Open streams the file at key. A missing file yields an error matching
	// ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Stat returns metadata only.
	Stat(ctx context.Context, key string) (Info, error)
	// List returns the files whose key has prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	// Put stores r at key, replacing any previous file.
	Put(ctx context.Context, key string, r io.Reader) (Info, error)
	// Driver returns the configured backend driver.
	Driver() Driver
}

// ErrNotFound is returned when a data file does not exist.
var ErrNotFound = errors.New("refdata: file not found")

// Key returns the key of the data file for table under prefix: the upper-cased
// table name with a .txt extension.
func Key(prefix, table string) string {
	name := strings.ToUpper(table) + ".txt"
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
