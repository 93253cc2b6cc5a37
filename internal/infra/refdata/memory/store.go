// Package memory implements an in-memory reference data Store for tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"gnutrition/internal/refdata/core"
)

type fileEntry struct {
	info core.Info
	data []byte
}

// Store implements core.Store backed by process memory.
type Store struct {
	mu    sync.RWMutex
	files map[string]fileEntry
}

// New returns an empty in-memory store.
func New() *Store { return &Store{files: make(map[string]fileEntry)} }

// Driver returns the driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Open returns a reader over a copy of the file.
func (s *Store) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	f, ok := s.files[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	data := make([]byte, len(f.data))
	copy(data, f.data)
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Stat returns file metadata.
func (s *Store) Stat(_ context.Context, key string) (core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[key]
	if !ok {
		return core.Info{}, fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	return f.info, nil
}

// List returns files matching prefix ordered by key.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Info, 0, len(s.files))
	for k, f := range s.files {
		if strings.HasPrefix(k, prefix) {
			out = append(out, f.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Put stores the contents of r at key, replacing any previous file.
func (s *Store) Put(_ context.Context, key string, r io.Reader) (core.Info, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	info := core.Info{Key: key, Size: int64(len(b)), LastModified: time.Now().UTC()}
	s.mu.Lock()
	s.files[key] = fileEntry{info: info, data: b}
	s.mu.Unlock()
	return info, nil
}

// PutString is a test convenience around Put.
func (s *Store) PutString(key, content string) {
	_, _ = s.Put(context.Background(), key, strings.NewReader(content))
}
