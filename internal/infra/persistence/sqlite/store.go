// Package sqlite provides a SQLite-backed persistent store. The memory engine
// runs every unit of work while holding the database write lock; committed
// state is written to normalized tables in the same critical section, so a
// failed write leaves both sides untouched and processes sharing the file
// never overwrite each other.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"orgdirectory/internal/infra/persistence/memory"
	"orgdirectory/internal/infra/persistence/sqlstore"
	"orgdirectory/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "orgdirectory.db"

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists the directory to a SQLite file.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the SQLite database at path, applies
// the schema and hydrates the in-memory engine from the stored rows.
func NewStore(ctx context.Context, path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	openMu.Lock()
	db, err := sqlOpen("sqlite", dsn(path))
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// pragmas are per connection; a single connection keeps them in force
	db.SetMaxOpenConns(1)
	if err := sqlstore.ApplySchema(ctx, db, sqlstore.SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	backend := sqlstore.NewBackend(db, sqlstore.SQLite)
	snapshot, err := backend.Load(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db, path: path}
	opts = append(opts, memory.WithBackend(backend))
	s.Store = memory.NewStore(engine, opts...)
	s.ImportState(snapshot)
	return s, nil
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

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
