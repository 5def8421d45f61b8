package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orgdirectory/internal/infra/persistence/memory"
)

const (
	selectVersion = `SELECT version FROM store_meta WHERE id = 1`
	bumpVersion   = `UPDATE store_meta SET version = version + 1 WHERE id = 1 RETURNING version`
)

// Compile-time assertion that Backend plugs into the memory engine.
var _ memory.Backend = (*Backend)(nil)

// Backend keeps a memory engine and the normalized tables in step when
// several processes share one database. Each durable write starts by bumping
// store_meta.version, which holds the row lock (Postgres) or the database
// write lock (SQLite) until the write ends; tables changed by another writer
// are reloaded before the unit of work runs.
//
// A Backend is not safe for concurrent use; memory.Store serializes calls
// under its write lock.
type Backend struct {
	db      *sql.DB
	dialect Dialect
	version int64
}

// NewBackend returns a Backend writing through db.
func NewBackend(db *sql.DB, d Dialect) *Backend {
	return &Backend{db: db, dialect: d, version: -1}
}

// Version reports the last store_meta.version this backend observed.
func (b *Backend) Version() int64 { return b.version }

// Load reads the committed state regardless of the version seen so far.
func (b *Backend) Load(ctx context.Context) (memory.Snapshot, error) {
	tx, err := b.db.BeginTx(ctx, b.dialect.ReadOptions)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	version, err := readVersion(ctx, tx, selectVersion)
	if err != nil {
		return memory.Snapshot{}, err
	}
	snap, err := Load(ctx, tx)
	if err != nil {
		return memory.Snapshot{}, err
	}
	b.version = version
	return snap, nil
}

// Refresh reloads the tables when another writer moved the version.
func (b *Backend) Refresh(ctx context.Context) (*memory.Snapshot, error) {
	version, err := readVersion(ctx, b.db, selectVersion)
	if err != nil {
		return nil, err
	}
	if version == b.version {
		return nil, nil
	}
	snap, err := b.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Begin takes the write lock by bumping the version. When the previous
// version is not the one last seen, the tables are reloaded inside the same
// transaction and returned.
func (b *Backend) Begin(ctx context.Context) (memory.BackendTx, *memory.Snapshot, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin %s: %w", b.dialect.Name, err)
	}
	version, err := readVersion(ctx, tx, bumpVersion)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, err
	}
	var fresh *memory.Snapshot
	if previous := version - 1; previous != b.version {
		snap, err := Load(ctx, tx)
		if err != nil {
			_ = tx.Rollback()
			return nil, nil, err
		}
		b.version = previous
		fresh = &snap
	}
	return &backendTx{backend: b, tx: tx, version: version}, fresh, nil
}

type backendTx struct {
	backend *Backend
	tx      *sql.Tx
	version int64
}

// Commit rewrites the tables from next and releases the lock.
func (t *backendTx) Commit(ctx context.Context, next memory.Snapshot) error {
	d := t.backend.dialect
	if err := writeSnapshot(ctx, t.tx, d, next); err != nil {
		return fmt.Errorf("persist %s: %w", d.Name, err)
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("persist %s: commit: %w", d.Name, err)
	}
	t.backend.version = t.version
	return nil
}

// Rollback undoes the version bump. It is a no-op after Commit.
func (t *backendTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func readVersion(ctx context.Context, q Querier, query string) (int64, error) {
	var version int64
	if err := q.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return 0, fmt.Errorf("read store version: %w", err)
	}
	return version, nil
}
