package core

import (
	"context"
	"fmt"

	"orgdirectory/internal/config"
	"orgdirectory/internal/infra/persistence/memory"
	"orgdirectory/internal/infra/persistence/postgres"
	"orgdirectory/internal/infra/persistence/sqlite"
	"orgdirectory/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// ClosableStore is a PersistentStore holding external resources.
type ClosableStore interface {
	PersistentStore
	Close() error
}

type nopCloser struct{ PersistentStore }

func (nopCloser) Close() error { return nil }

// OpenPersistentStore selects a backend from cfg. An empty driver means sqlite
// and a nil engine selects NewDefaultRulesEngine.
func OpenPersistentStore(ctx context.Context, cfg config.Storage, engine *RulesEngine) (ClosableStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return nopCloser{memory.NewStore(engine)}, nil
	case StorageSQLite:
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
