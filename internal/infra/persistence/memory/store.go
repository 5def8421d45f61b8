// Package memory provides the in-memory transactional engine behind every
// persistence backend, and a standalone store for tests and ephemeral use.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orgdirectory/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

// Backend is the durable side of a Store shared with other processes. The
// store calls it under its write lock.
type Backend interface {
	// Begin opens a durable write that excludes every other writer until it
	// ends. A non-nil snapshot means another process committed since the
	// last call; the store adopts it before running the unit of work.
	Begin(ctx context.Context) (BackendTx, *Snapshot, error)
	// Refresh returns the committed state when it changed since the last
	// call, or nil.
	Refresh(ctx context.Context) (*Snapshot, error)
}

// BackendTx is a durable write opened by Backend.Begin.
type BackendTx interface {
	// Commit persists next. A non-nil error aborts the unit of work and
	// leaves the store unchanged.
	Commit(ctx context.Context, next Snapshot) error
	// Rollback releases the write. It is a no-op after Commit.
	Rollback() error
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for CreatedAt/UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithBackend makes b the durable write step of every commit and the source
// of state committed by other processes.
func WithBackend(b Backend) Option {
	return func(s *Store) { s.backend = b }
}

// Store provides an in-memory transactional store for the directory.
// Transactions are serialized; views run concurrently.
type Store struct {
	mu      sync.RWMutex
	state   memoryState
	engine  *domain.RulesEngine
	nowFn   func() time.Time
	backend Backend
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adopt(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *domain.RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The copy is published only when fn succeeds, no rule blocks and the
// backend (if any) persists it.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var btx BackendTx
	if s.backend != nil {
		opened, fresh, err := s.backend.Begin(ctx)
		if err != nil {
			return domain.Result{}, err
		}
		btx = opened
		defer func() { _ = btx.Rollback() }()
		if fresh != nil {
			s.adopt(*fresh)
		}
	}

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, fmt.Errorf("evaluate rules: %w", err)
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if btx != nil && len(tx.changes) > 0 {
		if err := btx.Commit(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return result, err
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only view of the committed state. The read
// lock is held for the duration of fn, so the view is point-in-time.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.backend != nil {
		if err := s.refresh(ctx); err != nil {
			return err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newTransactionView(&s.state))
}

func (s *Store) refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh, err := s.backend.Refresh(ctx)
	if err != nil {
		return err
	}
	if fresh != nil {
		s.adopt(*fresh)
	}
	return nil
}

// adopt replaces the state; callers hold the write lock.
func (s *Store) adopt(snapshot Snapshot) {
	s.state = memoryStateFromSnapshot(normalizeSnapshot(snapshot))
}
