package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgdirectory/pkg/domain"
	"orgdirectory/pkg/geo"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewStore(nil, opts...)
}

func mustRun(t *testing.T, s *Store, fn func(tx domain.Transaction) error) {
	t.Helper()
	_, err := s.RunInTransaction(context.Background(), fn)
	require.NoError(t, err)
}

func seedBasic(t *testing.T, s *Store) (building domain.Building, root, child domain.Activity) {
	t.Helper()
	mustRun(t, s, func(tx domain.Transaction) error {
		var err error
		building, err = tx.CreateBuilding(domain.Building{Address: "Lenina 1", Latitude: 55.75, Longitude: 37.61})
		if err != nil {
			return err
		}
		root, err = tx.CreateActivity(domain.Activity{Name: "Food"})
		if err != nil {
			return err
		}
		child, err = tx.CreateActivity(domain.Activity{Name: "Meat", ParentID: domain.Int64Ptr(root.ID)})
		return err
	})
	return building, root, child
}

func TestStoreAssignsSequentialIDsAndTimestamps(t *testing.T) {
	s := newTestStore(t)
	b, root, child := seedBasic(t, s)

	assert.Equal(t, int64(1), b.ID)
	assert.Equal(t, int64(1), root.ID)
	assert.Equal(t, int64(2), child.ID)
	assert.Equal(t, fixedNow, b.CreatedAt)
	assert.Equal(t, fixedNow, child.UpdatedAt)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, root.ID, *child.ParentID)
}

func TestStoreFailedTransactionLeavesNoTrace(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")

	_, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateBuilding(domain.Building{Address: "Tverskaya 7"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(context.Background(), func(v domain.TransactionView) error {
		assert.Empty(t, v.ListBuildings())
		return nil
	}))

	// the failed transaction must not consume sequence values
	b, _, _ := seedBasic(t, s)
	assert.Equal(t, int64(1), b.ID)
}

func TestStoreBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	s := NewStore(engine)

	res, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateBuilding(domain.Building{Address: "blocked"})
		return err
	})
	var rv domain.RuleViolationError
	require.ErrorAs(t, err, &rv)
	assert.True(t, res.HasBlocking())
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, s.ExportState().Buildings)
}

// fakeBackend records durable writes and hands out state "committed
// elsewhere" through pending.
type fakeBackend struct {
	failCommit bool
	beginErr   error
	pending    *Snapshot
	persisted  []Snapshot
	begins     int
	rollbacks  int
}

type fakeBackendTx struct {
	b    *fakeBackend
	done bool
}

func (b *fakeBackend) Begin(context.Context) (BackendTx, *Snapshot, error) {
	if b.beginErr != nil {
		return nil, nil, b.beginErr
	}
	b.begins++
	fresh := b.pending
	b.pending = nil
	return &fakeBackendTx{b: b}, fresh, nil
}

func (b *fakeBackend) Refresh(context.Context) (*Snapshot, error) {
	fresh := b.pending
	b.pending = nil
	return fresh, nil
}

func (tx *fakeBackendTx) Commit(_ context.Context, next Snapshot) error {
	if tx.b.failCommit {
		return errors.New("disk full")
	}
	tx.done = true
	tx.b.persisted = append(tx.b.persisted, next)
	return nil
}

func (tx *fakeBackendTx) Rollback() error {
	if !tx.done {
		tx.b.rollbacks++
	}
	tx.done = true
	return nil
}

func TestStoreBackendFailureKeepsPreviousState(t *testing.T) {
	backend := &fakeBackend{failCommit: true}
	s := newTestStore(t, WithBackend(backend))

	_, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateBuilding(domain.Building{Address: "A"})
		return err
	})
	require.EqualError(t, err, "disk full")
	assert.Empty(t, s.ExportState().Buildings)
	assert.Equal(t, 1, backend.rollbacks)

	backend.failCommit = false
	seedBasic(t, s)
	require.Len(t, backend.persisted, 1)
	assert.Len(t, backend.persisted[0].Buildings, 1)
	assert.Len(t, backend.persisted[0].Activities, 2)

	// read-only transactions release the write without persisting
	mustRun(t, s, func(domain.Transaction) error { return nil })
	assert.Len(t, backend.persisted, 1)
	assert.Equal(t, 2, backend.rollbacks)
	assert.Equal(t, 3, backend.begins)
}

func TestStoreBackendBeginErrorSkipsUnitOfWork(t *testing.T) {
	backend := &fakeBackend{beginErr: errors.New("database is locked")}
	s := newTestStore(t, WithBackend(backend))

	ran := false
	_, err := s.RunInTransaction(context.Background(), func(domain.Transaction) error {
		ran = true
		return nil
	})
	require.EqualError(t, err, "database is locked")
	assert.False(t, ran)
}

func TestStoreAdoptsStateCommittedElsewhere(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestStore(t, WithBackend(backend))
	seedBasic(t, s)

	// another process added a sibling "Dairy" under Food and a second building
	other := NewStore(nil)
	other.ImportState(s.ExportState())
	mustRun(t, other, func(tx domain.Transaction) error {
		if _, err := tx.CreateActivity(domain.Activity{Name: "Dairy", ParentID: domain.Int64Ptr(1)}); err != nil {
			return err
		}
		_, err := tx.CreateBuilding(domain.Building{Address: "Tverskaya 2", Latitude: 55.76, Longitude: 37.6})
		return err
	})
	committed := other.ExportState()
	backend.pending = &committed

	// the unit of work sees the fresh rows, so the sibling check holds
	_, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateActivity(domain.Activity{Name: "Dairy", ParentID: domain.Int64Ptr(1)})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Len(t, s.ExportState().Buildings, 2, "adopted state survives a failed unit of work")

	next := s.ExportState()
	next.Buildings = next.Buildings[:1]
	backend.pending = &next
	require.NoError(t, s.View(context.Background(), func(v domain.TransactionView) error {
		assert.Len(t, v.ListBuildings(), 1)
		return nil
	}))
}

func TestStoreSerializesConcurrentSiblingCreates(t *testing.T) {
	s := newTestStore(t)
	const workers = 32
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
				_, err := tx.CreateActivity(domain.Activity{Name: "Food"})
				return err
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, s.ExportState().Activities, 1)
}

func TestStoreBuildingConstraints(t *testing.T) {
	s := newTestStore(t)
	b, _, _ := seedBasic(t, s)

	_, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateBuilding(domain.Building{Address: b.Address})
		return err
	})
	assert.True(t, domain.IsConflict(err))

	mustRun(t, s, func(tx domain.Transaction) error {
		org, err := tx.CreateOrganization(domain.Organization{Name: "Acme", BuildingID: b.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), org.ID)
		return nil
	})

	_, err = s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteBuilding(b.ID)
	})
	assert.True(t, domain.IsValidation(err))
	assert.False(t, domain.IsConflict(err))

	_, err = s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteBuilding(99)
	})
	assert.True(t, domain.IsNotFound(err))
}

func TestStoreActivityConstraints(t *testing.T) {
	s := newTestStore(t)
	_, root, child := seedBasic(t, s)
	ctx := context.Background()

	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateActivity(domain.Activity{Name: "Meat", ParentID: domain.Int64Ptr(root.ID)})
		return err
	})
	assert.True(t, domain.IsConflict(err), "sibling name must be unique")

	_, err = s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateActivity(domain.Activity{Name: "Food"})
		return err
	})
	assert.True(t, domain.IsConflict(err), "roots form one sibling group")

	mustRun(t, s, func(tx domain.Transaction) error {
		// same name under a different parent is fine
		_, err := tx.CreateActivity(domain.Activity{Name: "Meat"})
		return err
	})

	_, err = s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateActivity(domain.Activity{Name: "Orphan", ParentID: domain.Int64Ptr(42)})
		return err
	})
	assert.True(t, domain.IsValidation(err))
	assert.False(t, domain.IsConflict(err))

	_, err = s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateActivity(child.ID, func(a *domain.Activity) error {
			a.ParentID = domain.Int64Ptr(child.ID)
			return nil
		})
		return err
	})
	assert.True(t, domain.IsValidation(err))

	_, err = s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteActivity(root.ID)
	})
	assert.True(t, domain.IsValidation(err), "activities with children cannot be deleted")
}

func TestStoreUpdateActivityKeepsNameWhenUnchanged(t *testing.T) {
	s := newTestStore(t)
	_, _, child := seedBasic(t, s)

	mustRun(t, s, func(tx domain.Transaction) error {
		updated, err := tx.UpdateActivity(child.ID, func(a *domain.Activity) error { return nil })
		require.NoError(t, err)
		assert.Equal(t, child.Name, updated.Name)
		return nil
	})
}

func TestStoreOrganizationLifecycle(t *testing.T) {
	s := newTestStore(t)
	b, root, child := seedBasic(t, s)
	ctx := context.Background()

	var orgID int64
	mustRun(t, s, func(tx domain.Transaction) error {
		org, err := tx.CreateOrganization(domain.Organization{Name: "Acme", BuildingID: b.ID})
		if err != nil {
			return err
		}
		orgID = org.ID
		phones, err := tx.ReplaceOrganizationPhones(org.ID, []string{"+7 111 222-33-44", "8-800-000"})
		if err != nil {
			return err
		}
		assert.Equal(t, []int64{1, 2}, []int64{phones[0].ID, phones[1].ID})
		return tx.ReplaceOrganizationActivities(org.ID, []int64{child.ID, root.ID, child.ID})
	})

	require.NoError(t, s.View(ctx, func(v domain.TransactionView) error {
		org, ok := v.FindOrganization(orgID)
		require.True(t, ok)
		assert.Equal(t, []string{"+7 111 222-33-44", "8-800-000"}, org.PhoneNumbers())
		assert.Equal(t, []int64{root.ID, child.ID}, org.ActivityIDs)
		assert.Equal(t, 1, v.CountOrganizationsForActivity(child.ID))
		assert.Len(t, v.ListOrganizationsByActivities([]int64{root.ID, child.ID}), 1)
		assert.Len(t, v.SearchOrganizationsByName("acm"), 1)
		assert.Empty(t, v.SearchOrganizationsByName("zzz"))
		return nil
	}))

	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteActivity(child.ID)
	})
	assert.True(t, domain.IsValidation(err), "linked activity cannot be deleted")

	_, err = s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.ReplaceOrganizationActivities(orgID, []int64{root.ID, 404})
	})
	assert.True(t, domain.IsValidation(err))

	_, err = s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateOrganization(domain.Organization{Name: "Acme", BuildingID: b.ID})
		return err
	})
	assert.True(t, domain.IsConflict(err))

	_, err = s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateOrganization(domain.Organization{Name: "Other", BuildingID: 77})
		return err
	})
	assert.True(t, domain.IsValidation(err))

	mustRun(t, s, func(tx domain.Transaction) error { return tx.DeleteOrganization(orgID) })
	snap := s.ExportState()
	assert.Empty(t, snap.Organizations)
	assert.Empty(t, snap.Phones, "phones cascade with their organization")
	assert.Empty(t, snap.Links)
}

func TestStoreSnapshotRoundTripAndSequenceRepair(t *testing.T) {
	s := newTestStore(t)
	seedBasic(t, s)
	snap := s.ExportState()

	restored := newTestStore(t)
	restored.ImportState(snap)
	assert.Equal(t, snap, restored.ExportState())

	// sequences that lag behind stored rows are moved forward on import
	snap.Sequences = Sequences{}
	restored.ImportState(snap)
	mustRun(t, restored, func(tx domain.Transaction) error {
		a, err := tx.CreateActivity(domain.Activity{Name: "Retail"})
		assert.Equal(t, int64(3), a.ID)
		return err
	})
}

func TestViewSpatialAndOrdering(t *testing.T) {
	s := newTestStore(t)
	mustRun(t, s, func(tx domain.Transaction) error {
		for _, b := range []domain.Building{
			{Address: "C", Latitude: 10, Longitude: 10},
			{Address: "A", Latitude: 0, Longitude: 0},
			{Address: "B", Latitude: 5, Longitude: 5},
		} {
			if _, err := tx.CreateBuilding(b); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, s.View(context.Background(), func(v domain.TransactionView) error {
		in := v.ListBuildingsInBounds(geo.Bounds{MinLat: 0, MaxLat: 5, MinLng: 0, MaxLng: 5})
		require.Len(t, in, 2)
		assert.Equal(t, []int64{2, 3}, []int64{in[0].ID, in[1].ID})
		roots := v.ListActivityChildren(nil)
		assert.Empty(t, roots)
		return nil
	}))
}

func TestRunInTransactionHonoursCancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err := s.RunInTransaction(ctx, func(domain.Transaction) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(context.Context, domain.TransactionView, []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock}}}, nil
}
