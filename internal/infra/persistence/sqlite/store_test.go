package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgdirectory/pkg/domain"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store *Store) (orgID int64) {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		b, err := tx.CreateBuilding(domain.Building{Address: "Arbat 10", Latitude: 55.75, Longitude: 37.59})
		if err != nil {
			return err
		}
		root, err := tx.CreateActivity(domain.Activity{Name: "Food"})
		if err != nil {
			return err
		}
		child, err := tx.CreateActivity(domain.Activity{Name: "Dairy", ParentID: domain.Int64Ptr(root.ID)})
		if err != nil {
			return err
		}
		org, err := tx.CreateOrganization(domain.Organization{Name: "Milk Bar", BuildingID: b.ID})
		if err != nil {
			return err
		}
		if _, err := tx.ReplaceOrganizationPhones(org.ID, []string{"+7 (495) 100-00-00"}); err != nil {
			return err
		}
		orgID = org.ID
		return tx.ReplaceOrganizationActivities(org.ID, []int64{child.ID})
	})
	require.NoError(t, err)
	return orgID
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "directory.db")
	store := openTestStore(t, path)
	orgID := seed(t, store)
	want := store.ExportState()
	require.NoError(t, store.Close())

	reloaded := openTestStore(t, path)
	got := reloaded.ExportState()
	assert.Equal(t, want, got)

	require.NoError(t, reloaded.View(context.Background(), func(v domain.TransactionView) error {
		org, ok := v.FindOrganization(orgID)
		require.True(t, ok)
		assert.Equal(t, []string{"+7 (495) 100-00-00"}, org.PhoneNumbers())
		assert.Equal(t, []int64{2}, org.ActivityIDs)
		return nil
	}))

	// sequences survive the reload
	_, err := reloaded.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		a, err := tx.CreateActivity(domain.Activity{Name: "Retail"})
		assert.Equal(t, int64(3), a.ID)
		return err
	})
	require.NoError(t, err)
}

func TestSQLiteStoreAppliesSchema(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "schema.db"))
	for _, table := range []string{"buildings", "activities", "organizations", "phones", "organization_activities", "sequences", "store_meta"} {
		var name string
		err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestSQLiteSchemaRejectsDuplicateSiblings(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "uq.db"))
	db := store.DB()
	_, err := db.Exec(`INSERT INTO activities (id, name, parent_id, created_at, updated_at) VALUES (1, 'Food', NULL, 'x', 'x')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO activities (id, name, parent_id, created_at, updated_at) VALUES (2, 'Food', NULL, 'x', 'x')`)
	assert.Error(t, err, "root siblings share one uniqueness group")
}

func TestSQLiteStoreFailedWriteRollsBackMemory(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "fail.db"))
	seed(t, store)
	before := store.ExportState()

	// a closed handle makes the durable write fail after rules pass
	require.NoError(t, store.DB().Close())
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateBuilding(domain.Building{Address: "Never"})
		return err
	})
	require.Error(t, err)
	assert.False(t, domain.IsValidation(err) || domain.IsNotFound(err), "backend failures are opaque")
	assert.Equal(t, before, store.ExportState())
}

func TestSQLiteStoresSharingFileKeepEachOthersCommits(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	a := openTestStore(t, path)
	b := openTestStore(t, path)

	_, err := a.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateBuilding(domain.Building{Address: "Arbat 1", Latitude: 55.75, Longitude: 37.59})
		return err
	})
	require.NoError(t, err)
	_, err = b.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateActivity(domain.Activity{Name: "Food"})
		return err
	})
	require.NoError(t, err)

	require.NoError(t, a.View(ctx, func(v domain.TransactionView) error {
		assert.Len(t, v.ListBuildings(), 1)
		assert.Len(t, v.ListActivities(), 1, "a sees the activity committed through b")
		return nil
	}))

	reopened := openTestStore(t, path)
	snap := reopened.ExportState()
	assert.Len(t, snap.Buildings, 1)
	assert.Len(t, snap.Activities, 1)
}

func TestSQLiteStoresSharingFileEnforceSiblingUniqueness(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "siblings.db")
	a := openTestStore(t, path)
	b := openTestStore(t, path)

	createFood := func(tx domain.Transaction) error {
		_, err := tx.CreateActivity(domain.Activity{Name: "Food"})
		return err
	}
	_, err := a.RunInTransaction(ctx, createFood)
	require.NoError(t, err)
	_, err = b.RunInTransaction(ctx, createFood)
	assert.ErrorIs(t, err, domain.ErrConflict)

	assert.Len(t, openTestStore(t, path).ExportState().Activities, 1)
}

func TestSQLiteConcurrentWritersAcrossStores(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "concurrent.db")
	stores := []*Store{openTestStore(t, path), openTestStore(t, path)}

	const perStore = 8
	var wg sync.WaitGroup
	errs := make(chan error, len(stores)*perStore)
	for si, store := range stores {
		for i := 0; i < perStore; i++ {
			wg.Add(1)
			go func(store *Store, address string) {
				defer wg.Done()
				_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
					_, err := tx.CreateBuilding(domain.Building{Address: address, Latitude: 55, Longitude: 37})
					return err
				})
				errs <- err
			}(store, fmt.Sprintf("Street %d-%d", si, i))
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snap := openTestStore(t, path).ExportState()
	require.Len(t, snap.Buildings, len(stores)*perStore)
	seen := make(map[int64]bool)
	for _, b := range snap.Buildings {
		assert.False(t, seen[b.ID], "id %d assigned twice", b.ID)
		seen[b.ID] = true
	}
	assert.Equal(t, int64(len(stores)*perStore), snap.Sequences.Building)
}

func TestOverrideSQLOpenPropagatesErrors(t *testing.T) {
	boom := errors.New("no driver")
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, boom })
	defer restore()

	_, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "x.db"), nil)
	assert.ErrorIs(t, err, boom)
}
