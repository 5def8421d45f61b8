package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgdirectory/internal/config"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, err := OpenPersistentStore(context.Background(), config.Storage{Driver: string(StorageMemory)}, nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	svc := NewService(store)
	_, _, err = svc.CreateBuilding(context.Background(), BuildingInput{Address: "A", Latitude: 1, Longitude: 1})
	require.NoError(t, err)
}

func TestOpenPersistentStoreSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := config.Storage{SQLitePath: filepath.Join(t.TempDir(), "dir.db")}

	store, err := OpenPersistentStore(ctx, cfg, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	svc := NewService(store)
	_, err = svc.SeedFixtures(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenPersistentStore(ctx, cfg, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	st, err := NewService(reopened).FixtureStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, FixtureStatus{HasData: true, BuildingCount: 5, ActivityCount: 11, OrganizationCount: 10}, st)
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	_, err := OpenPersistentStore(context.Background(), config.Storage{Driver: "mongo"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo")
}
