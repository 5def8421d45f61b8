package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgdirectory/internal/infra/persistence/sqlstore"
	"orgdirectory/pkg/domain"
)

var stamp = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	return newMockFrom(t, func() (*sql.DB, sqlmock.Sqlmock, error) { return sqlmock.New() })
}

// newMockFrom is like newMock but lets the caller pass sqlmock options, whose
// type is unexported and therefore cannot appear in a helper signature.
func newMockFrom(t *testing.T, open func() (*sql.DB, sqlmock.Sqlmock, error)) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := open()
	require.NoError(t, err)
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		assert.Equal(t, defaultDriver, driver)
		assert.Equal(t, DefaultDSN, dsn)
		return db, nil
	})
	t.Cleanup(restore)
	return db, mock
}

func expectSchema(mock sqlmock.Sqlmock) {
	for range sqlstore.Postgres.Statements() {
		mock.ExpectExec("CREATE|INSERT INTO store_meta").WillReturnResult(sqlmock.NewResult(0, 0))
	}
}

func versionRows(v int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"version"}).AddRow(v)
}

// expectEmptyLoad expects a full reload at version inside a read transaction.
func expectEmptyLoad(mock sqlmock.Sqlmock, version int64) {
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version FROM store_meta").WillReturnRows(versionRows(version))
	expectEmptyTables(mock)
	mock.ExpectRollback()
}

func expectEmptyTables(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("FROM buildings").WillReturnRows(sqlmock.NewRows([]string{"id", "address", "latitude", "longitude", "created_at", "updated_at"}))
	mock.ExpectQuery("FROM activities").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "parent_id", "created_at", "updated_at"}))
	mock.ExpectQuery("FROM organizations").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "building_id", "created_at", "updated_at"}))
	mock.ExpectQuery("FROM phones").WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "number"}))
	mock.ExpectQuery("FROM organization_activities").WillReturnRows(sqlmock.NewRows([]string{"organization_id", "activity_id"}))
	mock.ExpectQuery("FROM sequences").WillReturnRows(sqlmock.NewRows([]string{"name", "value"}))
}

func TestNewStoreAppliesSchemaAndLoadsTables(t *testing.T) {
	_, mock := newMock(t)
	expectSchema(mock)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version FROM store_meta").WillReturnRows(versionRows(4))
	mock.ExpectQuery("FROM buildings").WillReturnRows(
		sqlmock.NewRows([]string{"id", "address", "latitude", "longitude", "created_at", "updated_at"}).
			AddRow(int64(1), "Lenina 1", 55.75, 37.61, stamp, stamp))
	mock.ExpectQuery("FROM activities").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "parent_id", "created_at", "updated_at"}).
			AddRow(int64(1), "Food", nil, stamp, stamp).
			AddRow(int64(2), "Meat", int64(1), stamp, stamp))
	mock.ExpectQuery("FROM organizations").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "building_id", "created_at", "updated_at"}).
			AddRow(int64(1), "Butcher", int64(1), stamp, stamp))
	mock.ExpectQuery("FROM phones").WillReturnRows(
		sqlmock.NewRows([]string{"id", "organization_id", "number"}).
			AddRow(int64(1), int64(1), "+7 999 000-00-00"))
	mock.ExpectQuery("FROM organization_activities").WillReturnRows(
		sqlmock.NewRows([]string{"organization_id", "activity_id"}).AddRow(int64(1), int64(2)))
	mock.ExpectQuery("FROM sequences").WillReturnRows(
		sqlmock.NewRows([]string{"name", "value"}).
			AddRow("building", int64(1)).
			AddRow("activity", int64(2)).
			AddRow("organization", int64(1)).
			AddRow("phone", int64(1)))
	mock.ExpectRollback()

	store, err := NewStore(context.Background(), "", domain.NewRulesEngine())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	// unchanged version: the view is served from memory
	mock.ExpectQuery("SELECT version FROM store_meta").WillReturnRows(versionRows(4))
	require.NoError(t, store.View(context.Background(), func(v domain.TransactionView) error {
		org, ok := v.FindOrganization(1)
		require.True(t, ok)
		assert.Equal(t, "Butcher", org.Name)
		assert.Equal(t, []int64{2}, org.ActivityIDs)
		assert.Equal(t, []string{"+7 999 000-00-00"}, org.PhoneNumbers())
		assert.Equal(t, stamp, org.CreatedAt)

		meat, ok := v.FindActivity(2)
		require.True(t, ok)
		require.NotNil(t, meat.ParentID)
		assert.Equal(t, int64(1), *meat.ParentID)
		return nil
	}))

	require.NoError(t, mock.ExpectationsWereMet())

	snap := store.ExportState()
	assert.Equal(t, int64(2), snap.Sequences.Activity)
}

func TestRunInTransactionRewritesTables(t *testing.T) {
	_, mock := newMock(t)
	expectSchema(mock)
	expectEmptyLoad(mock, 0)

	store, err := NewStore(context.Background(), "", domain.NewRulesEngine())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE store_meta SET version = version \\+ 1").WillReturnRows(versionRows(1))
	for _, table := range []string{"organization_activities", "phones", "organizations", "activities", "buildings", "sequences"} {
		mock.ExpectExec("DELETE FROM " + table).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("INSERT INTO buildings").
		WithArgs(int64(1), "Tverskaya 1", 55.76, 37.6, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	for _, seq := range []struct {
		name  string
		value int64
	}{{"building", 1}, {"activity", 0}, {"organization", 0}, {"phone", 0}} {
		mock.ExpectExec("INSERT INTO sequences").WithArgs(seq.name, seq.value).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateBuilding(domain.Building{Address: "Tverskaya 1", Latitude: 55.76, Longitude: 37.6})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Len(t, store.ExportState().Buildings, 1)
}

func TestCommitFailureLeavesStateUntouched(t *testing.T) {
	_, mock := newMock(t)
	expectSchema(mock)
	expectEmptyLoad(mock, 0)

	store, err := NewStore(context.Background(), "", domain.NewRulesEngine())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE store_meta").WillReturnRows(versionRows(1))
	mock.ExpectExec("DELETE FROM organization_activities").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateActivity(domain.Activity{Name: "Food"})
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.False(t, domain.IsValidation(err))
	assert.Empty(t, store.ExportState().Activities)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionReloadsTablesChangedElsewhere(t *testing.T) {
	_, mock := newMock(t)
	expectSchema(mock)
	expectEmptyLoad(mock, 0)

	store, err := NewStore(context.Background(), "", domain.NewRulesEngine())
	require.NoError(t, err)

	// another process committed twice; its root "Food" is loaded under the lock
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE store_meta").WillReturnRows(versionRows(3))
	mock.ExpectQuery("FROM buildings").WillReturnRows(sqlmock.NewRows([]string{"id", "address", "latitude", "longitude", "created_at", "updated_at"}))
	mock.ExpectQuery("FROM activities").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "parent_id", "created_at", "updated_at"}).
			AddRow(int64(1), "Food", nil, stamp, stamp))
	mock.ExpectQuery("FROM organizations").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "building_id", "created_at", "updated_at"}))
	mock.ExpectQuery("FROM phones").WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "number"}))
	mock.ExpectQuery("FROM organization_activities").WillReturnRows(sqlmock.NewRows([]string{"organization_id", "activity_id"}))
	mock.ExpectQuery("FROM sequences").WillReturnRows(sqlmock.NewRows([]string{"name", "value"}).AddRow("activity", int64(1)))
	mock.ExpectRollback()

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateActivity(domain.Activity{Name: "Food"})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, store.ExportState().Activities, 1)

	// the reloaded version is current, so the next view skips the reload
	mock.ExpectQuery("SELECT version FROM store_meta").WillReturnRows(versionRows(2))
	require.NoError(t, store.View(context.Background(), func(v domain.TransactionView) error {
		_, ok := v.FindActivity(1)
		assert.True(t, ok)
		return nil
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStorePingFailure(t *testing.T) {
	_, mock := newMockFrom(t, func() (*sql.DB, sqlmock.Sqlmock, error) {
		return sqlmock.New(sqlmock.MonitorPingsOption(true))
	})
	mock.ExpectPing().WillReturnError(errors.New("refused"))
	mock.ExpectClose()

	_, err := NewStore(context.Background(), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStoreSchemaFailure(t *testing.T) {
	_, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS buildings").WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()

	_, err := NewStore(context.Background(), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute ddl")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDialectNumbersPlaceholders(t *testing.T) {
	got := sqlstore.Postgres.Rebind("INSERT INTO phones (id, organization_id, number) VALUES (?, ?, ?)")
	assert.Equal(t, "INSERT INTO phones (id, organization_id, number) VALUES ($1, $2, $3)", got)
	assert.Equal(t, "SELECT ?", sqlstore.SQLite.Rebind("SELECT ?"))
}
