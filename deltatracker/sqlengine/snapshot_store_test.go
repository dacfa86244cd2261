package sqlengine_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
	"github.com/AntonStoeckl/table-delta-tracker/deltatracker/sqlengine"
	. "github.com/AntonStoeckl/table-delta-tracker/testutil/helper" //nolint:revive
)

func newSQLiteStore(t *testing.T, db *sql.DB, options ...sqlengine.StoreOption) *sqlengine.SnapshotStore {
	t.Helper()

	options = append([]sqlengine.StoreOption{sqlengine.WithStoreDialect(sqlengine.DialectSQLite3)}, options...)
	store, err := sqlengine.NewSnapshotStoreFromSQLDB(db, options...)
	require.NoError(t, err)

	return store
}

func Test_NewSnapshotStore_RejectsInvalidInput(t *testing.T) {
	db := openSQLiteDB(t)

	_, err := sqlengine.NewSnapshotStoreFromSQLDB(db, sqlengine.WithStoreDialect(sqlengine.DialectSQLServer))
	assert.ErrorIs(t, err, sqlengine.ErrUnsupportedDialect)

	_, err = sqlengine.NewSnapshotStoreFromSQLDB(db, sqlengine.WithStoreTableName(""))
	assert.ErrorIs(t, err, sqlengine.ErrEmptyTableName)

	_, err = sqlengine.NewSnapshotStoreFromSQLDB(nil)
	assert.ErrorIs(t, err, sqlengine.ErrNilDatabaseConnection)

	_, err = sqlengine.NewSnapshotStoreFromSQLX(nil)
	assert.ErrorIs(t, err, sqlengine.ErrNilDatabaseConnection)

	_, err = sqlengine.NewSnapshotStoreFromPGXPool(nil)
	assert.ErrorIs(t, err, sqlengine.ErrNilDatabaseConnection)
}

func Test_SnapshotStore_GetLatest_WithoutSnapshots_ReturnsNil(t *testing.T) {
	// setup
	store := newSQLiteStore(t, openSQLiteDB(t))

	// act
	latest, err := store.GetLatest(context.Background(), trackedID)

	// assert
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func Test_SnapshotStore_PutThenGetLatest_RoundTripsAllFields(t *testing.T) {
	// setup
	ctx := context.Background()
	store := newSQLiteStore(t, openSQLiteDB(t))

	// arrange
	snapshot := givenSnapshot(1_700_000_000_000_001, 17, 15, t0.Add(time.Minute))
	snapshot.MaxCreatedAt = sql.NullTime{Time: t0.Add(1500 * time.Millisecond), Valid: true}
	snapshot.CreatedCount = 7
	snapshot.ModifiedCount = 3
	snapshot.DeletedCount = 2

	// act
	require.NoError(t, store.Put(ctx, snapshot))
	latest, err := store.GetLatest(ctx, trackedID)

	// assert
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, snapshot.TableID, latest.TableID)
	assert.Equal(t, snapshot.CapturedAt, latest.CapturedAt)
	assert.Equal(t, snapshot.MaxPrimaryKey, latest.MaxPrimaryKey)
	assert.True(t, latest.MaxModifiedAt.Time.Equal(snapshot.MaxModifiedAt.Time))
	assert.True(t, latest.MaxCreatedAt.Time.Equal(snapshot.MaxCreatedAt.Time), "sub-second precision survives")
	assert.Equal(t, int64(15), latest.TotalRowCount)
	assert.Equal(t, int64(7), latest.CreatedCount)
	assert.Equal(t, int64(3), latest.ModifiedCount)
	assert.Equal(t, int64(2), latest.DeletedCount)
	assert.Equal(t, snapshot.RunUUID, latest.RunUUID)
}

func Test_SnapshotStore_EmptySourceSnapshot_KeepsNullWatermark(t *testing.T) {
	// setup
	ctx := context.Background()
	store := newSQLiteStore(t, openSQLiteDB(t))

	// arrange
	snapshot := deltatracker.Snapshot{TableID: trackedID, CapturedAt: 5, RunUUID: "run-5"}

	// act
	require.NoError(t, store.Put(ctx, snapshot))
	latest, err := store.GetLatest(ctx, trackedID)

	// assert
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.False(t, latest.MaxPrimaryKey.Valid)
	assert.False(t, latest.MaxModifiedAt.Valid)
	assert.False(t, latest.MaxCreatedAt.Valid)
}

func Test_SnapshotStore_GetLatest_ReturnsLargestCapturedAtPerTable(t *testing.T) {
	// setup
	ctx := context.Background()
	store := newSQLiteStore(t, openSQLiteDB(t))

	// arrange
	require.NoError(t, store.Put(ctx, givenSnapshot(30, 3, 3, t0)))
	require.NoError(t, store.Put(ctx, givenSnapshot(10, 1, 1, t0)))
	require.NoError(t, store.Put(ctx, givenSnapshot(20, 2, 2, t0)))

	other := givenSnapshot(99, 9, 9, t0)
	other.TableID = "EDW.fact.Other"
	require.NoError(t, store.Put(ctx, other))

	// act
	latest, err := store.GetLatest(ctx, trackedID)

	// assert
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(30), latest.CapturedAt)
	assert.Equal(t, int64(3), latest.MaxPrimaryKey.Int64)
}

func Test_SnapshotStore_Put_SameKeyOverwrites(t *testing.T) {
	// setup
	ctx := context.Background()
	store := newSQLiteStore(t, openSQLiteDB(t))

	// arrange
	require.NoError(t, store.Put(ctx, givenSnapshot(10, 1, 1, t0)))

	replacement := givenSnapshot(10, 5, 5, t0.Add(time.Hour))
	replacement.CreatedCount = 4

	// act
	err := store.Put(ctx, replacement)

	// assert
	require.NoError(t, err)
	latest, getErr := store.GetLatest(ctx, trackedID)
	require.NoError(t, getErr)
	require.NotNil(t, latest)
	assert.Equal(t, int64(5), latest.MaxPrimaryKey.Int64)
	assert.Equal(t, int64(4), latest.CreatedCount)
	assert.True(t, latest.MaxModifiedAt.Time.Equal(t0.Add(time.Hour)))
}

func Test_SnapshotStore_Put_RejectsInvalidSnapshot(t *testing.T) {
	// setup
	store := newSQLiteStore(t, openSQLiteDB(t))

	// act
	err := store.Put(context.Background(), deltatracker.Snapshot{TableID: trackedID})

	// assert
	assert.ErrorIs(t, err, deltatracker.ErrSavingSnapshotFailed)
	assert.ErrorIs(t, err, deltatracker.ErrNonPositiveCapturedAt)
}

func Test_SnapshotStore_WithoutProvisioning_FailsUntilProvisioned(t *testing.T) {
	// setup
	ctx := context.Background()
	store := newSQLiteStore(t, openSQLiteDB(t), sqlengine.WithoutProvisioning())

	// act
	_, getErr := store.GetLatest(ctx, trackedID)
	provisionErr := store.Provision(ctx)
	latest, getAfterProvisionErr := store.GetLatest(ctx, trackedID)

	// assert
	assert.ErrorIs(t, getErr, deltatracker.ErrLoadingSnapshotFailed)
	require.NoError(t, provisionErr)
	require.NoError(t, getAfterProvisionErr)
	assert.Nil(t, latest)
}

func Test_SnapshotStore_Provision_IsIdempotent(t *testing.T) {
	// setup
	ctx := context.Background()
	logHandler := NewLogHandlerSpy(false)
	store := newSQLiteStore(t, openSQLiteDB(t),
		sqlengine.WithStoreTableName("tracker_snapshots"),
		sqlengine.WithStoreLogger(slog.New(logHandler)),
	)

	// act
	firstErr := store.Provision(ctx)
	secondErr := store.Provision(ctx)

	// assert
	require.NoError(t, firstErr)
	require.NoError(t, secondErr)
	assert.True(t,
		logHandler.HasInfoLogWithMessage("snapshot table provisioned").WithAttr("table", "tracker_snapshots").Assert(),
	)
}

func Test_SnapshotStore_CanceledContext_Fails(t *testing.T) {
	// setup
	store := newSQLiteStore(t, openSQLiteDB(t))

	// act
	_, getErr := store.GetLatest(canceledContext(), trackedID)
	putErr := store.Put(canceledContext(), givenSnapshot(1, 1, 1, t0))

	// assert
	assert.ErrorIs(t, getErr, deltatracker.ErrLoadingSnapshotFailed)
	assert.ErrorIs(t, putErr, deltatracker.ErrSavingSnapshotFailed)
}

func Test_SnapshotStore_RendersDialects(t *testing.T) {
	db := openSQLiteDB(t)
	snapshot := givenSnapshot(10, 1, 1, t0)

	testCases := []struct {
		name           string
		dialect        sqlengine.Dialect
		upsertContains string
		tableContains  string
	}{
		{
			name:           "postgres",
			dialect:        sqlengine.DialectPostgres,
			upsertContains: "ON CONFLICT (table_id, captured_at) DO UPDATE SET",
			tableContains:  `CREATE TABLE IF NOT EXISTS "tracker"."snapshots"`,
		},
		{
			name:           "sqlite3",
			dialect:        sqlengine.DialectSQLite3,
			upsertContains: "ON CONFLICT  (table_id, captured_at) DO UPDATE SET",
			tableContains:  "CREATE TABLE IF NOT EXISTS `tracker`.`snapshots`",
		},
		{
			name:           "mysql",
			dialect:        sqlengine.DialectMySQL,
			upsertContains: "ON DUPLICATE KEY UPDATE",
			tableContains:  "CREATE TABLE IF NOT EXISTS `tracker`.`snapshots`",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// setup
			store, err := sqlengine.NewSnapshotStoreFromSQLDB(db,
				sqlengine.WithStoreDialect(tc.dialect),
				sqlengine.WithStoreTableName("tracker.snapshots"),
			)
			require.NoError(t, err)

			// act
			upsert, upsertErr := store.BuildUpsertQuery(snapshot)
			selectLatest, selectErr := store.BuildSelectLatestQuery(trackedID)
			createTable := store.CreateTableStatement()

			// assert
			require.NoError(t, upsertErr)
			require.NoError(t, selectErr)
			assert.Contains(t, upsert, tc.upsertContains)
			assert.Contains(t, upsert, "'2024-01-01T10:00:00Z'", "timestamps are stored as ISO-8601 text")
			assert.Contains(t, selectLatest, "LIMIT 1")
			assert.Contains(t, createTable, tc.tableContains)
		})
	}
}
