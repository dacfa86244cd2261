package sqlengine_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
)

const (
	sourceTable = "outbound_detail"
	trackedID   = "EDW.fact.JDA_OutboundDetail"
)

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func openSQLiteDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "tracker.db")+"?_time_format=sqlite")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = db.Close()
	})

	_, err = db.Exec(fmt.Sprintf(
		"CREATE TABLE %s (ID INTEGER PRIMARY KEY, Created TEXT NULL, Modified TEXT NULL)", sourceTable,
	))
	require.NoError(t, err)

	return db
}

// sqliteTimestamp writes timestamps the way goqu renders sqlite3 time literals, so text comparison works.
func sqliteTimestamp(at time.Time) string {
	return at.UTC().Format(time.RFC3339Nano)
}

func givenSourceRows(t testing.TB, db *sql.DB, from, to int64, modifiedAt time.Time) {
	t.Helper()

	for id := from; id <= to; id++ {
		_, err := db.Exec(
			fmt.Sprintf("INSERT INTO %s (ID, Created, Modified) VALUES (?, ?, ?)", sourceTable),
			id, sqliteTimestamp(modifiedAt), sqliteTimestamp(modifiedAt),
		)
		require.NoError(t, err)
	}
}

func givenTouchedRows(t testing.TB, db *sql.DB, modifiedAt time.Time, ids ...int64) {
	t.Helper()

	for _, id := range ids {
		_, err := db.Exec(
			fmt.Sprintf("UPDATE %s SET Modified = ? WHERE ID = ?", sourceTable),
			sqliteTimestamp(modifiedAt), id,
		)
		require.NoError(t, err)
	}
}

// givenTouchedRowsAsTime leaves the timestamp layout to the driver.
func givenTouchedRowsAsTime(t testing.TB, db *sql.DB, modifiedAt time.Time, ids ...int64) {
	t.Helper()

	for _, id := range ids {
		_, err := db.Exec(fmt.Sprintf("UPDATE %s SET Modified = ? WHERE ID = ?", sourceTable), modifiedAt, id)
		require.NoError(t, err)
	}
}

func givenDeletedRows(t testing.TB, db *sql.DB, ids ...int64) {
	t.Helper()

	for _, id := range ids {
		_, err := db.Exec(fmt.Sprintf("DELETE FROM %s WHERE ID = ?", sourceTable), id)
		require.NoError(t, err)
	}
}

func givenSnapshot(capturedAt, maxPK, total int64, maxModifiedAt time.Time) deltatracker.Snapshot {
	return deltatracker.Snapshot{
		TableID:       trackedID,
		CapturedAt:    capturedAt,
		MaxPrimaryKey: sql.NullInt64{Int64: maxPK, Valid: true},
		MaxModifiedAt: sql.NullTime{Time: maxModifiedAt, Valid: true},
		TotalRowCount: total,
		RunUUID:       fmt.Sprintf("run-%d", capturedAt),
	}
}

func boundAfter(previous time.Time) *deltatracker.ModifiedBound {
	bound := deltatracker.ModifiedBoundAfter(previous)
	return &bound
}

func canceledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	return ctx
}
