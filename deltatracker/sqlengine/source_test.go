package sqlengine_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
	"github.com/AntonStoeckl/table-delta-tracker/deltatracker/sqlengine"
	. "github.com/AntonStoeckl/table-delta-tracker/testutil/helper" //nolint:revive
)

func newSQLiteSource(t *testing.T, db *sql.DB, options ...sqlengine.SourceOption) *sqlengine.Source {
	t.Helper()

	options = append([]sqlengine.SourceOption{sqlengine.WithSourceDialect(sqlengine.DialectSQLite3)}, options...)
	source, err := sqlengine.NewSourceFromSQLDB(db, sourceTable, options...)
	require.NoError(t, err)

	return source
}

func Test_NewSource_RejectsInvalidInput(t *testing.T) {
	db := openSQLiteDB(t)

	testCases := []struct {
		name      string
		tableName string
		options   []sqlengine.SourceOption
		wantErr   error
	}{
		{name: "empty table name", tableName: "", wantErr: sqlengine.ErrEmptyTableName},
		{name: "empty name part", tableName: "EDW..JDA", wantErr: sqlengine.ErrInvalidTableName},
		{name: "four name parts", tableName: "a.b.c.d", wantErr: sqlengine.ErrInvalidTableName},
		{
			name:      "empty primary key column",
			tableName: sourceTable,
			options:   []sqlengine.SourceOption{sqlengine.WithPrimaryKeyColumn("")},
			wantErr:   sqlengine.ErrEmptyColumnName,
		},
		{
			name:      "empty modified column",
			tableName: sourceTable,
			options:   []sqlengine.SourceOption{sqlengine.WithModifiedColumn("")},
			wantErr:   sqlengine.ErrEmptyColumnName,
		},
		{
			name:      "unknown dialect",
			tableName: sourceTable,
			options:   []sqlengine.SourceOption{sqlengine.WithSourceDialect("oracle")},
			wantErr:   sqlengine.ErrUnsupportedDialect,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, err := sqlengine.NewSourceFromSQLDB(db, tc.tableName, tc.options...)

			// assert
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func Test_NewSource_RejectsNilConnections(t *testing.T) {
	_, err := sqlengine.NewSourceFromSQLDB(nil, sourceTable)
	assert.ErrorIs(t, err, sqlengine.ErrNilDatabaseConnection)

	_, err = sqlengine.NewSourceFromSQLX(nil, sourceTable)
	assert.ErrorIs(t, err, sqlengine.ErrNilDatabaseConnection)

	_, err = sqlengine.NewSourceFromPGXPool(nil, sourceTable)
	assert.ErrorIs(t, err, sqlengine.ErrNilDatabaseConnection)
}

func Test_Source_EmptyTable_YieldsNullMaximaAndZeroCounts(t *testing.T) {
	// setup
	ctx := context.Background()
	source := newSQLiteSource(t, openSQLiteDB(t), sqlengine.WithCreatedColumn("Created"))

	// act
	maxPK, maxPKErr := source.MaxPrimaryKey(ctx)
	maxModified, maxModifiedErr := source.MaxModifiedAt(ctx)
	maxCreated, maxCreatedErr := source.MaxCreatedAt(ctx)
	total, totalErr := source.CountRows(ctx)

	// assert
	require.NoError(t, maxPKErr)
	require.NoError(t, maxModifiedErr)
	require.NoError(t, maxCreatedErr)
	require.NoError(t, totalErr)
	assert.False(t, maxPK.Valid)
	assert.False(t, maxModified.Valid)
	assert.False(t, maxCreated.Valid)
	assert.Zero(t, total)
}

func Test_Source_ScalarAggregates(t *testing.T) {
	// setup
	ctx := context.Background()
	db := openSQLiteDB(t)
	source := newSQLiteSource(t, db)

	// arrange
	givenSourceRows(t, db, 1, 10, t0)
	givenSourceRows(t, db, 11, 12, t0.Add(time.Minute))
	givenTouchedRows(t, db, t0.Add(2*time.Minute), 3, 4)

	// act
	maxPK, err := source.MaxPrimaryKey(ctx)
	require.NoError(t, err)
	maxModified, err := source.MaxModifiedAt(ctx)
	require.NoError(t, err)
	maxCreated, err := source.MaxCreatedAt(ctx)
	require.NoError(t, err)
	total, err := source.CountRows(ctx)
	require.NoError(t, err)
	created, err := source.CountCreatedAfter(ctx, 10)
	require.NoError(t, err)
	modified, err := source.CountModifiedAfter(ctx, *boundAfter(t0.Add(time.Minute)), 10)
	require.NoError(t, err)

	// assert
	assert.Equal(t, sql.NullInt64{Int64: 12, Valid: true}, maxPK)
	assert.True(t, maxModified.Time.Equal(t0.Add(2*time.Minute)))
	assert.False(t, maxCreated.Valid, "no created column configured")
	assert.Equal(t, int64(12), total)
	assert.Equal(t, int64(2), created)
	assert.Equal(t, int64(2), modified, "only the touched rows at or below the primary key watermark count")
}

func Test_Source_CountModifiedAfter_ExactSecondIsExcluded(t *testing.T) {
	// setup
	ctx := context.Background()
	db := openSQLiteDB(t)
	source := newSQLiteSource(t, db)

	// arrange
	givenSourceRows(t, db, 1, 5, t0)
	givenTouchedRows(t, db, t0.Add(time.Second), 5)

	// act
	modified, err := source.CountModifiedAfter(ctx, *boundAfter(t0), 5)

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), modified, "rows modified exactly at the watermark second are already reflected")
}

func Test_Source_CountModifiedAfter_FractionalSecondAfterWholeSecondBound_IsCounted(t *testing.T) {
	// setup
	ctx := context.Background()
	db := openSQLiteDB(t)
	source := newSQLiteSource(t, db)

	// arrange
	givenSourceRows(t, db, 1, 5, t0)
	givenTouchedRows(t, db, t0.Add(500*time.Millisecond), 3)

	// act
	modified, err := source.CountModifiedAfter(ctx, *boundAfter(t0), 5)
	facts, aggregateErr := source.Aggregate(ctx, deltatracker.AggregateRequest{
		PrimaryKeyWatermark: sql.NullInt64{Int64: 5, Valid: true},
		ModifiedBound:       boundAfter(t0),
	})

	// assert
	require.NoError(t, err)
	require.NoError(t, aggregateErr)
	assert.Equal(t, int64(1), modified)
	assert.Equal(t, sql.NullInt64{Int64: 1, Valid: true}, facts.ModifiedCount)
	assert.True(t, facts.MaxModifiedAt.Time.Equal(t0.Add(500*time.Millisecond)))
}

func Test_Source_TimestampsWrittenByTheDriver_AreComparedAsTime(t *testing.T) {
	// setup
	ctx := context.Background()
	db := openSQLiteDB(t)
	source := newSQLiteSource(t, db)

	// arrange
	givenSourceRows(t, db, 1, 5, t0)
	givenTouchedRowsAsTime(t, db, t0.Add(time.Hour), 3)

	// act
	modified, err := source.CountModifiedAfter(ctx, *boundAfter(t0), 5)
	maxModified, maxErr := source.MaxModifiedAt(ctx)

	// assert
	require.NoError(t, err)
	require.NoError(t, maxErr)
	assert.Equal(t, int64(1), modified)
	assert.True(t, maxModified.Valid)
	assert.True(t, maxModified.Time.Equal(t0.Add(time.Hour)))
}

func Test_Source_Aggregate_MatchesScalarAggregates(t *testing.T) {
	// setup
	ctx := context.Background()
	db := openSQLiteDB(t)
	source := newSQLiteSource(t, db, sqlengine.WithCreatedColumn("Created"))

	// arrange
	givenSourceRows(t, db, 1, 10, t0)
	givenSourceRows(t, db, 11, 17, t0.Add(time.Minute))
	givenTouchedRows(t, db, t0.Add(time.Minute), 1, 2, 3)
	givenDeletedRows(t, db, 9, 10)

	request := deltatracker.AggregateRequest{
		PrimaryKeyWatermark: sql.NullInt64{Int64: 10, Valid: true},
		ModifiedBound:       boundAfter(t0),
	}

	// act
	facts, err := source.Aggregate(ctx, request)

	// assert
	require.NoError(t, err)
	assert.Equal(t, sql.NullInt64{Int64: 17, Valid: true}, facts.MaxPrimaryKey)
	assert.Equal(t, sql.NullInt64{Int64: 15, Valid: true}, facts.TotalRowCount)
	assert.Equal(t, sql.NullInt64{Int64: 7, Valid: true}, facts.CreatedCount)
	assert.Equal(t, sql.NullInt64{Int64: 3, Valid: true}, facts.ModifiedCount)
	assert.True(t, facts.MaxModifiedAt.Time.Equal(t0.Add(time.Minute)))
	assert.True(t, facts.MaxCreatedAt.Time.Equal(t0.Add(time.Minute)))
}

func Test_Source_Aggregate_Baseline_OmitsConditionalCounts(t *testing.T) {
	// setup
	ctx := context.Background()
	db := openSQLiteDB(t)
	source := newSQLiteSource(t, db)

	// arrange
	givenSourceRows(t, db, 1, 3, t0)

	// act
	facts, err := source.Aggregate(ctx, deltatracker.AggregateRequest{})

	// assert
	require.NoError(t, err)
	assert.Equal(t, sql.NullInt64{Int64: 3, Valid: true}, facts.TotalRowCount)
	assert.False(t, facts.CreatedCount.Valid)
	assert.False(t, facts.ModifiedCount.Valid)
}

func Test_Source_WorksWithSQLX(t *testing.T) {
	// setup
	ctx := context.Background()
	db := openSQLiteDB(t)
	source, err := sqlengine.NewSourceFromSQLX(
		sqlx.NewDb(db, "sqlite"),
		sourceTable,
		sqlengine.WithSourceDialect(sqlengine.DialectSQLite3),
	)
	require.NoError(t, err)

	// arrange
	givenSourceRows(t, db, 1, 4, t0)

	// act
	total, err := source.CountRows(ctx)

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
}

func Test_Source_QueryFailure_WrapsQueryingSourceFailed(t *testing.T) {
	// setup
	logHandler := NewLogHandlerSpy(false)
	db := openSQLiteDB(t)
	source, err := sqlengine.NewSourceFromSQLDB(
		db,
		"missing_table",
		sqlengine.WithSourceDialect(sqlengine.DialectSQLite3),
		sqlengine.WithSourceLogger(slog.New(logHandler)),
	)
	require.NoError(t, err)

	// act
	_, err = source.CountRows(context.Background())

	// assert
	assert.ErrorIs(t, err, deltatracker.ErrQueryingSourceFailed)
	assert.True(t, logHandler.HasErrorLogWithMessage("database query execution failed").WithAttrKey("query").Assert())
}

func Test_Source_CanceledContext_Fails(t *testing.T) {
	// setup
	db := openSQLiteDB(t)
	source := newSQLiteSource(t, db)

	// act
	_, err := source.Aggregate(canceledContext(), deltatracker.AggregateRequest{})

	// assert
	assert.ErrorIs(t, err, deltatracker.ErrQueryingSourceFailed)
}

func Test_Source_WithLogger_LogsStatementsWithDuration(t *testing.T) {
	// setup
	logHandler := NewLogHandlerSpy(false)
	db := openSQLiteDB(t)
	source := newSQLiteSource(t, db, sqlengine.WithSourceLogger(slog.New(logHandler)))

	// act
	_, err := source.CountRows(context.Background())

	// assert
	require.NoError(t, err)
	assert.True(t,
		logHandler.HasDebugLogWithMessage("executed sql for: query").WithDurationMS().WithAttrKey("query").Assert(),
	)
}

func Test_Source_BuildAggregateQuery_RendersDialects(t *testing.T) {
	request := deltatracker.AggregateRequest{
		PrimaryKeyWatermark: sql.NullInt64{Int64: 10, Valid: true},
		ModifiedBound:       boundAfter(t0),
	}

	testCases := []struct {
		name     string
		dialect  sqlengine.Dialect
		request  deltatracker.AggregateRequest
		contains []string
	}{
		{
			name:    "postgres",
			dialect: sqlengine.DialectPostgres,
			request: request,
			contains: []string{
				`MAX("ID") AS "max_primary_key"`,
				`COUNT(*) AS "total_row_count"`,
				`("ID" > 10)`,
				`("Modified" > '2024-01-01T10:00:00Z')`,
				`("ID" <= 10)`,
				`FROM "EDW"."fact"."JDA_OutboundDetail"`,
			},
		},
		{
			name:    "sqlserver",
			dialect: sqlengine.DialectSQLServer,
			request: request,
			contains: []string{
				`("Modified" > '2024-01-01 10:00:00')`,
				`FROM "EDW"."fact"."JDA_OutboundDetail"`,
			},
		},
		{
			name:    "mysql",
			dialect: sqlengine.DialectMySQL,
			request: request,
			contains: []string{
				"MAX(`ID`) AS `max_primary_key`",
				"FROM `EDW`.`fact`.`JDA_OutboundDetail`",
			},
		},
		{
			name:    "sqlite3",
			dialect: sqlengine.DialectSQLite3,
			request: request,
			contains: []string{
				"MAX(strftime('%Y-%m-%dT%H:%M:%fZ', `Modified`)) AS `max_modified_at`",
				"(julianday(`Modified`) > julianday('2024-01-01T10:00:00Z'))",
				"(`ID` <= 10)",
			},
		},
		{
			name:    "inclusive bound after a sub-second watermark",
			dialect: sqlengine.DialectPostgres,
			request: deltatracker.AggregateRequest{
				PrimaryKeyWatermark: sql.NullInt64{Int64: 10, Valid: true},
				ModifiedBound:       boundAfter(t0.Add(250 * time.Millisecond)),
			},
			contains: []string{`("Modified" >= '2024-01-01T10:00:01Z')`},
		},
	}

	db := openSQLiteDB(t)

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// setup
			source, err := sqlengine.NewSourceFromSQLDB(db, trackedID, sqlengine.WithSourceDialect(tc.dialect))
			require.NoError(t, err)

			// act
			sqlQuery, columns, err := source.BuildAggregateQuery(tc.request)

			// assert
			require.NoError(t, err)
			assert.Len(t, columns, 5)
			for _, fragment := range tc.contains {
				assert.Contains(t, sqlQuery, fragment)
			}
		})
	}
}
