package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
	"github.com/AntonStoeckl/table-delta-tracker/deltatracker/sqlengine/internal/adapters"
)

const (
	defaultSnapshotTableName = "table_change_snapshots"

	colTableID       = "table_id"
	colCapturedAt    = "captured_at"
	colMaxPrimaryKey = "max_primary_key"
	colMaxModifiedAt = "max_modified_at"
	colMaxCreatedAt  = "max_created_at"
	colTotalRowCount = "total_row_count"
	colCreatedCount  = "created_count"
	colModifiedCount = "modified_count"
	colDeletedCount  = "deleted_count"
	colRunUUID       = "run_uuid"
)

var snapshotColumns = []any{
	colTableID, colCapturedAt, colMaxPrimaryKey, colMaxModifiedAt, colMaxCreatedAt,
	colTotalRowCount, colCreatedCount, colModifiedCount, colDeletedCount, colRunUUID,
}

// createSnapshotTableDDL works unchanged for postgres, mysql and sqlite. Timestamps are kept as
// ISO-8601 text so sub-second precision survives every dialect.
const createSnapshotTableDDL = `CREATE TABLE IF NOT EXISTS %s (
	table_id VARCHAR(255) NOT NULL,
	captured_at BIGINT NOT NULL,
	max_primary_key BIGINT NULL,
	max_modified_at VARCHAR(64) NULL,
	max_created_at VARCHAR(64) NULL,
	total_row_count BIGINT NOT NULL,
	created_count BIGINT NOT NULL,
	modified_count BIGINT NOT NULL,
	deleted_count BIGINT NOT NULL,
	run_uuid VARCHAR(64) NOT NULL,
	PRIMARY KEY (table_id, captured_at)
)`

// SnapshotStore persists snapshots in a relational table keyed by (table_id, captured_at).
type SnapshotStore struct {
	runner       statementRunner
	dialect      Dialect
	tableName    string
	table        exp.Expression
	logger       deltatracker.Logger
	provisioning bool

	provisionMu sync.Mutex
	provisioned bool
}

var _ deltatracker.ProvisionableSnapshotStore = (*SnapshotStore)(nil)

// StoreOption defines a functional option for configuring a SnapshotStore.
type StoreOption func(*SnapshotStore) error

// WithStoreTableName sets the snapshot table name, the default is "table_change_snapshots".
func WithStoreTableName(tableName string) StoreOption {
	return func(s *SnapshotStore) error {
		table, err := tableExpression(tableName)
		if err != nil {
			return err
		}

		s.tableName = tableName
		s.table = table

		return nil
	}
}

// WithStoreDialect sets the SQL dialect of the snapshot table, the default is postgres.
// SQL Server is not supported.
func WithStoreDialect(dialect Dialect) StoreOption {
	return func(s *SnapshotStore) error {
		parsed, err := ParseDialect(string(dialect))
		if err != nil {
			return err
		}

		if parsed == DialectSQLServer {
			return fmt.Errorf("%w: %s has no upsert support for the snapshot store", ErrUnsupportedDialect, parsed)
		}

		s.dialect = parsed

		return nil
	}
}

// WithStoreLogger sets the logger for the SnapshotStore.
//
// Debug level: every statement with its duration
// Info level: table provisioning
// Error level: failed statements.
func WithStoreLogger(logger deltatracker.Logger) StoreOption {
	return func(s *SnapshotStore) error {
		s.logger = logger
		return nil
	}
}

// WithoutProvisioning stops the store from creating its table on first use.
// Provision can still be called explicitly.
func WithoutProvisioning() StoreOption {
	return func(s *SnapshotStore) error {
		s.provisioning = false
		return nil
	}
}

// NewSnapshotStoreFromPGXPool creates a SnapshotStore backed by a pgxpool.Pool.
func NewSnapshotStoreFromPGXPool(db *pgxpool.Pool, options ...StoreOption) (*SnapshotStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newSnapshotStore(adapters.NewPGXAdapter(db), options...)
}

// NewSnapshotStoreFromSQLDB creates a SnapshotStore backed by a sql.DB.
func NewSnapshotStoreFromSQLDB(db *sql.DB, options ...StoreOption) (*SnapshotStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newSnapshotStore(adapters.NewSQLAdapter(db), options...)
}

// NewSnapshotStoreFromSQLX creates a SnapshotStore backed by a sqlx.DB.
func NewSnapshotStoreFromSQLX(db *sqlx.DB, options ...StoreOption) (*SnapshotStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newSnapshotStore(adapters.NewSQLXAdapter(db), options...)
}

func newSnapshotStore(db adapters.DBAdapter, options ...StoreOption) (*SnapshotStore, error) {
	s := &SnapshotStore{
		dialect:      DialectPostgres,
		tableName:    defaultSnapshotTableName,
		table:        goqu.T(defaultSnapshotTableName),
		provisioning: true,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	s.runner = statementRunner{db: db, log: queryLogger{logger: s.logger}}

	return s, nil
}

// Provision creates the snapshot table if it does not exist yet.
func (s *SnapshotStore) Provision(ctx context.Context) error {
	s.provisionMu.Lock()
	defer s.provisionMu.Unlock()

	return s.provision(ctx)
}

func (s *SnapshotStore) provision(ctx context.Context) error {
	if _, err := s.runner.exec(ctx, s.createTableStatement()); err != nil {
		return errors.Join(deltatracker.ErrProvisioningFailed, err)
	}

	s.provisioned = true
	s.runner.log.logInfo(logMsgProvisioned, logAttrTable, s.tableName, logAttrDialect, string(s.dialect))

	return nil
}

func (s *SnapshotStore) ensureProvisioned(ctx context.Context) error {
	if !s.provisioning {
		return nil
	}

	s.provisionMu.Lock()
	defer s.provisionMu.Unlock()

	if s.provisioned {
		return nil
	}

	return s.provision(ctx)
}

// GetLatest returns the snapshot with the largest captured_at for tableID, or nil if there is none.
func (s *SnapshotStore) GetLatest(ctx context.Context, tableID string) (*deltatracker.Snapshot, error) {
	if tableID == "" {
		return nil, deltatracker.ErrEmptyTableID
	}

	if err := s.ensureProvisioned(ctx); err != nil {
		return nil, errors.Join(deltatracker.ErrLoadingSnapshotFailed, err)
	}

	sqlQuery, buildErr := s.buildSelectLatestQuery(tableID)
	if buildErr != nil {
		s.runner.log.logError(logMsgBuildQueryFailed, buildErr)
		return nil, errors.Join(deltatracker.ErrLoadingSnapshotFailed, buildErr)
	}

	values, found, queryErr := s.runner.queryRow(ctx, sqlQuery, len(snapshotColumns))
	if queryErr != nil {
		return nil, errors.Join(deltatracker.ErrLoadingSnapshotFailed, queryErr)
	}

	if !found {
		return nil, nil
	}

	snapshot, decodeErr := snapshotFromRow(values)
	if decodeErr != nil {
		return nil, errors.Join(deltatracker.ErrLoadingSnapshotFailed, deltatracker.ErrDecodingSnapshotFailed, decodeErr)
	}

	return &snapshot, nil
}

// Put writes the snapshot. A snapshot with the same (table_id, captured_at) is overwritten.
func (s *SnapshotStore) Put(ctx context.Context, snapshot deltatracker.Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return errors.Join(deltatracker.ErrSavingSnapshotFailed, err)
	}

	if err := s.ensureProvisioned(ctx); err != nil {
		return errors.Join(deltatracker.ErrSavingSnapshotFailed, err)
	}

	sqlQuery, buildErr := s.buildUpsertQuery(snapshot)
	if buildErr != nil {
		s.runner.log.logError(logMsgBuildQueryFailed, buildErr)
		return errors.Join(deltatracker.ErrSavingSnapshotFailed, buildErr)
	}

	if _, execErr := s.runner.exec(ctx, sqlQuery); execErr != nil {
		return errors.Join(deltatracker.ErrSavingSnapshotFailed, execErr)
	}

	return nil
}

func (s *SnapshotStore) buildSelectLatestQuery(tableID string) (sqlQueryString, error) {
	selectStmt := s.dialect.builder().
		From(s.table).
		Select(snapshotColumns...).
		Where(goqu.C(colTableID).Eq(tableID)).
		Order(goqu.C(colCapturedAt).Desc()).
		Limit(1)

	return render(selectStmt)
}

func (s *SnapshotStore) buildUpsertQuery(snapshot deltatracker.Snapshot) (sqlQueryString, error) {
	record := snapshotRecord(snapshot)

	updates := goqu.Record{}
	for column, value := range record {
		if column != colTableID && column != colCapturedAt {
			updates[column] = value
		}
	}

	insertStmt := s.dialect.builder().
		Insert(s.table).
		Rows(record).
		OnConflict(goqu.DoUpdate(colTableID+", "+colCapturedAt, updates))

	return render(insertStmt)
}

func (s *SnapshotStore) createTableStatement() sqlQueryString {
	return fmt.Sprintf(createSnapshotTableDDL, quoteTableName(s.dialect, s.tableName))
}

func snapshotRecord(snapshot deltatracker.Snapshot) goqu.Record {
	record := goqu.Record{
		colTableID:       snapshot.TableID,
		colCapturedAt:    snapshot.CapturedAt,
		colMaxPrimaryKey: nil,
		colMaxModifiedAt: nil,
		colMaxCreatedAt:  nil,
		colTotalRowCount: snapshot.TotalRowCount,
		colCreatedCount:  snapshot.CreatedCount,
		colModifiedCount: snapshot.ModifiedCount,
		colDeletedCount:  snapshot.DeletedCount,
		colRunUUID:       snapshot.RunUUID,
	}

	if snapshot.MaxPrimaryKey.Valid {
		record[colMaxPrimaryKey] = snapshot.MaxPrimaryKey.Int64
	}

	if snapshot.MaxModifiedAt.Valid {
		record[colMaxModifiedAt] = deltatracker.FormatTimestamp(snapshot.MaxModifiedAt.Time)
	}

	if snapshot.MaxCreatedAt.Valid {
		record[colMaxCreatedAt] = deltatracker.FormatTimestamp(snapshot.MaxCreatedAt.Time)
	}

	return record
}

func snapshotFromRow(values []any) (deltatracker.Snapshot, error) {
	var snapshot deltatracker.Snapshot

	tableID, err := toNullString(values[0])
	if err != nil || tableID == nil {
		return deltatracker.Snapshot{}, fmt.Errorf("%s: %w", colTableID, errors.Join(ErrUnexpectedValueType, err))
	}
	snapshot.TableID = *tableID

	if snapshot.CapturedAt, err = toInt64(values[1]); err != nil {
		return deltatracker.Snapshot{}, fmt.Errorf("%s: %w", colCapturedAt, err)
	}

	if snapshot.MaxPrimaryKey, err = toNullInt64(values[2]); err != nil {
		return deltatracker.Snapshot{}, fmt.Errorf("%s: %w", colMaxPrimaryKey, err)
	}

	if snapshot.MaxModifiedAt, err = storedTimestamp(values[3]); err != nil {
		return deltatracker.Snapshot{}, fmt.Errorf("%s: %w", colMaxModifiedAt, err)
	}

	if snapshot.MaxCreatedAt, err = storedTimestamp(values[4]); err != nil {
		return deltatracker.Snapshot{}, fmt.Errorf("%s: %w", colMaxCreatedAt, err)
	}

	counts := []*int64{&snapshot.TotalRowCount, &snapshot.CreatedCount, &snapshot.ModifiedCount, &snapshot.DeletedCount}
	for i, target := range counts {
		if *target, err = toInt64(values[5+i]); err != nil {
			return deltatracker.Snapshot{}, fmt.Errorf("%v: %w", snapshotColumns[5+i], err)
		}
	}

	runUUID, err := toNullString(values[9])
	if err != nil {
		return deltatracker.Snapshot{}, fmt.Errorf("%s: %w", colRunUUID, err)
	}

	if runUUID != nil {
		snapshot.RunUUID = *runUUID
	}

	return snapshot, nil
}

func storedTimestamp(value any) (sql.NullTime, error) {
	text, err := toNullString(value)
	if err != nil {
		return sql.NullTime{}, err
	}

	return deltatracker.ParseNullTimestamp(text)
}

// quoteTableName quotes every part of a dotted table name for DDL, which goqu does not render.
func quoteTableName(dialect Dialect, name string) string {
	quote := `"`
	if dialect == DialectMySQL || dialect == DialectSQLite3 {
		quote = "`"
	}

	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = quote + strings.ReplaceAll(part, quote, quote+quote) + quote
	}

	return strings.Join(parts, ".")
}
