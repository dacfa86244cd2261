package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
	"github.com/AntonStoeckl/table-delta-tracker/deltatracker/sqlengine/internal/adapters"
)

const (
	defaultPrimaryKeyColumn = "ID"
	defaultModifiedColumn   = "Modified"

	aliasMaxPrimaryKey = "max_primary_key"
	aliasMaxModifiedAt = "max_modified_at"
	aliasMaxCreatedAt  = "max_created_at"
	aliasTotalRowCount = "total_row_count"
	aliasCreatedCount  = "created_count"
	aliasModifiedCount = "modified_count"

	// strftime layout that renders stored sqlite timestamps as UTC text with millisecond resolution.
	sqliteTimestampLayout = "%Y-%m-%dT%H:%M:%fZ"
)

// Source answers the aggregate queries of the delta engine against one tracked table.
type Source struct {
	runner           statementRunner
	dialect          Dialect
	tableName        string
	table            exp.Expression
	primaryKeyColumn string
	modifiedColumn   string
	createdColumn    string
	logger           deltatracker.Logger
}

var _ deltatracker.ConsistentSourceAggregator = (*Source)(nil)

// SourceOption defines a functional option for configuring a Source.
type SourceOption func(*Source) error

// WithSourceDialect sets the SQL dialect of the tracked table, the default is postgres.
func WithSourceDialect(dialect Dialect) SourceOption {
	return func(s *Source) error {
		parsed, err := ParseDialect(string(dialect))
		if err != nil {
			return err
		}

		s.dialect = parsed

		return nil
	}
}

// WithPrimaryKeyColumn sets the monotonically increasing integer key column, the default is "ID".
func WithPrimaryKeyColumn(column string) SourceOption {
	return func(s *Source) error {
		if column == "" {
			return fmt.Errorf("%w: primary key", ErrEmptyColumnName)
		}

		s.primaryKeyColumn = column

		return nil
	}
}

// WithModifiedColumn sets the last-modification timestamp column, the default is "Modified".
func WithModifiedColumn(column string) SourceOption {
	return func(s *Source) error {
		if column == "" {
			return fmt.Errorf("%w: modified", ErrEmptyColumnName)
		}

		s.modifiedColumn = column

		return nil
	}
}

// WithCreatedColumn sets the creation timestamp column. Without it MaxCreatedAt is always null.
func WithCreatedColumn(column string) SourceOption {
	return func(s *Source) error {
		s.createdColumn = column
		return nil
	}
}

// WithSourceLogger sets the logger for the Source.
//
// Debug level: every statement with its duration
// Error level: failed statements.
func WithSourceLogger(logger deltatracker.Logger) SourceOption {
	return func(s *Source) error {
		s.logger = logger
		return nil
	}
}

// NewSourceFromPGXPool creates a Source for a table reachable through a pgxpool.Pool.
func NewSourceFromPGXPool(db *pgxpool.Pool, tableName string, options ...SourceOption) (*Source, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newSource(adapters.NewPGXAdapter(db), tableName, options...)
}

// NewSourceFromSQLDB creates a Source for a table reachable through a sql.DB.
func NewSourceFromSQLDB(db *sql.DB, tableName string, options ...SourceOption) (*Source, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newSource(adapters.NewSQLAdapter(db), tableName, options...)
}

// NewSourceFromSQLX creates a Source for a table reachable through a sqlx.DB.
func NewSourceFromSQLX(db *sqlx.DB, tableName string, options ...SourceOption) (*Source, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newSource(adapters.NewSQLXAdapter(db), tableName, options...)
}

func newSource(db adapters.DBAdapter, tableName string, options ...SourceOption) (*Source, error) {
	table, tableErr := tableExpression(tableName)
	if tableErr != nil {
		return nil, tableErr
	}

	s := &Source{
		dialect:          DialectPostgres,
		tableName:        tableName,
		table:            table,
		primaryKeyColumn: defaultPrimaryKeyColumn,
		modifiedColumn:   defaultModifiedColumn,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	s.runner = statementRunner{db: db, log: queryLogger{logger: s.logger}}

	return s, nil
}

// TableName returns the tracked table as configured.
func (s *Source) TableName() string {
	return s.tableName
}

// MaxPrimaryKey returns max(primary key), null for an empty table.
func (s *Source) MaxPrimaryKey(ctx context.Context) (sql.NullInt64, error) {
	value, err := s.scalar(ctx, s.from().Select(goqu.MAX(goqu.C(s.primaryKeyColumn)).As(aliasMaxPrimaryKey)))
	if err != nil {
		return sql.NullInt64{}, err
	}

	return toNullInt64(value)
}

// MaxCreatedAt returns max(created timestamp), always null if no created column is configured.
func (s *Source) MaxCreatedAt(ctx context.Context) (sql.NullTime, error) {
	if s.createdColumn == "" {
		return sql.NullTime{}, nil
	}

	value, err := s.scalar(ctx, s.from().Select(s.maxTimestamp(s.createdColumn).As(aliasMaxCreatedAt)))
	if err != nil {
		return sql.NullTime{}, err
	}

	return toNullTime(value)
}

// MaxModifiedAt returns max(modified timestamp), null for an empty table.
func (s *Source) MaxModifiedAt(ctx context.Context) (sql.NullTime, error) {
	value, err := s.scalar(ctx, s.from().Select(s.maxTimestamp(s.modifiedColumn).As(aliasMaxModifiedAt)))
	if err != nil {
		return sql.NullTime{}, err
	}

	return toNullTime(value)
}

// CountRows returns count(*).
func (s *Source) CountRows(ctx context.Context) (int64, error) {
	value, err := s.scalar(ctx, s.from().Select(goqu.COUNT(goqu.Star()).As(aliasTotalRowCount)))
	if err != nil {
		return 0, err
	}

	return toInt64(value)
}

// CountCreatedAfter counts the rows whose primary key is above primaryKey.
func (s *Source) CountCreatedAfter(ctx context.Context, primaryKey int64) (int64, error) {
	value, err := s.scalar(ctx, s.from().
		Select(goqu.COUNT(goqu.Star()).As(aliasCreatedCount)).
		Where(s.createdCondition(primaryKey)))
	if err != nil {
		return 0, err
	}

	return toInt64(value)
}

// CountModifiedAfter counts the rows at or below primaryKey whose modification timestamp lies past the bound.
func (s *Source) CountModifiedAfter(ctx context.Context, bound deltatracker.ModifiedBound, primaryKey int64) (int64, error) {
	value, err := s.scalar(ctx, s.from().
		Select(goqu.COUNT(goqu.Star()).As(aliasModifiedCount)).
		Where(s.modifiedCondition(bound, primaryKey)))
	if err != nil {
		return 0, err
	}

	return toInt64(value)
}

// Aggregate reads every aggregate of one run with a single SELECT, so all values reflect the same
// state of the table. Conditional counts are expressed as COUNT(CASE WHEN ... THEN 1 END).
func (s *Source) Aggregate(ctx context.Context, request deltatracker.AggregateRequest) (deltatracker.SourceFacts, error) {
	sqlQuery, columns, buildErr := s.buildAggregateQuery(request)
	if buildErr != nil {
		s.runner.log.logError(logMsgBuildQueryFailed, buildErr)
		return deltatracker.SourceFacts{}, errors.Join(deltatracker.ErrQueryingSourceFailed, buildErr)
	}

	values, found, queryErr := s.runner.queryRow(ctx, sqlQuery, len(columns))
	if queryErr != nil {
		return deltatracker.SourceFacts{}, errors.Join(deltatracker.ErrQueryingSourceFailed, queryErr)
	}

	if !found {
		return deltatracker.SourceFacts{}, errors.Join(deltatracker.ErrQueryingSourceFailed, ErrMissingResultRow)
	}

	facts, convertErr := factsFromRow(columns, values)
	if convertErr != nil {
		return deltatracker.SourceFacts{}, errors.Join(deltatracker.ErrQueryingSourceFailed, convertErr)
	}

	return facts, nil
}

func (s *Source) buildAggregateQuery(request deltatracker.AggregateRequest) (sqlQueryString, []string, error) {
	columns := []string{aliasMaxPrimaryKey, aliasMaxModifiedAt, aliasTotalRowCount}
	selects := []any{
		goqu.MAX(goqu.C(s.primaryKeyColumn)).As(aliasMaxPrimaryKey),
		s.maxTimestamp(s.modifiedColumn).As(aliasMaxModifiedAt),
		goqu.COUNT(goqu.Star()).As(aliasTotalRowCount),
	}

	if s.createdColumn != "" {
		columns = append(columns, aliasMaxCreatedAt)
		selects = append(selects, s.maxTimestamp(s.createdColumn).As(aliasMaxCreatedAt))
	}

	if request.CountsCreated() {
		columns = append(columns, aliasCreatedCount)
		selects = append(selects, goqu.COUNT(
			goqu.Case().When(s.createdCondition(request.PrimaryKeyWatermark.Int64), 1),
		).As(aliasCreatedCount))
	}

	if request.CountsModified() {
		columns = append(columns, aliasModifiedCount)
		selects = append(selects, goqu.COUNT(
			goqu.Case().When(s.modifiedCondition(*request.ModifiedBound, request.PrimaryKeyWatermark.Int64), 1),
		).As(aliasModifiedCount))
	}

	sqlQuery, err := render(s.from().Select(selects...))
	if err != nil {
		return "", nil, err
	}

	return sqlQuery, columns, nil
}

func factsFromRow(columns []string, values []any) (deltatracker.SourceFacts, error) {
	var facts deltatracker.SourceFacts
	var err error

	for i, column := range columns {
		switch column {
		case aliasMaxPrimaryKey:
			facts.MaxPrimaryKey, err = toNullInt64(values[i])
		case aliasMaxModifiedAt:
			facts.MaxModifiedAt, err = toNullTime(values[i])
		case aliasMaxCreatedAt:
			facts.MaxCreatedAt, err = toNullTime(values[i])
		case aliasTotalRowCount:
			facts.TotalRowCount, err = toNullInt64(values[i])
		case aliasCreatedCount:
			facts.CreatedCount, err = toNullInt64(values[i])
		case aliasModifiedCount:
			facts.ModifiedCount, err = toNullInt64(values[i])
		}

		if err != nil {
			return deltatracker.SourceFacts{}, fmt.Errorf("%s: %w", column, err)
		}
	}

	return facts, nil
}

func (s *Source) from() *goqu.SelectDataset {
	return s.dialect.builder().From(s.table)
}

func (s *Source) createdCondition(primaryKey int64) exp.Expression {
	return goqu.C(s.primaryKeyColumn).Gt(primaryKey)
}

// modifiedCondition selects rows at or below the primary key watermark modified past the bound.
// sqlite stores timestamps as text in whatever layout the writer used, so both sides are compared
// as julian day numbers there instead of lexically.
func (s *Source) modifiedCondition(bound deltatracker.ModifiedBound, primaryKey int64) exp.Expression {
	var column exp.Comparable = goqu.C(s.modifiedColumn)
	var at any = bound.At

	if s.dialect == DialectSQLite3 {
		column = goqu.Func("julianday", goqu.C(s.modifiedColumn))
		at = goqu.Func("julianday", bound.At)
	}

	modified := column.Gt(at)
	if bound.Inclusive {
		modified = column.Gte(at)
	}

	return goqu.And(modified, goqu.C(s.primaryKeyColumn).Lte(primaryKey))
}

// maxTimestamp is max(column). On sqlite the values are normalized to UTC first, otherwise
// the text maximum depends on the layout and offset each row was written with.
func (s *Source) maxTimestamp(column string) exp.SQLFunctionExpression {
	if s.dialect == DialectSQLite3 {
		return goqu.MAX(goqu.Func("strftime", sqliteTimestampLayout, goqu.C(column)))
	}

	return goqu.MAX(goqu.C(column))
}

// scalar runs a single-value aggregate statement.
func (s *Source) scalar(ctx context.Context, ds *goqu.SelectDataset) (any, error) {
	sqlQuery, buildErr := render(ds)
	if buildErr != nil {
		s.runner.log.logError(logMsgBuildQueryFailed, buildErr)
		return nil, errors.Join(deltatracker.ErrQueryingSourceFailed, buildErr)
	}

	values, found, queryErr := s.runner.queryRow(ctx, sqlQuery, 1)
	if queryErr != nil {
		return nil, errors.Join(deltatracker.ErrQueryingSourceFailed, queryErr)
	}

	if !found {
		return nil, errors.Join(deltatracker.ErrQueryingSourceFailed, ErrMissingResultRow)
	}

	return values[0], nil
}
