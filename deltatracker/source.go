package deltatracker

import (
	"context"
	"database/sql"
)

// SourceAggregator answers the scalar aggregate queries the engine needs against the tracked source table.
// Aggregates over an empty table come back as invalid sql.Null values, never as errors.
type SourceAggregator interface {
	// MaxPrimaryKey returns max(primary key).
	MaxPrimaryKey(ctx context.Context) (sql.NullInt64, error)

	// MaxCreatedAt returns max(created timestamp), informational only.
	MaxCreatedAt(ctx context.Context) (sql.NullTime, error)

	// MaxModifiedAt returns max(modification timestamp).
	MaxModifiedAt(ctx context.Context) (sql.NullTime, error)

	// CountRows returns count(*).
	CountRows(ctx context.Context) (int64, error)

	// CountCreatedAfter returns the number of rows whose primary key is strictly greater than primaryKey.
	CountCreatedAfter(ctx context.Context, primaryKey int64) (int64, error)

	// CountModifiedAfter returns the number of rows whose modification timestamp lies past the bound
	// and whose primary key is not greater than primaryKey.
	CountModifiedAfter(ctx context.Context, bound ModifiedBound, primaryKey int64) (int64, error)
}

// ConsistentSourceAggregator is an optional extension of SourceAggregator that answers all aggregates
// of one run within a single statement, so they observe one consistent state of the source table.
// The engine uses it when available.
type ConsistentSourceAggregator interface {
	SourceAggregator
	Aggregate(ctx context.Context, request AggregateRequest) (SourceFacts, error)
}

// AggregateRequest describes which conditional counts a consistent aggregate has to include.
type AggregateRequest struct {
	// PrimaryKeyWatermark enables CreatedCount (pk above it) when valid.
	PrimaryKeyWatermark sql.NullInt64

	// ModifiedBound enables ModifiedCount (modified past the bound, pk not above PrimaryKeyWatermark) when set.
	ModifiedBound *ModifiedBound
}

// CountsCreated reports whether the request asks for the created count.
func (r AggregateRequest) CountsCreated() bool {
	return r.PrimaryKeyWatermark.Valid
}

// CountsModified reports whether the request asks for the modified count.
func (r AggregateRequest) CountsModified() bool {
	return r.PrimaryKeyWatermark.Valid && r.ModifiedBound != nil
}

// SourceFacts are the aggregate values observed in the source table during one run.
type SourceFacts struct {
	MaxPrimaryKey sql.NullInt64
	MaxModifiedAt sql.NullTime
	MaxCreatedAt  sql.NullTime
	TotalRowCount sql.NullInt64
	CreatedCount  sql.NullInt64
	ModifiedCount sql.NullInt64
}
