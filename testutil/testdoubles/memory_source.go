package testdoubles

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
)

// Names of the reads a MemorySource answers, used for failure injection and read hooks.
const (
	ReadMaxPrimaryKey      = "max_primary_key"
	ReadMaxCreatedAt       = "max_created_at"
	ReadMaxModifiedAt      = "max_modified_at"
	ReadCountRows          = "count_rows"
	ReadCountCreatedAfter  = "count_created_after"
	ReadCountModifiedAfter = "count_modified_after"
	ReadAggregate          = "aggregate"
)

// Row is one row of the simulated source table.
type Row struct {
	ID         int64
	CreatedAt  time.Time
	ModifiedAt sql.NullTime
}

// MemorySource simulates a tracked source table in memory.
type MemorySource struct {
	mu       sync.Mutex
	rows     map[int64]Row
	failures map[string]error
	onRead   func(read string)
	reads    []string
}

// NewMemorySource creates a MemorySource holding the given rows.
func NewMemorySource(rows ...Row) *MemorySource {
	s := &MemorySource{
		rows:     make(map[int64]Row),
		failures: make(map[string]error),
	}

	s.Insert(rows...)

	return s
}

// Insert adds or replaces rows.
func (s *MemorySource) Insert(rows ...Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		s.rows[row.ID] = row
	}
}

// Touch sets the modification timestamp of existing rows.
func (s *MemorySource) Touch(modifiedAt time.Time, ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		row, ok := s.rows[id]
		if !ok {
			continue
		}

		row.ModifiedAt = sql.NullTime{Time: modifiedAt, Valid: true}
		s.rows[id] = row
	}
}

// Delete removes rows.
func (s *MemorySource) Delete(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.rows, id)
	}
}

// FailOn makes the named read return err until it is cleared with a nil err.
func (s *MemorySource) FailOn(read string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.failures, read)
		return
	}

	s.failures[read] = err
}

// OnRead registers a hook that runs before every read, outside the lock, so it may mutate the rows.
func (s *MemorySource) OnRead(hook func(read string)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onRead = hook
}

// Reads returns the names of all reads served so far, in order.
func (s *MemorySource) Reads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.reads...)
}

// MaxPrimaryKey implements deltatracker.SourceAggregator.
func (s *MemorySource) MaxPrimaryKey(ctx context.Context) (sql.NullInt64, error) {
	if err := s.begin(ctx, ReadMaxPrimaryKey); err != nil {
		return sql.NullInt64{}, err
	}
	defer s.mu.Unlock()

	return s.maxPrimaryKey(), nil
}

// MaxCreatedAt implements deltatracker.SourceAggregator.
func (s *MemorySource) MaxCreatedAt(ctx context.Context) (sql.NullTime, error) {
	if err := s.begin(ctx, ReadMaxCreatedAt); err != nil {
		return sql.NullTime{}, err
	}
	defer s.mu.Unlock()

	return s.maxCreatedAt(), nil
}

// MaxModifiedAt implements deltatracker.SourceAggregator.
func (s *MemorySource) MaxModifiedAt(ctx context.Context) (sql.NullTime, error) {
	if err := s.begin(ctx, ReadMaxModifiedAt); err != nil {
		return sql.NullTime{}, err
	}
	defer s.mu.Unlock()

	return s.maxModifiedAt(), nil
}

// CountRows implements deltatracker.SourceAggregator.
func (s *MemorySource) CountRows(ctx context.Context) (int64, error) {
	if err := s.begin(ctx, ReadCountRows); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	return int64(len(s.rows)), nil
}

// CountCreatedAfter implements deltatracker.SourceAggregator.
func (s *MemorySource) CountCreatedAfter(ctx context.Context, primaryKey int64) (int64, error) {
	if err := s.begin(ctx, ReadCountCreatedAfter); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	return s.countCreatedAfter(primaryKey), nil
}

// CountModifiedAfter implements deltatracker.SourceAggregator.
func (s *MemorySource) CountModifiedAfter(
	ctx context.Context,
	bound deltatracker.ModifiedBound,
	primaryKey int64,
) (int64, error) {

	if err := s.begin(ctx, ReadCountModifiedAfter); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	return s.countModifiedAfter(bound, primaryKey), nil
}

// Aggregate implements deltatracker.ConsistentSourceAggregator.
func (s *MemorySource) Aggregate(
	ctx context.Context,
	request deltatracker.AggregateRequest,
) (deltatracker.SourceFacts, error) {

	if err := s.begin(ctx, ReadAggregate); err != nil {
		return deltatracker.SourceFacts{}, err
	}
	defer s.mu.Unlock()

	facts := deltatracker.SourceFacts{
		MaxPrimaryKey: s.maxPrimaryKey(),
		MaxModifiedAt: s.maxModifiedAt(),
		MaxCreatedAt:  s.maxCreatedAt(),
		TotalRowCount: sql.NullInt64{Int64: int64(len(s.rows)), Valid: true},
	}

	if request.CountsCreated() {
		facts.CreatedCount = sql.NullInt64{
			Int64: s.countCreatedAfter(request.PrimaryKeyWatermark.Int64),
			Valid: true,
		}
	}

	if request.CountsModified() {
		facts.ModifiedCount = sql.NullInt64{
			Int64: s.countModifiedAfter(*request.ModifiedBound, request.PrimaryKeyWatermark.Int64),
			Valid: true,
		}
	}

	return facts, nil
}

// begin runs the read hook, then acquires the lock. On success the caller must unlock.
func (s *MemorySource) begin(ctx context.Context, read string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	hook := s.onRead
	s.mu.Unlock()

	if hook != nil {
		hook(read)
	}

	s.mu.Lock()
	s.reads = append(s.reads, read)

	if err, ok := s.failures[read]; ok {
		s.mu.Unlock()
		return err
	}

	return nil
}

func (s *MemorySource) maxPrimaryKey() sql.NullInt64 {
	var result sql.NullInt64

	for id := range s.rows {
		if !result.Valid || id > result.Int64 {
			result = sql.NullInt64{Int64: id, Valid: true}
		}
	}

	return result
}

func (s *MemorySource) maxCreatedAt() sql.NullTime {
	var result sql.NullTime

	for _, row := range s.rows {
		if row.CreatedAt.IsZero() {
			continue
		}

		if !result.Valid || row.CreatedAt.After(result.Time) {
			result = sql.NullTime{Time: row.CreatedAt, Valid: true}
		}
	}

	return result
}

func (s *MemorySource) maxModifiedAt() sql.NullTime {
	var result sql.NullTime

	for _, row := range s.rows {
		if !row.ModifiedAt.Valid {
			continue
		}

		if !result.Valid || row.ModifiedAt.Time.After(result.Time) {
			result = row.ModifiedAt
		}
	}

	return result
}

func (s *MemorySource) countCreatedAfter(primaryKey int64) int64 {
	var count int64

	for id := range s.rows {
		if id > primaryKey {
			count++
		}
	}

	return count
}

func (s *MemorySource) countModifiedAfter(bound deltatracker.ModifiedBound, primaryKey int64) int64 {
	var count int64

	for id, row := range s.rows {
		if id <= primaryKey && row.ModifiedAt.Valid && bound.Admits(row.ModifiedAt.Time) {
			count++
		}
	}

	return count
}

var _ deltatracker.ConsistentSourceAggregator = (*MemorySource)(nil)
