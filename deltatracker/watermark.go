package deltatracker

import (
	"time"
)

// NormalizeModifiedAt rounds a timestamp with sub-second precision up to the next whole second.
// Whole-second timestamps are returned unchanged (in UTC, without monotonic clock reading).
func NormalizeModifiedAt(t time.Time) time.Time {
	t = t.Round(0).UTC()

	truncated := t.Truncate(time.Second)
	if truncated.Equal(t) {
		return t
	}

	return truncated.Add(time.Second)
}

// ModifiedBound is the lower bound a modification timestamp must pass to count as a modification
// that is not yet reflected in the previous watermark.
//
// If the previous watermark was a whole second, rows modified at exactly that second are already
// reflected, so the bound is exclusive. If it carried sub-second precision it was rounded up, every
// reflected value lies strictly below the rounded second, so the bound is inclusive.
type ModifiedBound struct {
	At        time.Time
	Inclusive bool
}

// ModifiedBoundAfter derives the bound for the next run from the previous max modification timestamp.
func ModifiedBoundAfter(previousMaxModifiedAt time.Time) ModifiedBound {
	previous := previousMaxModifiedAt.Round(0).UTC()
	normalized := NormalizeModifiedAt(previous)

	return ModifiedBound{
		At:        normalized,
		Inclusive: !normalized.Equal(previous),
	}
}

// Admits reports whether a modification timestamp lies past the bound.
func (b ModifiedBound) Admits(modifiedAt time.Time) bool {
	if b.Inclusive {
		return !modifiedAt.Before(b.At)
	}

	return modifiedAt.After(b.At)
}

// Watermark is the (max primary key, max modification timestamp, total count) triple of a snapshot
// that serves as the baseline for the next delta computation.
type Watermark struct {
	MaxPrimaryKey int64
	MaxModifiedAt time.Time
	TotalRowCount int64

	hasPrimaryKey bool
	hasModifiedAt bool
}

// WatermarkOf extracts the watermark of a snapshot.
func WatermarkOf(s Snapshot) Watermark {
	return Watermark{
		MaxPrimaryKey: s.MaxPrimaryKey.Int64,
		MaxModifiedAt: s.MaxModifiedAt.Time,
		TotalRowCount: s.TotalRowCount,
		hasPrimaryKey: s.MaxPrimaryKey.Valid,
		hasModifiedAt: s.MaxModifiedAt.Valid,
	}
}

// HasPrimaryKey reports whether the source table had any rows when the watermark was captured.
func (w Watermark) HasPrimaryKey() bool {
	return w.hasPrimaryKey
}

// HasModifiedAt reports whether a modification timestamp was observed when the watermark was captured.
func (w Watermark) HasModifiedAt() bool {
	return w.hasModifiedAt
}
