package deltatracker_test

import (
	"database/sql"
	"time"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
	"github.com/AntonStoeckl/table-delta-tracker/testutil/testdoubles"
)

const tableID = "EDW.fact.JDA_OutboundDetail"

func givenSnapshot(maxPrimaryKey, totalRowCount int64, maxModifiedAt time.Time) deltatracker.Snapshot {
	return deltatracker.Snapshot{
		TableID:       tableID,
		CapturedAt:    1,
		MaxPrimaryKey: sql.NullInt64{Int64: maxPrimaryKey, Valid: true},
		MaxModifiedAt: sql.NullTime{Time: maxModifiedAt, Valid: true},
		TotalRowCount: totalRowCount,
	}
}

func givenRows(from, to int64, modifiedAt time.Time) []testdoubles.Row {
	rows := make([]testdoubles.Row, 0, to-from+1)
	for id := from; id <= to; id++ {
		rows = append(rows, testdoubles.Row{
			ID:         id,
			CreatedAt:  modifiedAt,
			ModifiedAt: sql.NullTime{Time: modifiedAt, Valid: true},
		})
	}

	return rows
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

func nullTime(v time.Time) sql.NullTime {
	return sql.NullTime{Time: v, Valid: true}
}
