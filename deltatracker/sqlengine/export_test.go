package sqlengine

import (
	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
)

func (s *Source) BuildAggregateQuery(request deltatracker.AggregateRequest) (string, []string, error) {
	return s.buildAggregateQuery(request)
}

func (s *SnapshotStore) BuildUpsertQuery(snapshot deltatracker.Snapshot) (string, error) {
	return s.buildUpsertQuery(snapshot)
}

func (s *SnapshotStore) BuildSelectLatestQuery(tableID string) (string, error) {
	return s.buildSelectLatestQuery(tableID)
}

func (s *SnapshotStore) CreateTableStatement() string {
	return s.createTableStatement()
}
