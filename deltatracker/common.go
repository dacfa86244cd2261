package deltatracker

import (
	"errors"
)

var (
	// ErrNilSnapshotStore is returned when the engine is constructed without a snapshot store.
	ErrNilSnapshotStore = errors.New("snapshot store must not be nil")

	// ErrNilSourceAggregator is returned when the engine is constructed without a source aggregator.
	ErrNilSourceAggregator = errors.New("source aggregator must not be nil")

	// ErrEmptyTableID is returned when an empty table identifier is supplied.
	ErrEmptyTableID = errors.New("table id must not be empty")

	// ErrInvalidRunIDGranularity is returned when the run identifier granularity is not positive.
	ErrInvalidRunIDGranularity = errors.New("run id granularity must be positive")

	// ErrNilClock is returned when a nil clock function is supplied.
	ErrNilClock = errors.New("clock must not be nil")

	// ErrQueryingSourceFailed is returned when an aggregate query against the source table fails.
	ErrQueryingSourceFailed = errors.New("querying source aggregates failed")

	// ErrMissingAggregate is returned when a required aggregate did not produce a value.
	ErrMissingAggregate = errors.New("required aggregate is missing")

	// ErrDataConsistencyAnomaly is returned in strict mode when a run detected a data-consistency anomaly.
	ErrDataConsistencyAnomaly = errors.New("data consistency anomaly detected")

	// ErrBuildingRunUUIDFailed is returned when the correlation id of a run could not be generated.
	ErrBuildingRunUUIDFailed = errors.New("building run uuid failed")
)
