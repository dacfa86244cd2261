package deltatracker

import (
	"fmt"
	"time"
)

// RunKind distinguishes the baseline run from delta runs.
type RunKind string

const (
	// RunKindBaseline is the first run for a table id, no prior snapshot existed.
	RunKindBaseline RunKind = "baseline"

	// RunKindDelta is a run that derived deltas against a prior snapshot.
	RunKindDelta RunKind = "delta"
)

// AnomalyKind classifies data-consistency anomalies detected during a run.
type AnomalyKind string

const (
	// AnomalyNegativeDeletedCount means the row-count conservation produced a negative deletion count,
	// typically because the source changed between the individual aggregate reads.
	AnomalyNegativeDeletedCount AnomalyKind = "negative_deleted_count"

	// AnomalyNullCountAggregate means a conditional count came back null although the table has rows.
	AnomalyNullCountAggregate AnomalyKind = "null_count_aggregate"

	// AnomalyNullWatermarkAggregate means max(primary key) came back null although the table has rows.
	AnomalyNullWatermarkAggregate AnomalyKind = "null_watermark_aggregate"
)

// Anomaly is a data-consistency warning. It is reported, not treated as a failure, unless the engine
// runs in strict mode.
type Anomaly struct {
	Kind   AnomalyKind `json:"kind"`
	Detail string      `json:"detail"`
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s: %s", a.Kind, a.Detail)
}

// RunResult is the structured outcome of one engine run.
type RunResult struct {
	Kind                 RunKind       `json:"kind"`
	RunUUID              string        `json:"run_uuid"`
	Snapshot             Snapshot      `json:"snapshot"`
	PriorCapturedAt      int64         `json:"prior_captured_at,omitempty"`
	ConsistentRead       bool          `json:"consistent_read"`
	Anomalies            []Anomaly     `json:"anomalies,omitempty"`
	Duration             time.Duration `json:"-"`
	DurationMilliseconds float64       `json:"duration_ms"`
}

// HasAnomalies reports whether the run detected any data-consistency anomaly.
func (r RunResult) HasAnomalies() bool {
	return len(r.Anomalies) > 0
}
