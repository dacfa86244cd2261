package deltatracker

import (
	"database/sql"
	"errors"
	"fmt"
)

const (
	aggregateTotalRowCount = "total row count"
	aggregateCreatedCount  = "created count"
	aggregateModifiedCount = "modified count"
)

// BuildBaseline builds the first snapshot of a table from the baseline aggregates.
// All deltas are zero and the watermark holds the raw maxima observed in the source.
func BuildBaseline(tableID string, facts SourceFacts) (Snapshot, []Anomaly, error) {
	if tableID == "" {
		return Snapshot{}, nil, ErrEmptyTableID
	}

	if !facts.TotalRowCount.Valid {
		return Snapshot{}, nil, fmt.Errorf("%w: %s", ErrMissingAggregate, aggregateTotalRowCount)
	}

	baseline := Snapshot{
		TableID:       tableID,
		MaxPrimaryKey: facts.MaxPrimaryKey,
		MaxModifiedAt: utcNullTime(facts.MaxModifiedAt),
		MaxCreatedAt:  utcNullTime(facts.MaxCreatedAt),
		TotalRowCount: facts.TotalRowCount.Int64,
	}

	return baseline, watermarkAnomalies(facts), nil
}

// ComputeDelta derives the next snapshot from the prior snapshot and the aggregates of the current run.
//
// Rows above the prior primary key watermark are created rows. Rows at or below it whose modification
// timestamp lies past the prior modification watermark are modified rows. Deletions are inferred from
// row-count conservation: prior total + created - current total.
func ComputeDelta(prior Snapshot, facts SourceFacts) (Snapshot, []Anomaly, error) {
	if !facts.TotalRowCount.Valid {
		return Snapshot{}, nil, fmt.Errorf("%w: %s", ErrMissingAggregate, aggregateTotalRowCount)
	}

	watermark := WatermarkOf(prior)
	currentTotal := facts.TotalRowCount.Int64
	anomalies := watermarkAnomalies(facts)

	var created, modified int64

	switch {
	case watermark.HasPrimaryKey():
		count, anomaly := countOrZero(facts.CreatedCount, aggregateCreatedCount, currentTotal)
		if anomaly != nil {
			anomalies = append(anomalies, *anomaly)
		}
		created = count

	default:
		// the source was empty at the prior run, every row present now is new
		created = currentTotal
	}

	if watermark.HasPrimaryKey() && watermark.HasModifiedAt() {
		count, anomaly := countOrZero(facts.ModifiedCount, aggregateModifiedCount, currentTotal)
		if anomaly != nil {
			anomalies = append(anomalies, *anomaly)
		}
		modified = count
	}

	deleted := prior.TotalRowCount + created - currentTotal
	if deleted < 0 {
		anomalies = append(anomalies, Anomaly{
			Kind: AnomalyNegativeDeletedCount,
			Detail: fmt.Sprintf(
				"prior total %d + created %d - current total %d = %d",
				prior.TotalRowCount, created, currentTotal, deleted,
			),
		})
	}

	next := Snapshot{
		TableID:       prior.TableID,
		MaxPrimaryKey: facts.MaxPrimaryKey,
		MaxModifiedAt: normalizeNullTime(facts.MaxModifiedAt),
		MaxCreatedAt:  utcNullTime(facts.MaxCreatedAt),
		TotalRowCount: currentTotal,
		CreatedCount:  created,
		ModifiedCount: modified,
		DeletedCount:  deleted,
	}

	return next, anomalies, nil
}

// AggregateRequestFor builds the aggregate request of a run: nil prior means baseline.
func AggregateRequestFor(prior *Snapshot) AggregateRequest {
	if prior == nil {
		return AggregateRequest{}
	}

	request := AggregateRequest{PrimaryKeyWatermark: prior.MaxPrimaryKey}

	if prior.MaxModifiedAt.Valid {
		bound := ModifiedBoundAfter(prior.MaxModifiedAt.Time)
		request.ModifiedBound = &bound
	}

	return request
}

func countOrZero(count sql.NullInt64, name string, currentTotal int64) (int64, *Anomaly) {
	if count.Valid {
		return count.Int64, nil
	}

	if currentTotal == 0 {
		return 0, nil
	}

	return 0, &Anomaly{
		Kind:   AnomalyNullCountAggregate,
		Detail: fmt.Sprintf("%s is null for a table with %d rows", name, currentTotal),
	}
}

func watermarkAnomalies(facts SourceFacts) []Anomaly {
	if facts.TotalRowCount.Int64 > 0 && !facts.MaxPrimaryKey.Valid {
		return []Anomaly{{
			Kind:   AnomalyNullWatermarkAggregate,
			Detail: fmt.Sprintf("max primary key is null for a table with %d rows", facts.TotalRowCount.Int64),
		}}
	}

	return nil
}

func normalizeNullTime(t sql.NullTime) sql.NullTime {
	if !t.Valid {
		return t
	}

	return sql.NullTime{Time: NormalizeModifiedAt(t.Time), Valid: true}
}

func utcNullTime(t sql.NullTime) sql.NullTime {
	if !t.Valid {
		return t
	}

	return sql.NullTime{Time: t.Time.Round(0).UTC(), Valid: true}
}

// anomaliesError joins the anomalies of a run into one error for strict mode.
func anomaliesError(anomalies []Anomaly) error {
	errs := make([]error, 0, len(anomalies)+1)
	errs = append(errs, ErrDataConsistencyAnomaly)

	for _, anomaly := range anomalies {
		errs = append(errs, errors.New(anomaly.String()))
	}

	return errors.Join(errs...)
}
