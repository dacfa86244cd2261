package deltatracker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Engine computes created/modified/deleted counts for a tracked table against its latest snapshot
// and persists the next snapshot. One Run is a strictly ordered sequence of blocking calls; the
// engine holds no state between runs, so it can be shared, but runs for the same table id must not overlap.
type Engine struct {
	store            SnapshotStore
	source           SourceAggregator
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
	clock            func() time.Time
	runIDGranularity time.Duration
	strict           bool
	sequentialReads  bool
}

// NewEngine creates a new Engine with optional configuration.
func NewEngine(store SnapshotStore, source SourceAggregator, options ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrNilSnapshotStore
	}

	if source == nil {
		return nil, ErrNilSourceAggregator
	}

	e := &Engine{
		store:            store,
		source:           source,
		clock:            time.Now,
		runIDGranularity: defaultRunIDGranularity,
	}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Run executes one tracking pass for tableID and returns the written snapshot as part of the RunResult.
//
// Without a prior snapshot it writes a baseline with zero deltas. Otherwise it derives the deltas against
// the prior snapshot. If any read fails, or if strict mode is on and an anomaly was detected, nothing is written.
func (e *Engine) Run(ctx context.Context, tableID string) (RunResult, error) {
	if tableID == "" {
		return RunResult{}, ErrEmptyTableID
	}

	runUUID, uuidErr := uuid.NewV7()
	if uuidErr != nil {
		return RunResult{}, errors.Join(ErrBuildingRunUUIDFailed, uuidErr)
	}

	start := time.Now()
	run := e.startRunObservation(ctx, tableID, runUUID.String())
	ctx = run.ctx

	prior, loadErr := e.store.GetLatest(ctx, tableID)
	if loadErr != nil {
		err := wrapUnlessIs(loadErr, ErrLoadingSnapshotFailed)
		run.finishError(errorTypeLoadSnapshot, err, time.Since(start))

		return RunResult{}, err
	}

	result := RunResult{
		Kind:    RunKindBaseline,
		RunUUID: runUUID.String(),
	}

	if prior != nil {
		result.Kind = RunKindDelta
		result.PriorCapturedAt = prior.CapturedAt
	}

	run.setKind(result.Kind)

	facts, consistentRead, factsErr := e.gatherFacts(ctx, AggregateRequestFor(prior))
	if factsErr != nil {
		run.finishError(errorTypeQuerySource, factsErr, time.Since(start))

		return RunResult{}, factsErr
	}

	result.ConsistentRead = consistentRead

	var next Snapshot
	var anomalies []Anomaly
	var buildErr error

	if prior == nil {
		next, anomalies, buildErr = BuildBaseline(tableID, facts)
	} else {
		next, anomalies, buildErr = ComputeDelta(*prior, facts)
	}

	if buildErr != nil {
		run.finishError(errorTypeBuildSnapshot, buildErr, time.Since(start))

		return RunResult{}, buildErr
	}

	next.TableID = tableID
	next.CapturedAt = NextRunID(e.clock(), e.runIDGranularity, prior)
	next.RunUUID = result.RunUUID

	if validateErr := next.Validate(); validateErr != nil {
		run.finishError(errorTypeBuildSnapshot, validateErr, time.Since(start))

		return RunResult{}, validateErr
	}

	for _, anomaly := range anomalies {
		run.anomaly(anomaly)
	}

	if e.strict && len(anomalies) > 0 {
		err := anomaliesError(anomalies)
		run.finishError(errorTypeAnomaly, err, time.Since(start))

		return RunResult{}, err
	}

	if putErr := e.store.Put(ctx, next); putErr != nil {
		err := wrapUnlessIs(putErr, ErrSavingSnapshotFailed)
		run.finishError(errorTypeSaveSnapshot, err, time.Since(start))

		return RunResult{}, err
	}

	result.Snapshot = next
	result.Anomalies = anomalies
	result.Duration = time.Since(start)
	result.DurationMilliseconds = toMilliseconds(result.Duration)

	run.finishSuccess(result)

	return result, nil
}

// gatherFacts reads all aggregates of one run, in a single statement if the source supports it.
func (e *Engine) gatherFacts(ctx context.Context, request AggregateRequest) (SourceFacts, bool, error) {
	if consistent, ok := e.source.(ConsistentSourceAggregator); ok && !e.sequentialReads {
		e.logDebug(ctx, logMsgAggregateQuery, logAttrAggregate, aggregateConsistent)

		facts, err := consistent.Aggregate(ctx, request)
		if err != nil {
			return SourceFacts{}, true, wrapUnlessIs(err, ErrQueryingSourceFailed)
		}

		return facts, true, nil
	}

	facts, err := e.gatherFactsSequentially(ctx, request)
	if err != nil {
		return SourceFacts{}, false, wrapUnlessIs(err, ErrQueryingSourceFailed)
	}

	return facts, false, nil
}

// gatherFactsSequentially issues one query per aggregate. Conditional counts go first, then the
// total count, then the new maxima.
func (e *Engine) gatherFactsSequentially(ctx context.Context, request AggregateRequest) (SourceFacts, error) {
	var facts SourceFacts

	if request.CountsCreated() {
		e.logDebug(ctx, logMsgAggregateQuery, logAttrAggregate, aggregateCreatedCount)

		created, err := e.source.CountCreatedAfter(ctx, request.PrimaryKeyWatermark.Int64)
		if err != nil {
			return SourceFacts{}, err
		}

		facts.CreatedCount = sql.NullInt64{Int64: created, Valid: true}
	}

	if request.CountsModified() {
		e.logDebug(ctx, logMsgAggregateQuery, logAttrAggregate, aggregateModifiedCount)

		modified, err := e.source.CountModifiedAfter(ctx, *request.ModifiedBound, request.PrimaryKeyWatermark.Int64)
		if err != nil {
			return SourceFacts{}, err
		}

		facts.ModifiedCount = sql.NullInt64{Int64: modified, Valid: true}
	}

	e.logDebug(ctx, logMsgAggregateQuery, logAttrAggregate, aggregateTotalRowCount)

	total, err := e.source.CountRows(ctx)
	if err != nil {
		return SourceFacts{}, err
	}

	facts.TotalRowCount = sql.NullInt64{Int64: total, Valid: true}

	e.logDebug(ctx, logMsgAggregateQuery, logAttrAggregate, aggregateMaxPrimaryKey)

	if facts.MaxPrimaryKey, err = e.source.MaxPrimaryKey(ctx); err != nil {
		return SourceFacts{}, err
	}

	e.logDebug(ctx, logMsgAggregateQuery, logAttrAggregate, aggregateMaxModifiedAt)

	if facts.MaxModifiedAt, err = e.source.MaxModifiedAt(ctx); err != nil {
		return SourceFacts{}, err
	}

	e.logDebug(ctx, logMsgAggregateQuery, logAttrAggregate, aggregateMaxCreatedAt)

	if facts.MaxCreatedAt, err = e.source.MaxCreatedAt(ctx); err != nil {
		return SourceFacts{}, err
	}

	return facts, nil
}

func wrapUnlessIs(err error, sentinel error) error {
	if errors.Is(err, sentinel) {
		return err
	}

	return errors.Join(sentinel, err)
}
