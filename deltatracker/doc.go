// Package deltatracker provides the core types and the delta engine for tracking the change volume
// (created, modified and deleted rows) of a single large source table over time.
//
// Instead of re-scanning the source table on every run, the engine persists a rolling watermark
// (maximum primary key, maximum modification timestamp and total row count) as a Snapshot and
// derives the deltas of the next run from that watermark plus a handful of aggregate queries.
//
// Key types:
//   - Snapshot: the persisted watermark plus the deltas attributed to one run
//   - SnapshotStore: reads the latest snapshot of a table and writes new ones
//   - SourceAggregator: answers the scalar aggregate queries against the source table
//   - Engine: composes both into one run and returns a RunResult
//
// Common usage pattern:
//
//	engine, err := deltatracker.NewEngine(store, source,
//		deltatracker.WithLogger(logger),
//		deltatracker.WithStrictConsistency(),
//	)
//	if err != nil {
//		// handle error
//	}
//
//	result, err := engine.Run(ctx, "EDW.fact.JDA_OutboundDetail")
//	if err != nil {
//		// nothing was written, the scheduler retries on its next tick
//	}
//
//	for _, anomaly := range result.Anomalies {
//		// report data-consistency warnings
//	}
package deltatracker
