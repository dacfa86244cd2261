// Package sqlengine provides the relational implementations of the delta tracker ports.
//
// Source answers the aggregate queries of a run against the tracked table. It implements
// deltatracker.ConsistentSourceAggregator, so by default a run reads every aggregate with one statement.
// SnapshotStore persists snapshots in a table keyed by (table_id, captured_at).
//
// Both are built with goqu and accept pgxpool.Pool, sql.DB or sqlx.DB handles. Supported dialects:
// postgres, mysql, sqlite3 and sqlserver (the latter for Source only, SQL Server has no upsert
// in goqu).
//
//	source, err := sqlengine.NewSourceFromSQLDB(db, "EDW.fact.JDA_OutboundDetail",
//		sqlengine.WithSourceDialect(sqlengine.DialectSQLServer),
//		sqlengine.WithModifiedColumn("Modified"),
//	)
package sqlengine
