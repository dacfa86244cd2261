// Package adapters wraps the supported database handles (pgxpool.Pool, sql.DB and sqlx.DB) behind one
// DBAdapter interface, so the source aggregator and the snapshot store issue their statements the same way
// regardless of the connection type the caller owns.
package adapters
