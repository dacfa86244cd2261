package sqlengine

import (
	"context"
	"errors"
	"time"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker/sqlengine/internal/adapters"
)

const (
	logActionQuery = "query"
	logActionExec  = "exec"
)

type sqlQueryString = string

// toSQLer is implemented by every goqu dataset.
type toSQLer interface {
	ToSQL() (string, []any, error)
}

// statementRunner executes rendered statements against one database handle.
type statementRunner struct {
	db  adapters.DBAdapter
	log queryLogger
}

// render turns a goqu dataset into an interpolated statement.
func render(ds toSQLer) (sqlQueryString, error) {
	sqlQuery, _, toSQLErr := ds.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// queryRow runs a statement that returns at most one row and scans all its columns as driver values.
// found is false if the statement returned no row.
func (r statementRunner) queryRow(ctx context.Context, sqlQuery sqlQueryString, columns int) (values []any, found bool, err error) {
	start := time.Now()
	rows, queryErr := r.db.Query(ctx, sqlQuery)
	r.log.logQueryWithDuration(sqlQuery, logActionQuery, time.Since(start))

	if queryErr != nil {
		r.log.logError(logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, false, queryErr
	}
	defer r.closeRows(rows)

	if !rows.Next() {
		if rowsErr := rows.Err(); rowsErr != nil {
			r.log.logError(logMsgDBQueryFailed, rowsErr, logAttrQuery, sqlQuery)
			return nil, false, rowsErr
		}

		return nil, false, nil
	}

	values = make([]any, columns)
	targets := make([]any, columns)
	for i := range values {
		targets[i] = &values[i]
	}

	if scanErr := rows.Scan(targets...); scanErr != nil {
		r.log.logError(logMsgScanRowFailed, scanErr)
		return nil, false, errors.Join(ErrScanningDBRowFailed, scanErr)
	}

	return values, true, nil
}

// exec runs a statement that returns no rows.
func (r statementRunner) exec(ctx context.Context, sqlQuery sqlQueryString) (int64, error) {
	start := time.Now()
	result, execErr := r.db.Exec(ctx, sqlQuery)
	r.log.logQueryWithDuration(sqlQuery, logActionExec, time.Since(start))

	if execErr != nil {
		r.log.logError(logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return 0, execErr
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		// some drivers cannot report affected rows for DDL
		return 0, nil //nolint:nilerr
	}

	return rowsAffected, nil
}

// closeRows safely closes database rows and logs any errors.
func (r statementRunner) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		r.log.logWarn(logMsgCloseRowsFailed, closeErr)
	}
}
