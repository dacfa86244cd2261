package sqlengine

import (
	"math"
	"time"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
)

const (
	logMsgSQLExecuted      = "executed sql for: "
	logMsgDBQueryFailed    = "database query execution failed"
	logMsgDBExecFailed     = "database execution failed"
	logMsgCloseRowsFailed  = "failed to close database rows"
	logMsgScanRowFailed    = "failed to scan database row"
	logMsgBuildQueryFailed = "failed to build query"
	logMsgProvisioned      = "snapshot table provisioned"
	logAttrError           = "error"
	logAttrQuery           = "query"
	logAttrDurationMS      = "duration_ms"
	logAttrTable           = "table"
	logAttrDialect         = "dialect"
)

// queryLogger logs statements and failures if a logger is configured.
type queryLogger struct {
	logger deltatracker.Logger
}

// logQueryWithDuration logs SQL statements with execution time at debug level.
func (l queryLogger) logQueryWithDuration(sqlQuery string, action string, duration time.Duration) {
	if l.logger != nil {
		l.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

func (l queryLogger) logInfo(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Info(msg, args...)
	}
}

func (l queryLogger) logWarn(msg string, err error) {
	if l.logger != nil {
		l.logger.Warn(msg, logAttrError, err.Error())
	}
}

// logError logs error information at the error level.
func (l queryLogger) logError(msg string, err error, args ...any) {
	if l.logger != nil {
		allArgs := []any{logAttrError, err.Error()}
		allArgs = append(allArgs, args...)
		l.logger.Error(msg, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
