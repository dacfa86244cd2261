package deltatracker

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"
)

const (
	aggregateConsistent    = "consistent aggregate"
	aggregateMaxPrimaryKey = "max primary key"
	aggregateMaxModifiedAt = "max modified at"
	aggregateMaxCreatedAt  = "max created at"

	logMsgOperation      = "deltatracker operation: "
	logMsgRunCompleted   = "run completed"
	logMsgRunFailed      = "run failed"
	logMsgAggregateQuery = "querying source aggregate"
	logMsgAnomaly        = "data consistency anomaly"

	logAttrError         = "error"
	logAttrErrorType     = "error_type"
	logAttrTableID       = "table_id"
	logAttrRunUUID       = "run_uuid"
	logAttrRunKind       = "run_kind"
	logAttrAggregate     = "aggregate"
	logAttrCapturedAt    = "captured_at"
	logAttrCreatedCount  = "created_count"
	logAttrModifiedCount = "modified_count"
	logAttrDeletedCount  = "deleted_count"
	logAttrTotalRowCount = "total_row_count"
	logAttrAnomalyKind   = "anomaly_kind"
	logAttrDetail        = "detail"
	logAttrDurationMS    = "duration_ms"
	logAttrConsistent    = "consistent_read"

	spanNameRun = "deltatracker.run"

	spanAttrTableID       = "table_id"
	spanAttrRunUUID       = "run_uuid"
	spanAttrRunKind       = "run_kind"
	spanAttrErrorType     = "error_type"
	spanAttrCapturedAt    = "captured_at"
	spanAttrCreatedCount  = "created_count"
	spanAttrModifiedCount = "modified_count"
	spanAttrDeletedCount  = "deleted_count"
	spanAttrAnomalyCount  = "anomaly_count"
	spanAttrDurationMS    = "duration_ms"

	metricRunDuration   = "deltatracker_run_duration_seconds"
	metricRunsTotal     = "deltatracker_runs_total"
	metricRowsCreated   = "deltatracker_rows_created"
	metricRowsModified  = "deltatracker_rows_modified"
	metricRowsDeleted   = "deltatracker_rows_deleted"
	metricRowsTotal     = "deltatracker_rows_total"
	metricAnomalies     = "deltatracker_anomalies_total"
	metricErrors        = "deltatracker_errors_total"
	metricLabelTableID  = "table_id"
	metricLabelRunKind  = "run_kind"
	metricLabelStatus   = "status"
	metricLabelErrType  = "error_type"
	metricLabelAnomaly  = "anomaly_kind"
	statusSuccess       = "success"
	statusError         = "error"
	runKindUndetermined = "undetermined"

	errorTypeLoadSnapshot  = "load_snapshot"
	errorTypeQuerySource   = "query_source"
	errorTypeBuildSnapshot = "build_snapshot"
	errorTypeAnomaly       = "anomaly"
	errorTypeSaveSnapshot  = "save_snapshot"
)

// runObservation bundles logging, metrics and the tracing span of one run.
type runObservation struct {
	e       *Engine
	ctx     context.Context
	span    SpanContext
	tableID string
	runUUID string
	kind    string
}

func (e *Engine) startRunObservation(ctx context.Context, tableID, runUUID string) *runObservation {
	run := &runObservation{
		e:       e,
		ctx:     ctx,
		tableID: tableID,
		runUUID: runUUID,
		kind:    runKindUndetermined,
	}

	if e.tracingCollector != nil {
		run.ctx, run.span = e.tracingCollector.StartSpan(ctx, spanNameRun, map[string]string{
			spanAttrTableID: tableID,
			spanAttrRunUUID: runUUID,
		})
	}

	return run
}

func (r *runObservation) setKind(kind RunKind) {
	r.kind = string(kind)

	if r.span != nil {
		r.span.AddAttribute(spanAttrRunKind, r.kind)
	}
}

func (r *runObservation) anomaly(anomaly Anomaly) {
	r.e.logWarn(
		r.ctx,
		logMsgAnomaly,
		logAttrTableID, r.tableID,
		logAttrRunUUID, r.runUUID,
		logAttrAnomalyKind, string(anomaly.Kind),
		logAttrDetail, anomaly.Detail,
	)

	r.e.incrementCounter(r.ctx, metricAnomalies, map[string]string{
		metricLabelTableID: r.tableID,
		metricLabelAnomaly: string(anomaly.Kind),
	})
}

func (r *runObservation) finishError(errorType string, err error, duration time.Duration) {
	r.e.logError(
		r.ctx,
		logMsgOperation+logMsgRunFailed,
		err,
		logAttrErrorType, errorType,
		logAttrTableID, r.tableID,
		logAttrRunUUID, r.runUUID,
		logAttrRunKind, r.kind,
		logAttrDurationMS, toMilliseconds(duration),
	)

	labels := map[string]string{
		metricLabelTableID: r.tableID,
		metricLabelRunKind: r.kind,
		metricLabelStatus:  statusError,
	}
	r.e.recordDuration(r.ctx, metricRunDuration, duration, labels)
	r.e.incrementCounter(r.ctx, metricRunsTotal, labels)
	r.e.incrementCounter(r.ctx, metricErrors, map[string]string{
		metricLabelTableID: r.tableID,
		metricLabelErrType: errorType,
	})

	if r.span == nil {
		return
	}

	r.span.SetStatus(statusError)
	r.span.AddAttribute(spanAttrErrorType, errorType)
	r.span.AddAttribute(spanAttrDurationMS, formatMilliseconds(duration))
	r.e.tracingCollector.FinishSpan(r.span, statusError, map[string]string{spanAttrErrorType: errorType})
}

func (r *runObservation) finishSuccess(result RunResult) {
	snapshot := result.Snapshot

	r.e.logInfo(
		r.ctx,
		logMsgOperation+logMsgRunCompleted,
		logAttrTableID, r.tableID,
		logAttrRunUUID, r.runUUID,
		logAttrRunKind, r.kind,
		logAttrCapturedAt, snapshot.CapturedAt,
		logAttrTotalRowCount, snapshot.TotalRowCount,
		logAttrCreatedCount, snapshot.CreatedCount,
		logAttrModifiedCount, snapshot.ModifiedCount,
		logAttrDeletedCount, snapshot.DeletedCount,
		logAttrConsistent, result.ConsistentRead,
		logAttrDurationMS, result.DurationMilliseconds,
	)

	labels := map[string]string{
		metricLabelTableID: r.tableID,
		metricLabelRunKind: r.kind,
		metricLabelStatus:  statusSuccess,
	}
	r.e.recordDuration(r.ctx, metricRunDuration, result.Duration, labels)
	r.e.incrementCounter(r.ctx, metricRunsTotal, labels)
	r.e.recordValue(r.ctx, metricRowsCreated, float64(snapshot.CreatedCount), labels)
	r.e.recordValue(r.ctx, metricRowsModified, float64(snapshot.ModifiedCount), labels)
	r.e.recordValue(r.ctx, metricRowsDeleted, float64(snapshot.DeletedCount), labels)
	r.e.recordValue(r.ctx, metricRowsTotal, float64(snapshot.TotalRowCount), labels)

	if r.span == nil {
		return
	}

	attrs := map[string]string{
		spanAttrCapturedAt:    strconv.FormatInt(snapshot.CapturedAt, 10),
		spanAttrCreatedCount:  strconv.FormatInt(snapshot.CreatedCount, 10),
		spanAttrModifiedCount: strconv.FormatInt(snapshot.ModifiedCount, 10),
		spanAttrDeletedCount:  strconv.FormatInt(snapshot.DeletedCount, 10),
		spanAttrAnomalyCount:  strconv.Itoa(len(result.Anomalies)),
	}

	r.span.SetStatus(statusSuccess)
	r.span.AddAttribute(spanAttrDurationMS, formatMilliseconds(result.Duration))
	r.e.tracingCollector.FinishSpan(r.span, statusSuccess, attrs)
}

// logDebug logs at debug level to whichever loggers are configured.
func (e *Engine) logDebug(ctx context.Context, msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}

	if e.contextualLogger != nil {
		e.contextualLogger.DebugContext(ctx, msg, args...)
	}
}

// logInfo logs operational information at info level to whichever loggers are configured.
func (e *Engine) logInfo(ctx context.Context, msg string, args ...any) {
	if e.logger != nil {
		e.logger.Info(msg, args...)
	}

	if e.contextualLogger != nil {
		e.contextualLogger.InfoContext(ctx, msg, args...)
	}
}

// logWarn logs data-consistency warnings to whichever loggers are configured.
func (e *Engine) logWarn(ctx context.Context, msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}

	if e.contextualLogger != nil {
		e.contextualLogger.WarnContext(ctx, msg, args...)
	}
}

// logError logs error information at the error level to whichever loggers are configured.
func (e *Engine) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if e.logger != nil {
		e.logger.Error(msg, allArgs...)
	}

	if e.contextualLogger != nil {
		e.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	}
}

// recordDuration records a duration, with context if the collector supports it.
func (e *Engine) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := e.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	e.metricsCollector.RecordDuration(metric, duration, labels)
}

// incrementCounter increments a counter, with context if the collector supports it.
func (e *Engine) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := e.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metric, labels)
		return
	}

	e.metricsCollector.IncrementCounter(metric, labels)
}

// recordValue records a value, with context if the collector supports it.
func (e *Engine) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := e.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metric, value, labels)
		return
	}

	e.metricsCollector.RecordValue(metric, value, labels)
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func formatMilliseconds(d time.Duration) string {
	return fmt.Sprintf("%.2f", float64(d.Nanoseconds())/1e6)
}
