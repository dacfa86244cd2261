package oteladapters

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
)

// SlogBridgeLogger logs through log/slog. Built with NewSlogBridgeLogger it uses the otelslog bridge,
// so records carry the trace and span ids of the context and go to the global LoggerProvider.
// It satisfies both deltatracker.Logger and deltatracker.ContextualLogger, so the storage engines
// can share it with the engine.
type SlogBridgeLogger struct {
	logger *slog.Logger
}

var (
	_ deltatracker.ContextualLogger = (*SlogBridgeLogger)(nil)
	_ deltatracker.Logger           = (*SlogBridgeLogger)(nil)
)

// NewSlogBridgeLogger creates a logger on top of the otelslog bridge for the instrumentation scope name.
func NewSlogBridgeLogger(name string, options ...otelslog.Option) *SlogBridgeLogger {
	return &SlogBridgeLogger{logger: otelslog.NewLogger(name, options...)}
}

// NewSlogBridgeLoggerWithHandler creates a logger for an arbitrary slog.Handler, without OpenTelemetry.
func NewSlogBridgeLoggerWithHandler(handler slog.Handler) *SlogBridgeLogger {
	return &SlogBridgeLogger{logger: slog.New(handler)}
}

func (l *SlogBridgeLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

func (l *SlogBridgeLogger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

func (l *SlogBridgeLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

func (l *SlogBridgeLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *SlogBridgeLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logger.DebugContext(ctx, msg, args...)
}

func (l *SlogBridgeLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, msg, args...)
}

func (l *SlogBridgeLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, msg, args...)
}

func (l *SlogBridgeLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, msg, args...)
}

// OTelLogger emits records through the OpenTelemetry logs API directly.
type OTelLogger struct {
	logger log.Logger
}

var _ deltatracker.ContextualLogger = (*OTelLogger)(nil)

// NewOTelLogger wraps a log.Logger obtained from a LoggerProvider.
func NewOTelLogger(logger log.Logger) *OTelLogger {
	return &OTelLogger{logger: logger}
}

func (l *OTelLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityDebug, msg, args)
}

func (l *OTelLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityInfo, msg, args)
}

func (l *OTelLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityWarn, msg, args)
}

func (l *OTelLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityError, msg, args)
}

func (l *OTelLogger) emit(ctx context.Context, severity log.Severity, msg string, args []any) {
	var record log.Record
	record.SetSeverity(severity)
	record.SetSeverityText(severityText(severity))
	record.SetBody(log.StringValue(msg))
	record.AddAttributes(toLogAttributes(args)...)

	l.logger.Emit(ctx, record)
}

// toLogAttributes turns slog-style key/value pairs into typed log attributes. A dangling key is dropped.
func toLogAttributes(args []any) []log.KeyValue {
	attrs := make([]log.KeyValue, 0, len(args)/2)

	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}

		switch value := args[i+1].(type) {
		case string:
			attrs = append(attrs, log.String(key, value))
		case int64:
			attrs = append(attrs, log.Int64(key, value))
		case int:
			attrs = append(attrs, log.Int(key, value))
		case float64:
			attrs = append(attrs, log.Float64(key, value))
		case bool:
			attrs = append(attrs, log.Bool(key, value))
		default:
			attrs = append(attrs, log.String(key, slog.AnyValue(value).String()))
		}
	}

	return attrs
}

func severityText(severity log.Severity) string {
	switch severity {
	case log.SeverityDebug:
		return "DEBUG"
	case log.SeverityWarn:
		return "WARN"
	case log.SeverityError:
		return "ERROR"
	default:
		return "INFO"
	}
}
