// Package oteladapters implements the deltatracker observability interfaces on top of OpenTelemetry.
//
//	engine, err := deltatracker.NewEngine(store, source,
//		deltatracker.WithContextualLogger(oteladapters.NewSlogBridgeLogger("deltatracker")),
//		deltatracker.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter("deltatracker"))),
//		deltatracker.WithTracing(oteladapters.NewTracingCollector(otel.Tracer("deltatracker"))),
//	)
package oteladapters
