// Package helper provides spies and shared fixtures for testing the delta tracker.
//
// The spies capture what the engine and the stores hand to their observability hooks, so tests can
// assert on log records, metrics and spans without any telemetry backend.
package helper
