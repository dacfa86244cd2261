// Package testdoubles provides in-memory implementations of the delta tracker ports for testing.
//
//   - MemorySource: a row set answering every aggregate query, with read hooks and failure injection
//   - MemorySnapshotStore: a snapshot store keyed by (table id, captured at), with failure injection
//   - ContextualLoggerSpy: captures contextual logging calls
package testdoubles
