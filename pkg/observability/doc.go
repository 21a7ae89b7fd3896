// Package observability exposes Prometheus instrumentation for the engine:
// turn counts, model round-trip latency, tool execution outcomes and retries.
//
// All recording methods are safe on a nil *Metrics, so instrumentation stays
// optional for library consumers.
package observability
