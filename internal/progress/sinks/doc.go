// Package sinks implements concrete progress consumers: structured logging,
// Prometheus collectors, and a JSON-lines archive written to a blob store.
// Each sink satisfies progress.Sink.
package sinks
