// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces the pipeline uses to report run progress. Events are batched on a
// background goroutine and fanned out to pluggable sinks such as structured
// logs, Prometheus collectors, or an archived event log.
package progress
