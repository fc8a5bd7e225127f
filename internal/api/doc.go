// Package api hosts the operational HTTP listener that runs beside a pipeline
// run. Routes:
//   - GET /healthz reports process liveness.
//   - GET /readyz reports whether the configured dependencies answer.
//   - GET /metrics exposes Prometheus collectors.
package api
