// Package healthcheck watches the circuit breakers guarding outbound model
// calls. A Monitor samples the registry on a ticker, logs state transitions
// and forwards them to the metrics collector. It also serves the /healthz
// report.
package healthcheck
