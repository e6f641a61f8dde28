// Package metrics provides real-time metrics collection for the AI gateway.
//
// It uses a channel-based event pipeline to asynchronously collect, per
// breaker-guarded service:
//   - Calls that reached the provider, split into successes and upstream failures
//   - Latency with percentile calculations (P50, P95, P99)
//   - Calls rejected locally because the circuit was open
//   - Successful calls whose answer was a policy rejection
//   - The last breaker state observed by the monitor
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the request path. Emit drops events when the buffer is full.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:     metrics.EventCallSucceeded,
//		Service:  "gemini-proxy",
//		Duration: 850 * time.Millisecond,
//	})
//
//	snapshot := collector.Snapshot()
//
// Pending events are drained on shutdown.
package metrics
