// Package telemetry configures OpenTelemetry tracing with an OTLP gRPC exporter.
package telemetry
