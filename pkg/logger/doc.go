// Package logger provides structured logging with configurable log levels.
// It wraps the standard log/slog package: text output for development, JSON
// in production, with environment and service attributes on every record.
package logger
