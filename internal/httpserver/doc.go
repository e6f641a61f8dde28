// Package httpserver wraps net/http.Server with address validation,
// timeouts suited to slow upstream model calls and graceful shutdown.
package httpserver
