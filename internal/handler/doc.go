// Package handler implements the HTTP endpoints of the AI gateway.
// It validates requests, consults the circuit breaker, calls the gateway
// service and maps outcomes to status codes without leaking upstream detail.
package handler
