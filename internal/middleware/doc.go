// Package middleware holds the HTTP middleware of the gateway: API key
// authentication, per-IP rate limiting for the public endpoint, access
// logging and tracing.
package middleware
