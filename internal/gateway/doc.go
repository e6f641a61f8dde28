// Package gateway orchestrates every call to the external AI model: it builds
// the prompt, enforces the call timeout and converts any provider failure,
// including timeouts and panics, into a Failed result.
package gateway
