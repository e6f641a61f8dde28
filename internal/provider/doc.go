// Package provider adapts external text-completion services (Gemini and
// OpenAI-compatible APIs) to a single Completer interface used by the gateway.
package provider
