// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the gateway configuration structure
// including server settings, the model provider, circuit breaker thresholds,
// API keys, rate limits and tracing. API keys can be reloaded while running.
package config
