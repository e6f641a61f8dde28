// Package circuitbreaker implements a per-service circuit breaker registry
// that guards calls to external dependencies such as the AI provider.
//
// A circuit breaker prevents cascading failures by temporarily blocking calls
// to a failing service. It has three states:
//
//   - CLOSED: Normal operation, calls pass through
//   - OPEN: Service failing, calls rejected until the cooldown elapses
//   - HALF-OPEN: One probe call decides between CLOSED and OPEN
//
// The same registry type backs the gateway's endpoints and the client-side
// call guard in package client; each process keeps its own instance.
//
// Usage:
//
//	registry := circuitbreaker.NewDefaultRegistry()
//	if registry.AllowRequest("gemini-proxy") {
//	    // Make request...
//	    if err != nil {
//	        registry.RecordFailure("gemini-proxy")
//	    } else {
//	        registry.RecordSuccess("gemini-proxy")
//	    }
//	}
package circuitbreaker
