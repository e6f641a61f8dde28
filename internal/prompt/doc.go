// Package prompt assembles every prompt sent to the AI provider.
//
// Build places four fixed policy clauses (no data access, rejection protocol,
// safety filter, advisor-only scope) ahead of the caller's query, so no call
// path can omit them. BuildDiagnostic renders the narrower error-analysis
// prompts used by the public analyze-error endpoint. IsPolicyRejection
// recognises answers produced by the rejection protocol or safety filter.
package prompt
