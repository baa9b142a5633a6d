// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

// LoggerKey is the context key type for the enriched logger.
// Used by HTTP middleware to store and retrieve the logger with the request_id field.
type LoggerKey struct{}

// EvaluationIDKey is the context key type for a caller-supplied evaluation id.
// The HTTP adapter stores the X-Request-ID value under it so the service
// reuses it instead of minting a new one.
type EvaluationIDKey struct{}
