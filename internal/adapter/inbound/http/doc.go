// Package http provides the HTTP transport for the judgment gate.
//
// # Endpoints
//
//	POST /v1/evaluate      - Evaluate {command, model_output} against the policy
//	GET  /v1/audit/recent  - Most recent audit entries, newest first (?limit=N)
//	GET  /healthz          - Health check
//	GET  /metrics          - Prometheus metrics
//
// # Request Headers
//
//	X-Request-ID: <id>              - Reused as the evaluation id; generated when absent
//	Content-Type: application/json  - Required for POST requests
//
// # Responses
//
// POST /v1/evaluate returns 200 with {evaluation_id, decision, warning?}.
// warning is present when the audit write failed but the gate runs fail-open.
// A fail-closed audit failure returns 503, a strict-mode unknown when key 422,
// and a malformed request 400. Errors are {"error": "..."}.
//
// # Middleware Chain
//
// Requests pass through middleware in this order:
//
//  1. MetricsMiddleware - Records duration and status
//  2. RequestIDMiddleware - Extracts or generates the request id and enriches the logger
//  3. DNSRebindingProtection - Validates the Origin header
//  4. Handler - Routes to the endpoint handlers
package http
