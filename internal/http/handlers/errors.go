// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, conflict) mirror common HTTP status
//     semantics to aid interoperability.
//   - Domain-specific codes (invalid_transition, reminder_not_allowed,
//     dispatch_failed) cover the engine's policy and delivery failures that
//     cannot be conveyed by status alone; reminder vetoes additionally carry
//     the evaluator's reason and remaining cooldown in the response body.
//   - All error responses must include both an HTTP status and one of these codes.
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeInvalidTransition  = "invalid_transition"
	ErrCodeReminderNotAllowed = "reminder_not_allowed"
	ErrCodeDispatchFailed     = "dispatch_failed"
	ErrCodeCreateFailed       = "create_failed"
	ErrCodeListFailed         = "list_failed"
	ErrCodeMethodNotAllowed   = "method_not_allowed"
)
