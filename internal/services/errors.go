// Package services defines the business logic of the assignment lifecycle
// and reminder dispatch engine. This file centralizes service-level error
// values and structured error types so that they can be consistently
// returned by service methods and checked by callers.
//
// Two kinds of errors live here:
//   - sentinel errors for predictable "thing is missing / not permitted"
//     cases, matched with errors.Is;
//   - structured errors (InvalidTransitionError, ReminderNotAllowedError)
//     that carry machine-readable payloads, matched with errors.As. The HTTP
//     layer renders their fields (reason code, remaining cooldown) so the UI
//     can show "try again in 2h 14m" rather than a generic failure.
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/askecho/ask-backend/internal/domain"
)

var (
	// ErrAssignmentNotFound indicates that the requested assignment does not
	// exist or is not accessible to the current user.
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrPersonNotFound indicates that the recipient does not exist or is not
	// accessible to the current user.
	ErrPersonNotFound = errors.New("person not found")

	// ErrQuestionNotFound indicates that the question does not exist or is
	// not accessible to the current user.
	ErrQuestionNotFound = errors.New("question not found")

	// ErrAssignmentAnswered is returned when a caller attempts to delete an
	// assignment that has reached the terminal answered state.
	ErrAssignmentAnswered = errors.New("answered assignments cannot be deleted")

	// ErrUnknownChannel is returned when a send or reminder names a channel
	// the dispatcher does not recognize.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrConcurrentUpdate is returned when a transition could not be
	// committed after repeated optimistic-lock conflicts.
	ErrConcurrentUpdate = errors.New("assignment was modified concurrently")
)

// InvalidTransitionError reports an attempted lifecycle change that violates
// the forward-only ordering (for example viewing an assignment that was never
// sent). It is an integrity error, not a retryable condition.
type InvalidTransitionError struct {
	From  domain.Status // state the assignment was in
	Event string        // attempted transition, e.g. "markViewed"
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s from %q", e.Event, e.From)
}

// ReminderNotAllowedError is the policy veto from the eligibility evaluator.
// Reason is always set; CooldownRemaining and NextEligibleAt are present only
// when the veto is time-based.
type ReminderNotAllowedError struct {
	Reason            RemindReason
	CooldownRemaining time.Duration
	NextEligibleAt    *time.Time
}

// Error implements the error interface.
func (e *ReminderNotAllowedError) Error() string {
	if e.CooldownRemaining > 0 {
		return fmt.Sprintf("reminder not allowed: %s (%s remaining)", e.Reason, FormatCooldown(e.CooldownRemaining))
	}
	return fmt.Sprintf("reminder not allowed: %s", e.Reason)
}
