// Package services – assignment state machine.
//
// This file implements the four-state lifecycle pending → sent → viewed →
// answered. The state machine is the only writer of an assignment's status
// and transition timestamps; the AssignmentService applies a transition to an
// in-memory snapshot and then commits it with an optimistic-lock save, so the
// machine itself is pure and never touches storage or the clock.
//
// Transition semantics:
//   - transitions only move forward; each sets its timestamp once;
//   - repeated forward events (a second page view, a double-submitted answer)
//     are absorbed as no-ops rather than errors, because the public recording
//     page may be reloaded any number of times without a stable session;
//   - genuinely illegal orderings (view or answer before send, reminders on
//     pending/answered assignments) fail with InvalidTransitionError.
//
// Each method reports whether it changed the snapshot, so callers know
// whether a commit is needed.
package services

import (
	"time"

	"github.com/askecho/ask-backend/internal/domain"
)

// StateMachine applies lifecycle transitions to assignment snapshots. It is
// stateless and safe for concurrent use; linearization of concurrent
// transitions on the same assignment is the caller's responsibility (per-key
// locking plus the version check at commit time).
type StateMachine struct{}

// MarkSent transitions pending → sent and stamps SentAt.
//
// Calling it when the assignment is already sent is a harmless no-op (the
// caller re-sent the question; dispatch happens either way). Calling it from
// viewed or answered is an ordering violation.
func (StateMachine) MarkSent(a *domain.Assignment, now time.Time) (bool, error) {
	switch a.Status {
	case domain.StatusPending:
		a.Status = domain.StatusSent
		if a.SentAt == nil {
			t := now
			a.SentAt = &t
		}
		return true, nil
	case domain.StatusSent:
		return false, nil
	default:
		return false, &InvalidTransitionError{From: a.Status, Event: "markSent"}
	}
}

// MarkViewed transitions sent → viewed and stamps ViewedAt.
//
// A view before the question was ever sent is an ordering violation. Repeat
// views (viewed or answered) are no-ops.
func (StateMachine) MarkViewed(a *domain.Assignment, now time.Time) (bool, error) {
	switch a.Status {
	case domain.StatusPending:
		return false, &InvalidTransitionError{From: a.Status, Event: "markViewed"}
	case domain.StatusSent:
		a.Status = domain.StatusViewed
		if a.ViewedAt == nil {
			t := now
			a.ViewedAt = &t
		}
		return true, nil
	default:
		// viewed or answered already; repeated page loads must not regress
		// or error.
		return false, nil
	}
}

// MarkAnswered transitions sent|viewed → answered, stamps AnsweredAt, and
// records the submitted recording. answered is terminal; a double-submitted
// answer is a no-op and keeps the first recording.
func (StateMachine) MarkAnswered(a *domain.Assignment, now time.Time, recordingID string) (bool, error) {
	switch a.Status {
	case domain.StatusPending:
		return false, &InvalidTransitionError{From: a.Status, Event: "markAnswered"}
	case domain.StatusSent, domain.StatusViewed:
		a.Status = domain.StatusAnswered
		if a.AnsweredAt == nil {
			t := now
			a.AnsweredAt = &t
		}
		if a.RecordingID == nil && recordingID != "" {
			r := recordingID
			a.RecordingID = &r
		}
		return true, nil
	default:
		return false, nil
	}
}

// RecordReminder increments ReminderCount and stamps LastReminderAt. Legal
// only while the assignment is sent or viewed: there is nothing to remind
// about before the first send, and nagging after an answer is pointless.
func (StateMachine) RecordReminder(a *domain.Assignment, now time.Time) (bool, error) {
	switch a.Status {
	case domain.StatusSent, domain.StatusViewed:
		a.ReminderCount++
		t := now
		a.LastReminderAt = &t
		return true, nil
	default:
		return false, &InvalidTransitionError{From: a.Status, Event: "recordReminder"}
	}
}
