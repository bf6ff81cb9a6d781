// Package services – reminder eligibility evaluator.
//
// This file implements the pure decision function that answers "may a
// reminder be dispatched for this assignment right now, and if not, why and
// for how much longer". It is deliberately free of I/O and clocks: given the
// same assignment snapshot and the same instant it always returns the same
// answer, which makes it the most exhaustively testable unit in the engine.
//
// Policy:
//   - at most MaxReminders reminders per assignment, ever;
//   - the wait before each successive reminder escalates (24h, then 72h,
//     then 7 days), measured from the previous reminder, or from the initial
//     send when no reminder has gone out yet;
//   - answered assignments and assignments that were never sent are never
//     eligible.
package services

import (
	"fmt"
	"time"

	"github.com/askecho/ask-backend/internal/domain"
)

// RemindReason is the machine-readable code explaining why a reminder is not
// currently allowed. Empty when the reminder is allowed.
type RemindReason string

const (
	// ReasonAlreadyAnswered – the assignment is terminal.
	ReasonAlreadyAnswered RemindReason = "already_answered"
	// ReasonNotYetSent – nothing has been sent, so there is nothing to
	// remind about.
	ReasonNotYetSent RemindReason = "not_yet_sent"
	// ReasonMaxReminders – the per-assignment cap has been reached.
	ReasonMaxReminders RemindReason = "max_reminders_reached"
	// ReasonCooldown – the escalating wait since the last send/reminder has
	// not elapsed yet.
	ReasonCooldown RemindReason = "cooldown_active"
)

// MaxReminders is the hard per-assignment reminder cap.
const MaxReminders = 3

// reminderCooldowns holds the escalating wait before the next reminder,
// indexed by how many reminders have already been dispatched. Indexes past
// the end clamp to the last entry.
var reminderCooldowns = [...]time.Duration{
	24 * time.Hour,
	72 * time.Hour,
	7 * 24 * time.Hour,
}

// RemindEligibility is the computed permission to send a reminder right now.
// It is recomputed on every request and never stored: it is a pure function
// of the assignment snapshot and the current time.
type RemindEligibility struct {
	CanRemind         bool
	Reason            RemindReason  // set only when CanRemind is false
	CooldownRemaining time.Duration // set only for ReasonCooldown
	NextEligibleAt    *time.Time    // set only for ReasonCooldown
}

// CooldownFor returns the wait that must elapse before reminder number
// (remindersSoFar + 1) may be dispatched. The index clamps to the last
// defined threshold; with the MaxReminders cap in place the clamp should be
// unreachable.
func CooldownFor(remindersSoFar int) time.Duration {
	if remindersSoFar < 0 {
		remindersSoFar = 0
	}
	if remindersSoFar >= len(reminderCooldowns) {
		remindersSoFar = len(reminderCooldowns) - 1
	}
	return reminderCooldowns[remindersSoFar]
}

// EvaluateReminder decides whether a reminder may be dispatched for the given
// assignment snapshot at instant now.
//
// The anchor for elapsed-time measurement is LastReminderAt when a reminder
// has already gone out, otherwise SentAt. Viewing the question does not move
// the anchor: a recipient who looked but did not answer still gets the same
// escalation schedule.
func EvaluateReminder(a *domain.Assignment, now time.Time) RemindEligibility {
	if a.Status == domain.StatusAnswered {
		return RemindEligibility{Reason: ReasonAlreadyAnswered}
	}
	if a.Status == domain.StatusPending {
		return RemindEligibility{Reason: ReasonNotYetSent}
	}
	if a.ReminderCount >= MaxReminders {
		return RemindEligibility{Reason: ReasonMaxReminders}
	}

	threshold := CooldownFor(a.ReminderCount)

	anchor := a.LastReminderAt
	if anchor == nil {
		anchor = a.SentAt
	}
	if anchor == nil {
		// Sent status without a sent timestamp; treat as never sent.
		return RemindEligibility{Reason: ReasonNotYetSent}
	}

	elapsed := now.Sub(*anchor)
	if elapsed < threshold {
		remaining := threshold - elapsed
		next := now.Add(remaining)
		return RemindEligibility{
			Reason:            ReasonCooldown,
			CooldownRemaining: remaining,
			NextEligibleAt:    &next,
		}
	}
	return RemindEligibility{CanRemind: true}
}

// FormatCooldown renders a remaining duration for humans: days and hours when
// at least a day remains, hours and minutes when at least an hour remains,
// otherwise whole minutes. The displayed value never drops below "1m" so the
// UI cannot show a zero wait while the cooldown is still active.
func FormatCooldown(d time.Duration) string {
	mins := int((d + time.Minute - 1) / time.Minute) // round up to whole minutes
	if mins < 1 {
		mins = 1
	}
	switch {
	case mins >= 24*60:
		return fmt.Sprintf("%dd %dh", mins/(24*60), (mins%(24*60))/60)
	case mins >= 60:
		return fmt.Sprintf("%dh %dm", mins/60, mins%60)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}
