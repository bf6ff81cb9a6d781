package services

import (
	"errors"
	"testing"
	"time"

	"github.com/askecho/ask-backend/internal/domain"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestStateMachine_MarkSent(t *testing.T) {
	var sm StateMachine
	now := ts("2026-03-01T12:00:00Z")

	a := &domain.Assignment{Status: domain.StatusPending}
	changed, err := sm.MarkSent(a, now)
	if err != nil || !changed {
		t.Fatalf("pending -> sent: changed=%v err=%v", changed, err)
	}
	if a.Status != domain.StatusSent || a.SentAt == nil || !a.SentAt.Equal(now) {
		t.Fatalf("sent state not stamped: %+v", a)
	}

	// Repeat send is a no-op and keeps the first timestamp.
	later := now.Add(time.Hour)
	changed, err = sm.MarkSent(a, later)
	if err != nil || changed {
		t.Fatalf("repeat send should be a no-op: changed=%v err=%v", changed, err)
	}
	if !a.SentAt.Equal(now) {
		t.Fatalf("repeat send must keep original SentAt, got %v", a.SentAt)
	}

	// From viewed or answered it's an ordering violation.
	for _, st := range []domain.Status{domain.StatusViewed, domain.StatusAnswered} {
		b := &domain.Assignment{Status: st}
		_, err := sm.MarkSent(b, now)
		var inv *InvalidTransitionError
		if !errors.As(err, &inv) {
			t.Fatalf("markSent from %s: want InvalidTransitionError, got %v", st, err)
		}
		if inv.From != st || inv.Event != "markSent" {
			t.Fatalf("error payload wrong: %+v", inv)
		}
	}
}

func TestStateMachine_MarkViewed(t *testing.T) {
	var sm StateMachine
	now := ts("2026-03-01T12:00:00Z")

	// View before send is illegal.
	a := &domain.Assignment{Status: domain.StatusPending}
	_, err := sm.MarkViewed(a, now)
	var inv *InvalidTransitionError
	if !errors.As(err, &inv) || inv.Event != "markViewed" {
		t.Fatalf("view before send: want InvalidTransitionError, got %v", err)
	}

	// sent -> viewed stamps once.
	a.Status = domain.StatusSent
	changed, err := sm.MarkViewed(a, now)
	if err != nil || !changed || a.Status != domain.StatusViewed || a.ViewedAt == nil {
		t.Fatalf("sent -> viewed failed: changed=%v err=%v a=%+v", changed, err, a)
	}

	// Reload of the page: no-op, first timestamp kept.
	changed, err = sm.MarkViewed(a, now.Add(time.Minute))
	if err != nil || changed || !a.ViewedAt.Equal(now) {
		t.Fatalf("repeat view should be absorbed: changed=%v err=%v viewedAt=%v", changed, err, a.ViewedAt)
	}

	// A view after the answer must not regress the status.
	a.Status = domain.StatusAnswered
	changed, err = sm.MarkViewed(a, now.Add(time.Hour))
	if err != nil || changed || a.Status != domain.StatusAnswered {
		t.Fatalf("view after answer should be absorbed: changed=%v err=%v status=%s", changed, err, a.Status)
	}
}

func TestStateMachine_MarkAnswered(t *testing.T) {
	var sm StateMachine
	now := ts("2026-03-01T12:00:00Z")

	// Answer before send is illegal.
	a := &domain.Assignment{Status: domain.StatusPending}
	if _, err := sm.MarkAnswered(a, now, "rec-1"); err == nil {
		t.Fatalf("answer before send must fail")
	}

	// The viewed step may be skipped (recording posted without a page view).
	a.Status = domain.StatusSent
	changed, err := sm.MarkAnswered(a, now, "rec-1")
	if err != nil || !changed {
		t.Fatalf("sent -> answered: changed=%v err=%v", changed, err)
	}
	if a.Status != domain.StatusAnswered || a.RecordingID == nil || *a.RecordingID != "rec-1" || a.AnsweredAt == nil {
		t.Fatalf("answered state not stamped: %+v", a)
	}

	// Double submission keeps the first recording.
	changed, err = sm.MarkAnswered(a, now.Add(time.Minute), "rec-2")
	if err != nil || changed {
		t.Fatalf("double answer should be a no-op: changed=%v err=%v", changed, err)
	}
	if *a.RecordingID != "rec-1" || !a.AnsweredAt.Equal(now) {
		t.Fatalf("first recording must win: %+v", a)
	}

	// viewed -> answered also legal.
	b := &domain.Assignment{Status: domain.StatusViewed}
	if changed, err := sm.MarkAnswered(b, now, "rec-3"); err != nil || !changed || b.Status != domain.StatusAnswered {
		t.Fatalf("viewed -> answered failed: changed=%v err=%v", changed, err)
	}
}

func TestStateMachine_RecordReminder(t *testing.T) {
	var sm StateMachine
	now := ts("2026-03-01T12:00:00Z")

	for _, st := range []domain.Status{domain.StatusSent, domain.StatusViewed} {
		a := &domain.Assignment{Status: st, ReminderCount: 1}
		changed, err := sm.RecordReminder(a, now)
		if err != nil || !changed {
			t.Fatalf("reminder from %s: changed=%v err=%v", st, changed, err)
		}
		if a.ReminderCount != 2 || a.LastReminderAt == nil || !a.LastReminderAt.Equal(now) {
			t.Fatalf("reminder bookkeeping wrong: %+v", a)
		}
	}

	for _, st := range []domain.Status{domain.StatusPending, domain.StatusAnswered} {
		a := &domain.Assignment{Status: st}
		_, err := sm.RecordReminder(a, now)
		var inv *InvalidTransitionError
		if !errors.As(err, &inv) || inv.Event != "recordReminder" {
			t.Fatalf("reminder from %s: want InvalidTransitionError, got %v", st, err)
		}
	}
}
