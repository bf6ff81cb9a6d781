// Package services – outgoing message composition.
//
// Sends and reminders carry a short human message plus the public recording
// link. Callers may supply a custom message; otherwise a default is composed
// from the question text and the recipient's name.
package services

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/askecho/ask-backend/internal/dispatch"
	"github.com/askecho/ask-backend/internal/domain"
)

// nameCaser title-cases recipient names for message templates without
// assuming a locale.
var nameCaser = cases.Title(language.Und)

// composeMessage builds the dispatchable message for a send or a reminder.
// custom, when non-empty, replaces the default body (the link is appended by
// the transport either way).
func composeMessage(q *domain.Question, p *domain.Person, link, custom string, reminder bool) dispatch.Message {
	subject := "A question for you"
	if reminder {
		subject = "Reminder: a question is waiting for you"
	}

	body := strings.TrimSpace(custom)
	if body == "" {
		name := nameCaser.String(strings.TrimSpace(firstName(p.Name)))
		if reminder {
			body = fmt.Sprintf("Hi %s, just a nudge: this question is still waiting for your answer: %q", name, q.Text)
		} else {
			body = fmt.Sprintf("Hi %s, someone would love to hear your answer to: %q", name, q.Text)
		}
	}

	return dispatch.Message{Subject: subject, Body: body, Link: link}
}

// firstName returns the first whitespace-separated component of a full name,
// or the whole string when it has no spaces.
func firstName(full string) string {
	full = strings.TrimSpace(full)
	if i := strings.IndexAny(full, " \t"); i > 0 {
		return full[:i]
	}
	return full
}
