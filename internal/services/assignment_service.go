// Package services – AssignmentService.
//
// This file implements the AssignmentService, the façade over the assignment
// lifecycle: it creates assignments, invokes the state machine on
// send/view/answer, consults the eligibility evaluator before allowing a
// reminder, and calls the dispatcher. It is the only component permitted to
// call the state machine's mutators, and every committed transition goes
// through an optimistic-lock save so concurrent requests on the same
// assignment resolve deterministically (the terminal state always wins).
//
// Service-level errors (ErrAssignmentNotFound, ReminderNotAllowedError, …)
// are returned for predictable cases so handlers can map them to HTTP
// results consistently.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/askecho/ask-backend/internal/dispatch"
	"github.com/askecho/ask-backend/internal/domain"
	"github.com/askecho/ask-backend/internal/repo"
)

// AssignmentRepo defines the repository contract required by
// AssignmentService. Implementations are responsible for persistence of
// assignment aggregates, including the version-checked save.
type AssignmentRepo interface {
	// CreateAssignment inserts a new assignment row.
	CreateAssignment(ctx context.Context, db *gorm.DB, a *domain.Assignment) error

	// GetAssignment fetches an assignment by ID ensuring it belongs to the user.
	GetAssignment(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Assignment, error)

	// GetAssignmentByToken resolves the public link token to its assignment.
	GetAssignmentByToken(ctx context.Context, db *gorm.DB, token string) (*domain.Assignment, error)

	// CountAssignments returns the total number of assignments for pagination.
	CountAssignments(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// ListAssignmentsPage returns a page of assignments belonging to the user.
	ListAssignmentsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Assignment, error)

	// SaveTransition commits a mutated snapshot if, and only if, the stored
	// row still carries the snapshot's version. Returns repo.ErrVersionConflict
	// when another writer got there first.
	SaveTransition(ctx context.Context, db *gorm.DB, a *domain.Assignment) error

	// DeleteAssignment removes an assignment owned by the user.
	DeleteAssignment(ctx context.Context, db *gorm.DB, id, userID string) error
}

// Directory resolves the external collaborators the engine reads but does
// not own: people, their registered devices, and questions.
type Directory interface {
	// GetPerson fetches a person by ID ensuring it belongs to the user.
	GetPerson(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Person, error)

	// ListPushTokens returns every registered device token for a person.
	ListPushTokens(ctx context.Context, db *gorm.DB, personID string) ([]domain.PushToken, error)

	// GetQuestion fetches a question by ID ensuring it belongs to the user.
	GetQuestion(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Question, error)
}

// MessageDispatcher is the outbound delivery contract consumed by the
// service; *dispatch.Dispatcher satisfies it.
type MessageDispatcher interface {
	Dispatch(ctx context.Context, c dispatch.Channel, dest dispatch.Destination, msg dispatch.Message) (dispatch.Outcome, error)
}

// AssignmentService orchestrates the assignment lifecycle. It holds the GORM
// handle, the repositories, and the dispatcher, plus a per-assignment keyed
// mutex so same-assignment operations in this process are serialized.
type AssignmentService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the assignment repository used by this service.
	Repo AssignmentRepo
	// Dir resolves people, devices, and questions for addressing.
	Dir Directory
	// Dispatcher delivers sends and reminders.
	Dispatcher MessageDispatcher

	// PublicBaseURL prefixes minted recording links, e.g. "https://ask.example.com".
	PublicBaseURL string

	// Now is a test seam; defaults to time.Now.
	Now func() time.Time
	// TransitionRetries bounds re-read/re-apply loops after version conflicts.
	TransitionRetries int

	sm    StateMachine
	locks keyedMutex
}

// NewAssignmentService constructs an AssignmentService with sane defaults.
func NewAssignmentService(db *gorm.DB, r AssignmentRepo, dir Directory, d MessageDispatcher, publicBaseURL string) *AssignmentService {
	return &AssignmentService{
		DB:                db,
		Repo:              r,
		Dir:               dir,
		Dispatcher:        d,
		PublicBaseURL:     publicBaseURL,
		Now:               time.Now,
		TransitionRetries: 3,
	}
}

// SendResult is returned by Send: what went out, how, and when.
type SendResult struct {
	Message  string             `json:"message"`
	SentVia  dispatch.Channel   `json:"sent_via"`
	SentAt   time.Time          `json:"sent_at"`
	Link     string             `json:"link"`
	Outcome  dispatch.Outcome   `json:"outcome"`
	Assigned *domain.Assignment `json:"-"`
}

// RemindResult extends SendResult with the reminder bookkeeping the UI
// renders (how many nudges so far, when the next one becomes allowed).
type RemindResult struct {
	SendResult
	ReminderCount  int        `json:"reminder_count"`
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty"`
}

// Create initializes an assignment in pending and mints a fresh unique link
// token. The question and person must exist and belong to userID.
func (s *AssignmentService) Create(ctx context.Context, userID, questionID, personID string) (*domain.Assignment, error) {
	if _, err := s.Dir.GetQuestion(ctx, s.DB, questionID, userID); err != nil {
		return nil, mapNotFound(err, ErrQuestionNotFound)
	}
	if _, err := s.Dir.GetPerson(ctx, s.DB, personID, userID); err != nil {
		return nil, mapNotFound(err, ErrPersonNotFound)
	}

	a := &domain.Assignment{
		ID:         uuid.NewString(),
		UserID:     userID,
		QuestionID: questionID,
		PersonID:   personID,
		Status:     domain.StatusPending,
		LinkToken:  uuid.NewString(),
		CreatedAt:  s.Now().UTC(),
	}
	if err := s.Repo.CreateAssignment(ctx, s.DB, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Get fetches one assignment owned by userID.
func (s *AssignmentService) Get(ctx context.Context, userID, id string) (*domain.Assignment, error) {
	a, err := s.Repo.GetAssignment(ctx, s.DB, id, userID)
	if err != nil {
		return nil, mapNotFound(err, ErrAssignmentNotFound)
	}
	return a, nil
}

// ListPage returns a page of assignments for a user and the total count.
// It applies defaults for invalid page/pageSize.
func (s *AssignmentService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Assignment, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountAssignments(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Assignment{}, 0, nil
	}

	items, err := s.Repo.ListAssignmentsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// Eligibility evaluates the reminder policy for an assignment right now.
// The result is computed, never cached: it depends on the current time.
func (s *AssignmentService) Eligibility(ctx context.Context, userID, id string) (RemindEligibility, *domain.Assignment, error) {
	a, err := s.Repo.GetAssignment(ctx, s.DB, id, userID)
	if err != nil {
		return RemindEligibility{}, nil, mapNotFound(err, ErrAssignmentNotFound)
	}
	return EvaluateReminder(a, s.Now()), a, nil
}

// Send dispatches the question over the chosen channel and marks the
// assignment sent.
//
// Sending again before the question is answered is permitted: the state
// machine absorbs the repeat markSent as a no-op and the dispatch still goes
// out. Sending an already answered assignment is an ordering violation.
//
// The state machine only advances when at least one delivery target
// succeeded; a total transport failure leaves the assignment untouched so
// the caller can retry on another channel.
func (s *AssignmentService) Send(ctx context.Context, userID, id string, channel dispatch.Channel, customMessage string) (*SendResult, error) {
	if !channel.Valid() {
		return nil, ErrUnknownChannel
	}

	unlock := s.locks.lock(id)
	defer unlock()

	a, err := s.Repo.GetAssignment(ctx, s.DB, id, userID)
	if err != nil {
		return nil, mapNotFound(err, ErrAssignmentNotFound)
	}
	if a.Status == domain.StatusAnswered {
		return nil, &InvalidTransitionError{From: a.Status, Event: "markSent"}
	}

	dest, msg, err := s.prepareDispatch(ctx, a, channel, customMessage, false)
	if err != nil {
		return nil, err
	}

	outcome, err := s.Dispatcher.Dispatch(ctx, channel, dest, msg)
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	a, err = s.commit(ctx, a, s.reloadByID(id, userID), func(cur *domain.Assignment) (bool, error) {
		if cur.Status != domain.StatusPending {
			// Already sent (possibly by a concurrent request); repeat send
			// needs no transition.
			return false, nil
		}
		return s.sm.MarkSent(cur, now)
	})
	if err != nil {
		return nil, err
	}

	sentAt := now
	if a.SentAt != nil {
		sentAt = *a.SentAt
	}
	return &SendResult{
		Message:  msg.Body,
		SentVia:  channel,
		SentAt:   sentAt,
		Link:     msg.Link,
		Outcome:  outcome,
		Assigned: a,
	}, nil
}

// Remind dispatches a repeat nudge for an assignment that was sent but not
// answered. The eligibility evaluator is consulted first; a veto surfaces as
// ReminderNotAllowedError with the reason and remaining cooldown. Only a
// dispatch with at least one successful target increments ReminderCount.
func (s *AssignmentService) Remind(ctx context.Context, userID, id string, channel dispatch.Channel, customMessage string) (*RemindResult, error) {
	if !channel.Valid() {
		return nil, ErrUnknownChannel
	}

	unlock := s.locks.lock(id)
	defer unlock()

	a, err := s.Repo.GetAssignment(ctx, s.DB, id, userID)
	if err != nil {
		return nil, mapNotFound(err, ErrAssignmentNotFound)
	}

	now := s.Now().UTC()
	if elig := EvaluateReminder(a, now); !elig.CanRemind {
		return nil, &ReminderNotAllowedError{
			Reason:            elig.Reason,
			CooldownRemaining: elig.CooldownRemaining,
			NextEligibleAt:    elig.NextEligibleAt,
		}
	}

	dest, msg, err := s.prepareDispatch(ctx, a, channel, customMessage, true)
	if err != nil {
		return nil, err
	}

	outcome, err := s.Dispatcher.Dispatch(ctx, channel, dest, msg)
	if err != nil {
		return nil, err
	}

	a, err = s.commit(ctx, a, s.reloadByID(id, userID), func(cur *domain.Assignment) (bool, error) {
		// A concurrent writer may have answered or reminded in the meantime;
		// the terminal state always wins and the cap still applies.
		if elig := EvaluateReminder(cur, now); !elig.CanRemind {
			return false, &ReminderNotAllowedError{
				Reason:            elig.Reason,
				CooldownRemaining: elig.CooldownRemaining,
				NextEligibleAt:    elig.NextEligibleAt,
			}
		}
		return s.sm.RecordReminder(cur, now)
	})
	if err != nil {
		return nil, err
	}

	var next *time.Time
	if e := EvaluateReminder(a, now); e.NextEligibleAt != nil {
		next = e.NextEligibleAt
	} else if a.ReminderCount < MaxReminders {
		t := now.Add(CooldownFor(a.ReminderCount))
		next = &t
	}

	return &RemindResult{
		SendResult: SendResult{
			Message:  msg.Body,
			SentVia:  channel,
			SentAt:   now,
			Link:     msg.Link,
			Outcome:  outcome,
			Assigned: a,
		},
		ReminderCount:  a.ReminderCount,
		NextEligibleAt: next,
	}, nil
}

// RecordView resolves a public link token and marks the assignment viewed.
// Repeat visits are no-ops; a visit before the question was ever sent is an
// ordering violation. Unknown tokens surface as ErrAssignmentNotFound;
// unauthenticated callers never learn internal identifiers.
func (s *AssignmentService) RecordView(ctx context.Context, token string) (*domain.Assignment, error) {
	a, err := s.Repo.GetAssignmentByToken(ctx, s.DB, token)
	if err != nil {
		return nil, mapNotFound(err, ErrAssignmentNotFound)
	}

	unlock := s.locks.lock(a.ID)
	defer unlock()

	now := s.Now().UTC()
	return s.commit(ctx, a, s.reloadByToken(token), func(cur *domain.Assignment) (bool, error) {
		return s.sm.MarkViewed(cur, now)
	})
}

// RecordAnswer resolves a public link token and marks the assignment
// answered with the submitted recording. Double submissions are no-ops that
// keep the first recording.
func (s *AssignmentService) RecordAnswer(ctx context.Context, token, recordingID string) (*domain.Assignment, error) {
	a, err := s.Repo.GetAssignmentByToken(ctx, s.DB, token)
	if err != nil {
		return nil, mapNotFound(err, ErrAssignmentNotFound)
	}

	unlock := s.locks.lock(a.ID)
	defer unlock()

	now := s.Now().UTC()
	return s.commit(ctx, a, s.reloadByToken(token), func(cur *domain.Assignment) (bool, error) {
		return s.sm.MarkAnswered(cur, now, recordingID)
	})
}

// Delete removes a non-terminal assignment. Answered assignments are a
// retention decision for the surrounding CRUD layer and are rejected here.
func (s *AssignmentService) Delete(ctx context.Context, userID, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()

	a, err := s.Repo.GetAssignment(ctx, s.DB, id, userID)
	if err != nil {
		return mapNotFound(err, ErrAssignmentNotFound)
	}
	if a.Status.Terminal() {
		return ErrAssignmentAnswered
	}
	return s.Repo.DeleteAssignment(ctx, s.DB, id, userID)
}

// PublicLink renders the unauthenticated recording URL for an assignment.
func (s *AssignmentService) PublicLink(a *domain.Assignment) string {
	return s.PublicBaseURL + "/r/" + a.LinkToken
}

// prepareDispatch resolves the destination addresses and composes the
// outgoing message for a send or reminder.
func (s *AssignmentService) prepareDispatch(ctx context.Context, a *domain.Assignment, channel dispatch.Channel, custom string, reminder bool) (dispatch.Destination, dispatch.Message, error) {
	person, err := s.Dir.GetPerson(ctx, s.DB, a.PersonID, a.UserID)
	if err != nil {
		return dispatch.Destination{}, dispatch.Message{}, mapNotFound(err, ErrPersonNotFound)
	}
	question, err := s.Dir.GetQuestion(ctx, s.DB, a.QuestionID, a.UserID)
	if err != nil {
		return dispatch.Destination{}, dispatch.Message{}, mapNotFound(err, ErrQuestionNotFound)
	}

	dest := dispatch.Destination{Phone: person.Phone, Email: person.Email}
	if channel == dispatch.ChannelPush {
		tokens, err := s.Dir.ListPushTokens(ctx, s.DB, person.ID)
		if err != nil {
			return dispatch.Destination{}, dispatch.Message{}, err
		}
		for _, t := range tokens {
			dest.PushTokens = append(dest.PushTokens, t.Token)
		}
	}

	msg := composeMessage(question, person, s.PublicLink(a), custom, reminder)
	return dest, msg, nil
}

// commit applies a transition to the snapshot and saves it under the version
// check. On a conflict it re-reads and re-applies, so a reminder racing an
// answer re-evaluates against the committed terminal state. An apply that
// reports no change skips the save entirely.
func (s *AssignmentService) commit(ctx context.Context, a *domain.Assignment, reload func(context.Context) (*domain.Assignment, error), apply func(*domain.Assignment) (bool, error)) (*domain.Assignment, error) {
	retries := s.TransitionRetries
	if retries < 1 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		changed, err := apply(a)
		if err != nil {
			return nil, err
		}
		if !changed {
			return a, nil
		}
		err = s.Repo.SaveTransition(ctx, s.DB, a)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, repo.ErrVersionConflict) {
			return nil, err
		}
		if a, err = reload(ctx); err != nil {
			return nil, mapNotFound(err, ErrAssignmentNotFound)
		}
	}
	return nil, ErrConcurrentUpdate
}

func (s *AssignmentService) reloadByID(id, userID string) func(context.Context) (*domain.Assignment, error) {
	return func(ctx context.Context) (*domain.Assignment, error) {
		return s.Repo.GetAssignment(ctx, s.DB, id, userID)
	}
}

func (s *AssignmentService) reloadByToken(token string) func(context.Context) (*domain.Assignment, error) {
	return func(ctx context.Context) (*domain.Assignment, error) {
		return s.Repo.GetAssignmentByToken(ctx, s.DB, token)
	}
}

// mapNotFound converts the repo's record-not-found sentinel into the given
// service error and passes everything else through.
func mapNotFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repo.ErrNotFound) {
		return sentinel
	}
	return err
}
