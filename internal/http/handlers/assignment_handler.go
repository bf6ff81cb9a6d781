// Assignment HTTP handlers.
//
// This file exposes REST endpoints for assignment resources:
//   - POST   /assignments                 (create)
//   - GET    /assignments                 (list, paginated)
//   - GET    /assignments/{id}            (detail)
//   - GET    /assignments/{id}/eligibility
//   - POST   /assignments/{id}/send       (initial dispatch)
//   - POST   /assignments/{id}/remind     (reminder dispatch)
//   - DELETE /assignments/{id}
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. The reminder veto in particular
// is rendered with enough structure (reason code, remaining cooldown, next
// eligible time) for the UI to show "try again in 2h 14m".
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/askecho/ask-backend/internal/dispatch"
	"github.com/askecho/ask-backend/internal/domain"
	"github.com/askecho/ask-backend/internal/services"
	"github.com/askecho/ask-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// AssignmentService defines the lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type AssignmentService interface {
	// Create initializes an assignment in pending with a fresh link token.
	Create(ctx context.Context, userID, questionID, personID string) (*domain.Assignment, error)
	// Get returns one assignment owned by userID.
	Get(ctx context.Context, userID, id string) (*domain.Assignment, error)
	// ListPage returns a page of assignments for a user and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Assignment, int64, error)
	// Eligibility evaluates the reminder policy right now.
	Eligibility(ctx context.Context, userID, id string) (services.RemindEligibility, *domain.Assignment, error)
	// Send dispatches the question and marks the assignment sent.
	Send(ctx context.Context, userID, id string, channel dispatch.Channel, customMessage string) (*services.SendResult, error)
	// Remind dispatches a nudge if the eligibility evaluator allows it.
	Remind(ctx context.Context, userID, id string, channel dispatch.Channel, customMessage string) (*services.RemindResult, error)
	// Delete removes a non-terminal assignment.
	Delete(ctx context.Context, userID, id string) error
	// PublicLink renders the unauthenticated recording URL.
	PublicLink(a *domain.Assignment) string
	// RecordView marks the assignment behind a link token viewed.
	RecordView(ctx context.Context, token string) (*domain.Assignment, error)
	// RecordAnswer marks the assignment behind a link token answered.
	RecordAnswer(ctx context.Context, token, recordingID string) (*domain.Assignment, error)
}

// DirectoryService defines the person/question CRUD consumed by HTTP
// handlers.
type DirectoryService interface {
	CreatePerson(ctx context.Context, userID, name, phone, email string) (*domain.Person, error)
	AddPushToken(ctx context.Context, userID, personID, token, platform string) (*domain.PushToken, error)
	CreateQuestion(ctx context.Context, userID, text string) (*domain.Question, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for assignments, the public recording page,
// and the people/questions directory. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	svc AssignmentService
	dir DirectoryService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(svc AssignmentService, dir DirectoryService) *Handlers {
	return &Handlers{svc: svc, dir: dir}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// CreateAssignmentRequest is the JSON payload for creating an assignment.
type CreateAssignmentRequest struct {
	QuestionID string `json:"question_id" binding:"required"`
	PersonID   string `json:"person_id"   binding:"required"`
}

// DispatchRequest is the JSON payload for send and remind.
type DispatchRequest struct {
	// Channel is one of sms, email, push, or share.
	Channel string `json:"channel" binding:"required"`
	// Message optionally replaces the default message body.
	Message string `json:"message"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// AssignmentView is the display shape of one assignment: the persisted
// fields plus the public link and, when a reminder is currently vetoed by a
// cooldown, the human-readable remaining wait.
type AssignmentView struct {
	domain.Assignment
	Link           string `json:"link"`
	CanRemind      bool   `json:"can_remind"`
	RemindReason   string `json:"remind_reason,omitempty"`
	CooldownString string `json:"cooldown_remaining,omitempty"`
}

// ListAssignmentsResponse wraps a page of assignments and pagination
// information.
type ListAssignmentsResponse struct {
	Assignments []AssignmentView `json:"assignments"`
	Pagination  Pagination       `json:"pagination"`
}

// EligibilityResponse is the computed reminder permission for one
// assignment.
type EligibilityResponse struct {
	CanRemind         bool       `json:"can_remind"`
	Reason            string     `json:"reason,omitempty"`
	CooldownRemaining string     `json:"cooldown_remaining,omitempty"`
	NextEligibleAt    *time.Time `json:"next_eligible_at,omitempty"`
}

// ReminderVetoResponse is the 409 body for a disallowed reminder. It extends
// the standard error envelope with the evaluator's structured verdict.
type ReminderVetoResponse struct {
	ErrorResponse
	Reason            string     `json:"reason"`
	CooldownRemaining string     `json:"cooldown_remaining,omitempty"`
	NextEligibleAt    *time.Time `json:"next_eligible_at,omitempty"`
}

// SendResponse is the success body for send.
type SendResponse struct {
	Message string           `json:"message"`
	SentVia string           `json:"sent_via"`
	SentAt  time.Time        `json:"sent_at"`
	Link    string           `json:"link"`
	Outcome dispatch.Outcome `json:"outcome"`
}

// RemindResponse is the success body for remind.
type RemindResponse struct {
	SendResponse
	ReminderCount  int        `json:"reminder_count"`
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// assignmentView decorates an assignment with its link and the current
// reminder verdict.
func (h *Handlers) assignmentView(a *domain.Assignment, elig services.RemindEligibility) AssignmentView {
	v := AssignmentView{
		Assignment: *a,
		Link:       h.svc.PublicLink(a),
		CanRemind:  elig.CanRemind,
	}
	if !elig.CanRemind {
		v.RemindReason = string(elig.Reason)
		if elig.CooldownRemaining > 0 {
			v.CooldownString = services.FormatCooldown(elig.CooldownRemaining)
		}
	}
	return v
}

// failDomain maps service errors to HTTP responses shared by several
// endpoints. Returns false when err was not recognized (caller falls through
// to a 500).
func failDomain(c *gin.Context, err error) bool {
	var inv *services.InvalidTransitionError
	var veto *services.ReminderNotAllowedError
	switch {
	case errors.Is(err, services.ErrAssignmentNotFound),
		errors.Is(err, services.ErrPersonNotFound),
		errors.Is(err, services.ErrQuestionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrUnknownChannel),
		errors.Is(err, dispatch.ErrUnknownChannel),
		errors.Is(err, dispatch.ErrNoDestination):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrAllTargetsFailed):
		fail(c, http.StatusBadGateway, ErrCodeDispatchFailed, "delivery failed on every target; try another channel")
	case errors.Is(err, services.ErrAssignmentAnswered):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrConcurrentUpdate):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.As(err, &inv):
		fail(c, http.StatusConflict, ErrCodeInvalidTransition, inv.Error())
	case errors.As(err, &veto):
		resp := ReminderVetoResponse{
			ErrorResponse: ErrorResponse{
				RequestID: c.Writer.Header().Get("X-Request-ID"),
				Code:      ErrCodeReminderNotAllowed,
				Message:   veto.Error(),
			},
			Reason:         string(veto.Reason),
			NextEligibleAt: veto.NextEligibleAt,
		}
		if veto.CooldownRemaining > 0 {
			resp.CooldownRemaining = services.FormatCooldown(veto.CooldownRemaining)
		}
		c.AbortWithStatusJSON(http.StatusConflict, resp)
	default:
		return false
	}
	return true
}

//
// Endpoints
//

// CreateAssignment handles POST /assignments.
func (h *Handlers) CreateAssignment(c *gin.Context) {
	var req CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question_id and person_id are required")
		return
	}
	a, err := h.svc.Create(c.Request.Context(), userID(c), req.QuestionID, req.PersonID)
	if err != nil {
		if !failDomain(c, err) {
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not create assignment")
		}
		return
	}
	ok(c, http.StatusCreated, h.assignmentView(a, services.RemindEligibility{Reason: services.ReasonNotYetSent}))
}

// ListAssignments handles GET /assignments with pagination.
func (h *Handlers) ListAssignments(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.svc.ListPage(c.Request.Context(), userID(c), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list assignments")
		return
	}

	now := time.Now()
	views := make([]AssignmentView, 0, len(items))
	for i := range items {
		views = append(views, h.assignmentView(&items[i], services.EvaluateReminder(&items[i], now)))
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListAssignmentsResponse{
		Assignments: views,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetAssignment handles GET /assignments/:id.
func (h *Handlers) GetAssignment(c *gin.Context) {
	elig, a, err := h.svc.Eligibility(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		if !failDomain(c, err) {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load assignment")
		}
		return
	}
	ok(c, http.StatusOK, h.assignmentView(a, elig))
}

// GetEligibility handles GET /assignments/:id/eligibility.
func (h *Handlers) GetEligibility(c *gin.Context) {
	elig, _, err := h.svc.Eligibility(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		if !failDomain(c, err) {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not evaluate eligibility")
		}
		return
	}
	resp := EligibilityResponse{
		CanRemind:      elig.CanRemind,
		NextEligibleAt: elig.NextEligibleAt,
	}
	if !elig.CanRemind {
		resp.Reason = string(elig.Reason)
		if elig.CooldownRemaining > 0 {
			resp.CooldownRemaining = services.FormatCooldown(elig.CooldownRemaining)
		}
	}
	ok(c, http.StatusOK, resp)
}

// SendAssignment handles POST /assignments/:id/send.
func (h *Handlers) SendAssignment(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "channel is required")
		return
	}
	res, err := h.svc.Send(c.Request.Context(), userID(c), c.Param("id"), dispatch.Channel(req.Channel), req.Message)
	if err != nil {
		if !failDomain(c, err) {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "send failed")
		}
		return
	}
	ok(c, http.StatusOK, SendResponse{
		Message: res.Message,
		SentVia: string(res.SentVia),
		SentAt:  res.SentAt,
		Link:    res.Link,
		Outcome: res.Outcome,
	})
}

// RemindAssignment handles POST /assignments/:id/remind.
func (h *Handlers) RemindAssignment(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "channel is required")
		return
	}
	res, err := h.svc.Remind(c.Request.Context(), userID(c), c.Param("id"), dispatch.Channel(req.Channel), req.Message)
	if err != nil {
		if !failDomain(c, err) {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "remind failed")
		}
		return
	}
	ok(c, http.StatusOK, RemindResponse{
		SendResponse: SendResponse{
			Message: res.Message,
			SentVia: string(res.SentVia),
			SentAt:  res.SentAt,
			Link:    res.Link,
			Outcome: res.Outcome,
		},
		ReminderCount:  res.ReminderCount,
		NextEligibleAt: res.NextEligibleAt,
	})
}

// DeleteAssignment handles DELETE /assignments/:id.
func (h *Handlers) DeleteAssignment(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		if !failDomain(c, err) {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "delete failed")
		}
		return
	}
	noContent(c)
}
