// Public recording-page handlers.
//
// These endpoints are unauthenticated and keyed exclusively by the
// assignment's unique link token; raw assignment ids are never accepted
// here. Unknown or revoked tokens surface as 404 so the public surface
// leaks nothing about what exists.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PublicAssignmentResponse is what the recording page needs to render:
// the question text is fetched separately by the page; the engine exposes
// only lifecycle facts.
type PublicAssignmentResponse struct {
	Status     string `json:"status"`
	QuestionID string `json:"question_id"`
	Answered   bool   `json:"answered"`
}

// AnswerRequest is the JSON payload for submitting an answer.
type AnswerRequest struct {
	RecordingID string `json:"recording_id" binding:"required"`
}

// ViewAssignment handles GET /r/:token. Loading the page marks the
// assignment viewed; reloads are harmless no-ops.
func (h *Handlers) ViewAssignment(c *gin.Context) {
	a, err := h.svc.RecordView(c.Request.Context(), c.Param("token"))
	if err != nil {
		if !failDomain(c, err) {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load recording page")
		}
		return
	}
	ok(c, http.StatusOK, PublicAssignmentResponse{
		Status:     string(a.Status),
		QuestionID: a.QuestionID,
		Answered:   a.Status.Terminal(),
	})
}

// AnswerAssignment handles POST /r/:token/answer. A double submission is
// absorbed; the first recording wins.
func (h *Handlers) AnswerAssignment(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "recording_id is required")
		return
	}
	a, err := h.svc.RecordAnswer(c.Request.Context(), c.Param("token"), req.RecordingID)
	if err != nil {
		if !failDomain(c, err) {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not record answer")
		}
		return
	}
	ok(c, http.StatusOK, PublicAssignmentResponse{
		Status:     string(a.Status),
		QuestionID: a.QuestionID,
		Answered:   a.Status.Terminal(),
	})
}
