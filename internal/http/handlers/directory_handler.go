// People and question directory handlers.
//
// The engine treats people and questions as external collaborators it only
// reads; these endpoints are the minimal authoring surface needed to make
// the service usable end to end (create a person, register their devices,
// write a question).
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CreatePersonRequest is the JSON payload for creating a person.
type CreatePersonRequest struct {
	Name  string `json:"name" binding:"required,min=1,max=255"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// AddPushTokenRequest is the JSON payload for registering a device.
type AddPushTokenRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform" binding:"required,oneof=ios android"`
}

// CreateQuestionRequest is the JSON payload for creating a question.
type CreateQuestionRequest struct {
	Text string `json:"text" binding:"required,min=1"`
}

// CreatePerson handles POST /people.
func (h *Handlers) CreatePerson(c *gin.Context) {
	var req CreatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name is required")
		return
	}
	p, err := h.dir.CreatePerson(c.Request.Context(), userID(c),
		strings.TrimSpace(req.Name), strings.TrimSpace(req.Phone), strings.TrimSpace(req.Email))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not create person")
		return
	}
	ok(c, http.StatusCreated, p)
}

// AddPushToken handles POST /people/:id/push-tokens.
func (h *Handlers) AddPushToken(c *gin.Context) {
	var req AddPushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "token and platform (ios|android) are required")
		return
	}
	t, err := h.dir.AddPushToken(c.Request.Context(), userID(c), c.Param("id"), req.Token, req.Platform)
	if err != nil {
		if failDomain(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not register device")
		return
	}
	ok(c, http.StatusCreated, t)
}

// CreateQuestion handles POST /questions.
func (h *Handlers) CreateQuestion(c *gin.Context) {
	var req CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text is required")
		return
	}
	q, err := h.dir.CreateQuestion(c.Request.Context(), userID(c), strings.TrimSpace(req.Text))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not create question")
		return
	}
	ok(c, http.StatusCreated, q)
}
