package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/askecho/ask-backend/internal/domain"
	"github.com/askecho/ask-backend/internal/services"
)

func TestViewAssignment_MarksViewed(t *testing.T) {
	var gotToken string
	svc := stubAssignSvc{recordView: func(ctx context.Context, token string) (*domain.Assignment, error) {
		gotToken = token
		return &domain.Assignment{ID: "a1", QuestionID: "q1", Status: domain.StatusViewed, LinkToken: token}, nil
	}}
	r := newTestRouter(svc, stubDirSvc{})

	w := doJSON(t, r, http.MethodGet, "/r/tok-abc", "")
	if w.Code != http.StatusOK {
		t.Fatalf("view -> %d body=%s", w.Code, w.Body.String())
	}
	if gotToken != "tok-abc" {
		t.Fatalf("token = %q", gotToken)
	}
	var out PublicAssignmentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Status != "viewed" || out.QuestionID != "q1" || out.Answered {
		t.Fatalf("response: %#v", out)
	}
}

func TestViewAssignment_UnknownTokenIs404(t *testing.T) {
	svc := stubAssignSvc{recordView: func(ctx context.Context, token string) (*domain.Assignment, error) {
		return nil, services.ErrAssignmentNotFound
	}}
	r := newTestRouter(svc, stubDirSvc{})

	w := doJSON(t, r, http.MethodGet, "/r/forged", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown token -> %d", w.Code)
	}
	var body ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Code != ErrCodeNotFound {
		t.Fatalf("code = %q", body.Code)
	}
}

func TestViewAssignment_BeforeSendIsConflict(t *testing.T) {
	svc := stubAssignSvc{recordView: func(ctx context.Context, token string) (*domain.Assignment, error) {
		return nil, &services.InvalidTransitionError{From: domain.StatusPending, Event: "markViewed"}
	}}
	r := newTestRouter(svc, stubDirSvc{})

	w := doJSON(t, r, http.MethodGet, "/r/tok-early", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("early view -> %d", w.Code)
	}
	var body ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Code != ErrCodeInvalidTransition {
		t.Fatalf("code = %q", body.Code)
	}
}

func TestAnswerAssignment_SuccessAndBadJSON(t *testing.T) {
	// Success -> 200 answered
	{
		var gotToken, gotRec string
		svc := stubAssignSvc{recordAnswer: func(ctx context.Context, token, recID string) (*domain.Assignment, error) {
			gotToken, gotRec = token, recID
			return &domain.Assignment{ID: "a1", QuestionID: "q1", Status: domain.StatusAnswered, RecordingID: &recID}, nil
		}}
		r := newTestRouter(svc, stubDirSvc{})

		w := doJSON(t, r, http.MethodPost, "/r/tok-abc/answer", `{"recording_id":"rec-7"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("answer -> %d body=%s", w.Code, w.Body.String())
		}
		if gotToken != "tok-abc" || gotRec != "rec-7" {
			t.Fatalf("args: %q %q", gotToken, gotRec)
		}
		var out PublicAssignmentResponse
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("json: %v", err)
		}
		if out.Status != "answered" || !out.Answered {
			t.Fatalf("response: %#v", out)
		}
	}

	// Missing recording_id -> 400
	{
		r := newTestRouter(stubAssignSvc{}, stubDirSvc{})
		w := doJSON(t, r, http.MethodPost, "/r/tok-abc/answer", `{}`)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("missing recording_id -> %d", w.Code)
		}
	}
}

// A repeat submission is absorbed downstream; the handler just renders the
// state it gets back, first recording intact.
func TestAnswerAssignment_RepeatKeepsFirstRecording(t *testing.T) {
	first := "rec-1"
	svc := stubAssignSvc{recordAnswer: func(ctx context.Context, token, recID string) (*domain.Assignment, error) {
		return &domain.Assignment{ID: "a1", QuestionID: "q1", Status: domain.StatusAnswered, RecordingID: &first}, nil
	}}
	r := newTestRouter(svc, stubDirSvc{})

	w := doJSON(t, r, http.MethodPost, "/r/tok-abc/answer", `{"recording_id":"rec-2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("repeat answer -> %d", w.Code)
	}
	var out PublicAssignmentResponse
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Status != "answered" || !out.Answered {
		t.Fatalf("response: %#v", out)
	}
}
