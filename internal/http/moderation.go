package http

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/citywatch/api/internal/apperr"
	"github.com/citywatch/api/internal/issue"
	"github.com/citywatch/api/internal/service"
)

func (h *Handler) ModerationQueue(w http.ResponseWriter, r *http.Request) {
	var statuses []issue.Status
	for _, raw := range splitValues(r.URL.Query()["status"]) {
		s, ok := issue.ParseStatus(raw)
		if !ok {
			writeServiceError(w, r, apperr.BadRequest("unknown status "+raw))
			return
		}
		statuses = append(statuses, s)
	}

	items, err := h.svc.Moderation.Queue(r.Context(), service.PrincipalFrom(r.Context()), statuses)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []issue.Issue{}
	}
	WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) ModerationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Moderation.QueueStats(r.Context(), service.PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// transitionHandler decodes an optional body into In and applies one issue transition.
func transitionHandler[In any](message string, apply func(r *http.Request, id uuid.UUID, p service.Principal, in In) (issue.Issue, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		var in In
		if err := decodeOptionalJSON(r, &in); err != nil {
			writeServiceError(w, r, err)
			return
		}

		updated, err := apply(r, id, service.PrincipalFrom(r.Context()), in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		WriteMessage(w, http.StatusOK, message, updated)
	}
}

func (h *Handler) StartReview(w http.ResponseWriter, r *http.Request) {
	transitionHandler("Issue under review", func(r *http.Request, id uuid.UUID, p service.Principal, _ struct{}) (issue.Issue, error) {
		return h.svc.Issues.StartReview(r.Context(), id, p)
	})(w, r)
}

func (h *Handler) VerifyIssue(w http.ResponseWriter, r *http.Request) {
	transitionHandler("Issue verified", func(r *http.Request, id uuid.UUID, p service.Principal, in issue.VerifyInput) (issue.Issue, error) {
		return h.svc.Issues.Verify(r.Context(), id, p, in)
	})(w, r)
}

func (h *Handler) RejectIssue(w http.ResponseWriter, r *http.Request) {
	transitionHandler("Issue rejected", func(r *http.Request, id uuid.UUID, p service.Principal, in issue.RejectInput) (issue.Issue, error) {
		return h.svc.Issues.Reject(r.Context(), id, p, in)
	})(w, r)
}

func (h *Handler) EscalateIssue(w http.ResponseWriter, r *http.Request) {
	transitionHandler("Issue escalated", func(r *http.Request, id uuid.UUID, p service.Principal, in issue.EscalateInput) (issue.Issue, error) {
		return h.svc.Issues.Escalate(r.Context(), id, p, in)
	})(w, r)
}
