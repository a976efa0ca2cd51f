package http

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/citywatch/api/internal/issue"
	"github.com/citywatch/api/internal/service"
)

func (h *Handler) MarkActionTaken(w http.ResponseWriter, r *http.Request) {
	transitionHandler("Action recorded", func(r *http.Request, id uuid.UUID, p service.Principal, in issue.RespondInput) (issue.Issue, error) {
		return h.svc.Issues.MarkActionTaken(r.Context(), id, p, in)
	})(w, r)
}

func (h *Handler) ResolveIssue(w http.ResponseWriter, r *http.Request) {
	transitionHandler("Issue resolved", func(r *http.Request, id uuid.UUID, p service.Principal, in issue.RespondInput) (issue.Issue, error) {
		return h.svc.Issues.Resolve(r.Context(), id, p, in)
	})(w, r)
}

func (h *Handler) CloseIssue(w http.ResponseWriter, r *http.Request) {
	transitionHandler("Issue closed", func(r *http.Request, id uuid.UUID, p service.Principal, in issue.RespondInput) (issue.Issue, error) {
		return h.svc.Issues.Close(r.Context(), id, p, in)
	})(w, r)
}
