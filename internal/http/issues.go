package http

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/citywatch/api/internal/apperr"
	"github.com/citywatch/api/internal/issue"
	"github.com/citywatch/api/internal/service"
)

// parseFilter reads list filters from the query string. Multi-valued
// filters accept repeated keys or comma separated values.
func parseFilter(r *http.Request) (issue.Filter, error) {
	q := r.URL.Query()
	var f issue.Filter
	var err error

	if f.CityID, err = queryUUID(q.Get("cityId"), "cityId"); err != nil {
		return f, err
	}
	if f.WardID, err = queryUUID(q.Get("wardId"), "wardId"); err != nil {
		return f, err
	}
	if f.CategoryID, err = queryUUID(q.Get("categoryId"), "categoryId"); err != nil {
		return f, err
	}

	for _, raw := range splitValues(q["status"]) {
		s, ok := issue.ParseStatus(raw)
		if !ok {
			return f, apperr.BadRequest("unknown status " + raw)
		}
		f.Statuses = append(f.Statuses, s)
	}
	for _, raw := range splitValues(q["severity"]) {
		s, ok := issue.ParseSeverity(raw)
		if !ok {
			return f, apperr.BadRequest("unknown severity " + raw)
		}
		f.Severities = append(f.Severities, s)
	}

	f.SortBy = q.Get("sortBy")
	switch strings.ToLower(q.Get("sortOrder")) {
	case "", "desc":
		f.SortDesc = true
	case "asc":
	default:
		return f, apperr.BadRequest("sortOrder must be asc or desc")
	}

	if f.Page, err = queryInt(r, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	return f, nil
}

func queryUUID(raw, name string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.BadRequest("invalid " + name)
	}
	return &id, nil
}

func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (h *Handler) ListIssues(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	page, err := h.svc.Issues.List(r.Context(), f, service.PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WritePage(w, page)
}

func (h *Handler) MyIssues(w http.ResponseWriter, r *http.Request) {
	pageNum, err := queryInt(r, "page")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	page, err := h.svc.Issues.Mine(r.Context(), service.PrincipalFrom(r.Context()), pageNum, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WritePage(w, page)
}

func (h *Handler) CreateIssue(w http.ResponseWriter, r *http.Request) {
	var in issue.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	created, err := h.svc.Issues.Create(r.Context(), service.PrincipalFrom(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteMessage(w, http.StatusCreated, "Issue reported successfully", created)
}

func (h *Handler) GetIssue(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	detail, err := h.svc.Issues.Get(r.Context(), id, service.PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) IssueTimeline(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	updates, err := h.svc.Issues.Timeline(r.Context(), id, service.PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, updates)
}

func (h *Handler) UpdateIssue(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var in issue.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	updated, err := h.svc.Issues.Update(r.Context(), id, service.PrincipalFrom(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteMessage(w, http.StatusOK, "Issue updated", updated)
}

func (h *Handler) DeleteIssue(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.svc.Issues.Delete(r.Context(), id, service.PrincipalFrom(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteMessage(w, http.StatusOK, "Issue deleted", nil)
}

func (h *Handler) AttachEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var in struct {
		Evidence []issue.EvidenceRef `json:"evidence"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	added, err := h.svc.Issues.AttachEvidence(r.Context(), id, service.PrincipalFrom(r.Context()), in.Evidence)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteMessage(w, http.StatusCreated, "Evidence attached", added)
}

func (h *Handler) Upvote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	count, err := h.svc.Issues.Upvote(r.Context(), id, service.PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteMessage(w, http.StatusOK, "Upvoted", map[string]any{"upvoteCount": count, "hasUpvoted": true})
}

func (h *Handler) RemoveUpvote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	count, err := h.svc.Issues.RemoveUpvote(r.Context(), id, service.PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteMessage(w, http.StatusOK, "Upvote removed", map[string]any{"upvoteCount": count, "hasUpvoted": false})
}
