package http

import (
	"net/http"

	"github.com/citywatch/api/internal/admin"
	"github.com/citywatch/api/internal/service"
)

func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Admin.Stats(r.Context(), service.PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) AdminActivity(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Admin.Activity(r.Context(), service.PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) AdminTrends(w http.ResponseWriter, r *http.Request) {
	points, err := h.svc.Admin.Trends(r.Context(), service.PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, points)
}

func (h *Handler) AdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Admin.Users(r.Context(), service.PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, users)
}

func (h *Handler) AdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var in admin.UpdateUserInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	user, err := h.svc.Admin.UpdateUser(r.Context(), service.PrincipalFrom(r.Context()), id, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteMessage(w, http.StatusOK, "User updated", user)
}
