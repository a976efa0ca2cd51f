package http

import (
	"net/http"

	"github.com/citywatch/api/internal/service"
)

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	user, err := h.svc.Auth.Register(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteMessage(w, http.StatusCreated, "Registration successful", map[string]any{"user": user})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := h.svc.Auth.Login(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteMessage(w, http.StatusOK, "Login successful", result)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Auth.Me(r.Context(), service.PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Auth.Logout(r.Context(), service.PrincipalFrom(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteMessage(w, http.StatusOK, "Logged out", nil)
}
