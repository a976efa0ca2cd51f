package http

import "net/http"

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Taxonomy.Categories(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) ListCities(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Taxonomy.Cities(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) ListWards(w http.ResponseWriter, r *http.Request) {
	cityID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	items, err := h.svc.Taxonomy.Wards(r.Context(), cityID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	cityID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	items, err := h.svc.Taxonomy.Departments(r.Context(), cityID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, items)
}
