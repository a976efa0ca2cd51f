package http

import (
	"errors"
	"net/http"

	"github.com/citywatch/api/internal/apperr"
)

// multipartOverhead covers form boundaries and headers around the file part.
const multipartOverhead = 1 << 20

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxFileSize+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			WriteError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the upload limit")
			return
		}
		writeServiceError(w, r, apperr.BadRequest("file is required"))
		return
	}
	defer file.Close()

	res, err := h.svc.Evidence.Upload(r.Context(), header.Filename, file)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteMessage(w, http.StatusCreated, "File uploaded", res)
}
