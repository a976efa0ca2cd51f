package http

import (
	"context"
	"net/http"

	"github.com/citywatch/api/internal/otp"
)

func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	h.sendOTP(w, r, h.svc.OTP.Send)
}

func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	h.sendOTP(w, r, h.svc.OTP.Resend)
}

func (h *Handler) sendOTP(w http.ResponseWriter, r *http.Request, send func(ctx context.Context, in otp.SendInput) (otp.SendResult, error)) {
	var in otp.SendInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	res, err := send(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteMessage(w, http.StatusOK, res.Message, res)
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var in otp.VerifyInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.svc.OTP.Verify(r.Context(), in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteMessage(w, http.StatusOK, "Phone number verified", map[string]bool{"verified": true})
}
