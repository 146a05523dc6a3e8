package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"certportal/internal/portal"
)

// POST /verify
// form field cert_id; redirects back to the page once the cycle settles.
func (h *Handler) VerifyForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	certID := r.PostFormValue("cert_id")
	if certID == "" {
		if ctrl, ok := h.lookup(r); ok {
			ctrl.SetCertID("")
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	ctrl, err := h.ensure(w, r)
	if err != nil {
		h.sessionUnavailable(w, false, err)
		return
	}
	if _, err := ctrl.Verify(r.Context(), certID); errors.Is(err, portal.ErrVerificationInFlight) {
		h.log.Debugw("verify rejected, already in flight", "cert_id", certID)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// POST /image-error
func (h *Handler) ImageErrorForm(w http.ResponseWriter, r *http.Request) {
	if ctrl, ok := h.lookup(r); ok {
		ctrl.ImageLoadFailed()
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// POST /api/v1/verify
// body {"cert_id": "..."}, "certId" is accepted too.
func (h *Handler) VerifyAPI(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Bad_Request", "invalid json")
		return
	}
	certID, _ := payload["cert_id"].(string)
	if certID == "" {
		certID, _ = payload["certId"].(string)
	}
	if certID == "" {
		writeJSONError(w, http.StatusBadRequest, "Bad_Request", "cert_id is required")
		return
	}

	ctrl, err := h.ensure(w, r)
	if err != nil {
		h.sessionUnavailable(w, true, err)
		return
	}
	s, err := ctrl.Verify(r.Context(), certID)
	switch {
	case err == nil:
		writeJSONResp(w, http.StatusOK, h.stateJSON(s))
	case errors.Is(err, portal.ErrVerificationInFlight):
		writeJSONResp(w, http.StatusConflict, h.stateJSON(s))
	default:
		writeJSONResp(w, http.StatusBadGateway, h.stateJSON(s))
	}
}

// GET /api/v1/state
func (h *Handler) StateAPI(w http.ResponseWriter, r *http.Request) {
	writeJSONResp(w, http.StatusOK, h.stateJSON(h.snapshot(r)))
}

// POST /api/v1/image-error
func (h *Handler) ImageErrorAPI(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(r)
	if !ok {
		// nothing was rendered, so there is no image to have failed
		writeJSONResp(w, http.StatusOK, h.stateJSON(portal.ViewState{}))
		return
	}
	writeJSONResp(w, http.StatusOK, h.stateJSON(ctrl.ImageLoadFailed()))
}
