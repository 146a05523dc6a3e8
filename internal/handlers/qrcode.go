package handlers

import (
	"net/http"
	"net/url"

	"github.com/skip2/go-qrcode"
)

// GET /certificate/{id}/qrcode
// PNG pointing at the page pre-filled with the certificate id.
func (h *Handler) CertificateQRCode(w http.ResponseWriter, r *http.Request) {
	certID := pathParam(r, "id")
	if certID == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	png, err := qrcode.Encode(h.pageURL(certID), qrcode.Medium, 256)
	if err != nil {
		http.Error(w, "Failed to generate QR code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) pageURL(certID string) string {
	return h.baseURL + "/?cert_id=" + url.QueryEscape(certID)
}
