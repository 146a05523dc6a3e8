package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"certportal/internal/gateway"
)

// GET /ipfs/*
// Streams the blob from the public gateway. The wildcard keeps path-style
// ids such as <cid>/cert.png in one piece.
func (h *Handler) CertificateImage(w http.ResponseWriter, r *http.Request) {
	blobID := pathParam(r, "*")
	img, err := h.gateway.Fetch(r.Context(), blobID)
	if errors.Is(err, gateway.ErrEmptyBlobID) {
		http.Error(w, "missing blob id", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Warnw("certificate image fetch failed", "blob_id", blobID, "error", err)
		http.Error(w, "Failed to load certificate image.", http.StatusBadGateway)
		return
	}
	defer img.Close()

	w.Header().Set("Content-Type", img.ContentType)
	if img.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(img.ContentLength, 10))
	}
	// content-addressed, so the bytes behind a blob id never change
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, img.Body); err != nil {
		h.log.Debugw("certificate image copy aborted", "blob_id", blobID, "error", err)
	}
}
