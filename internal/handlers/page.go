package handlers

import (
	"embed"
	"html/template"
	"net/http"

	"certportal/internal/gateway"
	"certportal/internal/portal"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type pageData struct {
	State      portal.ViewState
	ImageSrc   string
	GatewayURL string
}

func (h *Handler) render(w http.ResponseWriter, status int, s portal.ViewState) {
	data := pageData{State: s}
	if s.ShowImage() {
		data.ImageSrc = "/ipfs/" + gateway.EscapePath(s.BlobID)
		data.GatewayURL = h.gateway.ImageURL(s.BlobID)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := pageTmpl.Execute(w, data); err != nil {
		h.log.Errorw("failed to render page", "error", err)
	}
}

// GET /
// ?cert_id= pre-fills the input without verifying. A visitor without a
// session gets the idle page and no cookie.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("cert_id")
	ctrl, ok := h.lookup(r)
	if !ok {
		h.render(w, http.StatusOK, portal.ViewState{CertID: q})
		return
	}
	s := ctrl.Snapshot()
	if q != "" && !s.Loading {
		s = ctrl.SetCertID(q)
	}
	h.render(w, http.StatusOK, s)
}
