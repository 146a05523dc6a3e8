package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"certportal/internal/gateway"
	"certportal/internal/portal"
)

const (
	sessionCookie   = "certportal_session"
	msgSessionsFull = "Too many active sessions, please try again later."
)

// Handler serves the verification page and its JSON API.
type Handler struct {
	sessions    *portal.Sessions
	gateway     *gateway.Gateway
	log         *zap.SugaredLogger
	baseURL     string
	shareSecret []byte
	now         func() time.Time
}

type Config struct {
	Sessions    *portal.Sessions
	Gateway     *gateway.Gateway
	Logger      *zap.SugaredLogger
	BaseURL     string
	ShareSecret []byte
}

func New(cfg Config) *Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{
		sessions:    cfg.Sessions,
		gateway:     cfg.Gateway,
		log:         log,
		baseURL:     trimRightSlash(cfg.BaseURL),
		shareSecret: cfg.ShareSecret,
		now:         time.Now,
	}
}

func sessionID(r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// lookup returns the caller's controller without creating one. Requests that
// only read state never allocate a session.
func (h *Handler) lookup(r *http.Request) (*portal.Controller, bool) {
	id := sessionID(r)
	if id == "" {
		return nil, false
	}
	return h.sessions.Lookup(id)
}

// ensure returns the caller's controller, creating a session and issuing its
// cookie when there is none yet.
func (h *Handler) ensure(w http.ResponseWriter, r *http.Request) (*portal.Controller, error) {
	id := sessionID(r)
	ctrl, got, err := h.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if got != id {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    got,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   r.TLS != nil,
		})
	}
	return ctrl, nil
}

// snapshot is the caller's current state, or the idle state without a session.
func (h *Handler) snapshot(r *http.Request) portal.ViewState {
	if ctrl, ok := h.lookup(r); ok {
		return ctrl.Snapshot()
	}
	return portal.ViewState{}
}

// sessionUnavailable answers 503 when no session could be opened.
func (h *Handler) sessionUnavailable(w http.ResponseWriter, asJSON bool, err error) {
	h.log.Warnw("cannot open session", "error", err)
	w.Header().Set("Retry-After", "60")
	if asJSON {
		writeJSONError(w, http.StatusServiceUnavailable, "Unavailable", msgSessionsFull)
		return
	}
	http.Error(w, msgSessionsFull, http.StatusServiceUnavailable)
}

// pathParam is chi.URLParam decoded. chi matches on RawPath when the request
// path carries escapes such as %2F, so the value is still encoded then.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v
	}
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

// stateResponse is the JSON shape of a ViewState plus its render flags.
type stateResponse struct {
	portal.ViewState
	Status      string `json:"status"`
	ShowStudent bool   `json:"showStudent"`
	ShowImage   bool   `json:"showImage"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

func (h *Handler) stateJSON(s portal.ViewState) stateResponse {
	resp := stateResponse{
		ViewState:   s,
		Status:      s.Phase.String(),
		ShowStudent: s.ShowStudent(),
		ShowImage:   s.ShowImage(),
	}
	if resp.ShowImage {
		resp.ImageURL = h.gateway.ImageURL(s.BlobID)
	}
	return resp
}

func writeJSONResp(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	writeJSONResp(w, status, map[string]any{"status": code, "message": msg})
}

func trimRightSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func Health(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("ok\n"))
}
