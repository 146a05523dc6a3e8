package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"certportal/internal/portal"
)

const (
	minShareHours = 1
	maxShareHours = 168

	msgShareInvalid = "This verification link is invalid or has expired."
)

var errShareDisabled = errors.New("share links are not configured")

type shareClaims struct {
	CertID string `json:"cert_id"`
	jwt.RegisteredClaims
}

type generateShareLinkResp struct {
	ShareableURL string    `json:"shareable_url"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// POST /api/v1/share-link
// body {"cert_id": "...", "expires_in_hours": 24}
func (h *Handler) GenerateShareLink(w http.ResponseWriter, r *http.Request) {
	if len(h.shareSecret) == 0 {
		writeJSONError(w, http.StatusServiceUnavailable, "Unavailable", errShareDisabled.Error())
		return
	}

	// Be liberal in what we accept from the frontend
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Bad_Request", "invalid json")
		return
	}

	certID := ""
	if v, ok := payload["cert_id"].(string); ok {
		certID = v
	} else if v, ok := payload["certId"].(string); ok {
		certID = v
	}
	if certID == "" {
		writeJSONError(w, http.StatusBadRequest, "Bad_Request", "cert_id is required")
		return
	}

	hours := 0
	for _, k := range []string{"expires_in_hours", "expiresInHours", "duration"} {
		if v, ok := payload[k]; ok {
			hours, _ = parseHours(v)
			break
		}
	}
	if hours < minShareHours || hours > maxShareHours {
		writeJSONError(w, http.StatusBadRequest, "Bad_Request",
			fmt.Sprintf("expires_in_hours must be between %d and %d", minShareHours, maxShareHours))
		return
	}

	now := h.now()
	exp := now.Add(time.Duration(hours) * time.Hour)
	signed, err := h.signShareToken(certID, now, exp)
	if err != nil {
		h.log.Errorw("failed to sign share token", "cert_id", certID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Server_Error", "failed to sign share token")
		return
	}

	link := fmt.Sprintf("%s/verify/%s?token=%s", h.baseURL, url.PathEscape(certID), url.QueryEscape(signed))
	writeJSONResp(w, http.StatusOK, generateShareLinkResp{ShareableURL: link, ExpiresAt: exp.UTC()})
}

// GET /verify/{id}?token=...
// Opens the page with the certificate already verified.
func (h *Handler) SharedVerify(w http.ResponseWriter, r *http.Request) {
	certID := pathParam(r, "id")
	if err := h.checkShareToken(r.URL.Query().Get("token"), certID); err != nil {
		h.log.Infow("rejected share link", "cert_id", certID, "error", err)
		http.Error(w, msgShareInvalid, http.StatusUnauthorized)
		return
	}

	ctrl, err := h.ensure(w, r)
	if err != nil {
		h.sessionUnavailable(w, false, err)
		return
	}

	s, err := ctrl.Verify(r.Context(), certID)
	if errors.Is(err, portal.ErrVerificationInFlight) {
		s = ctrl.Snapshot()
	}
	h.render(w, http.StatusOK, s)
}

func (h *Handler) signShareToken(certID string, now, exp time.Time) (string, error) {
	claims := shareClaims{
		CertID: certID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.shareSecret)
}

func (h *Handler) checkShareToken(tokenStr, certID string) error {
	if len(h.shareSecret) == 0 {
		return errShareDisabled
	}
	if tokenStr == "" || certID == "" {
		return errors.New("missing token or id")
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &shareClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return h.shareSecret, nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(h.now))
	if err != nil {
		return err
	}
	claims, ok := parsed.Claims.(*shareClaims)
	if !ok || !parsed.Valid {
		return errors.New("invalid claims")
	}
	if claims.CertID != certID {
		return errors.New("id mismatch")
	}
	return nil
}

// parseHours accepts a JSON number or a numeric string.
func parseHours(x any) (int, bool) {
	switch t := x.(type) {
	case float64:
		return int(t), true
	case json.Number:
		if i, err := strconv.Atoi(t.String()); err == nil {
			return i, true
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return i, true
		}
	}
	return 0, false
}
