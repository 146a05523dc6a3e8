package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"certportal/internal/handlers"
	"certportal/internal/middleware"
)

func RegisterRouter(h *handlers.Handler, log *zap.SugaredLogger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(allowedOrigins))

	r.Get("/healthz", handlers.Health)

	// page
	r.Get("/", h.Page)
	r.Post("/verify", h.VerifyForm)
	r.Post("/image-error", h.ImageErrorForm)
	r.Get("/verify/{id}", h.SharedVerify)

	// certificate assets
	r.Get("/ipfs/*", h.CertificateImage)
	r.Get("/certificate/{id}/qrcode", h.CertificateQRCode)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/verify", h.VerifyAPI)
		r.Get("/state", h.StateAPI)
		r.Post("/image-error", h.ImageErrorAPI)
		r.Post("/share-link", h.GenerateShareLink)
	})
	return r
}
