package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/smallwat3r/secretlink/internal/domain"
	"github.com/smallwat3r/secretlink/internal/logging"
)

// RouterConfig carries the cross-cutting pieces of the router.
type RouterConfig struct {
	Security SecurityHeadersConfig
	// TrustProxy enables middleware.RealIP. Without it rate limits key on
	// the connection's remote address.
	TrustProxy bool
	// RateLimit wraps the API routes. Nil disables rate limiting.
	RateLimit func(http.Handler) http.Handler
	Logger    zerolog.Logger
}

func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(logging.Middleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(SecurityHeaders(cfg.Security))

	r.Get("/health", h.HandleHealth)

	r.Group(func(r chi.Router) {
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit)
		}
		r.Use(ContentLengthValidator(domain.MaxRequestBodySize))

		r.Get("/api/info", h.HandleInfo)
		r.Route("/api/secret", func(r chi.Router) {
			r.Post("/", h.HandleCreate)
			r.Get("/", h.HandleFetch)
			r.Delete("/", h.HandleDelete)
			r.Post("/claim", h.HandleClaim)
		})
	})

	return r
}
