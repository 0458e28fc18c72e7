package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// NewRouter builds the Chi router. Trip reads and the health endpoint
// are public; cache administration requires bearer auth. Rate limiting
// is applied globally: 60 requests per minute per IP.
func NewRouter(handlers *Handlers, token string, db dbPinger, redisClient redisPinger, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(httprate.LimitByIP(60, time.Minute))

	r.Get("/api/v1/health", HealthHandlerFunc(db, redisClient, log))

	r.Get("/api/v1/trips", handlers.ListTrips)
	r.Get("/api/v1/trips/{slug}", handlers.GetTrip)
	r.Get("/api/v1/trips/{slug}/geo", handlers.GetTripDayGeo)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(token))
		r.Post("/api/v1/admin/refresh", handlers.RefreshAll)
		r.Post("/api/v1/admin/refresh/{slug}", handlers.RefreshTrip)
		r.Get("/api/v1/admin/usage", handlers.GetUsage)
	})

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
