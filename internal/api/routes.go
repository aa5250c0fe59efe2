package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes builds the operator API router.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/dispatch", h.HandleDispatch)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.HandleListCampaigns)
			r.Post("/", h.HandleCreateCampaign)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.HandleGetCampaign)
				r.Put("/", h.HandleUpdateCampaign)
				r.Delete("/", h.HandleDeleteCampaign)
				r.Post("/queue", h.HandleQueueCampaign)
				r.Get("/stats", h.HandleCampaignStats)
			})
		})

		r.Get("/servers", h.HandleServers)

		r.Route("/suppressions", func(r chi.Router) {
			r.Get("/", h.HandleListSuppressions)
			r.Get("/stats", h.HandleSuppressionStats)
			r.Post("/", h.HandleSuppress)
			r.Delete("/{email}", h.HandleRemoveSuppression)
		})
	})

	return r
}
