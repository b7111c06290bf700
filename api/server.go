/*
server.go - HTTP router and middleware configuration

MIDDLEWARE STACK:
  1. Logger:    request logging
  2. Recoverer: panic recovery (500 instead of crash)
  3. RequestID: unique id per request for tracing
  4. CORS:      cross-origin requests for admin frontends

No authentication middleware: the identity collaborator in front of this
service supplies actor/operator ids in the request bodies.

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/stock", func(r chi.Router) {
			r.Get("/items", h.GetSummary)
			r.Get("/items/{id}/balance", h.GetBalance)
			r.Get("/ledger", h.GetLedger)
			r.Get("/low", h.GetLowStock)
			r.Post("/movements", h.RecordMovement)
			r.Route("/counts", func(r chi.Router) {
				r.Get("/", h.GetCounts)
				r.Post("/", h.Reconcile)
			})
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/purchase-received", h.PurchaseReceived)
			r.Post("/return-created", h.ReturnCreated)
			r.Post("/sale", h.Sale)
		})

		r.Post("/items", h.PutItem)
	})

	return r
}
